package models

import (
	"encoding/json"
	"time"
)

// CreateExperienceRequest is the builder's payload for POST /experiences.
type CreateExperienceRequest struct {
	ExperienceType string          `json:"experience_type"`
	SenderName     string          `json:"sender_name"`
	SenderEmail    string          `json:"sender_email"`
	RecipientName  string          `json:"recipient_name"`
	RecipientEmail string          `json:"recipient_email"`
	Currency       string          `json:"currency"`
	Content        json.RawMessage `json:"content"`
}

// CreateExperienceResponse mirrors the acknowledgement the builder expects.
type CreateExperienceResponse struct {
	ID             string    `json:"id"`
	ExperienceType string    `json:"experience_type"`
	AmountDue      int64     `json:"amount_due"`
	Currency       string    `json:"currency"`
	AmountDisplay  string    `json:"amount_display"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreatePaymentRequest starts a Razorpay order or Stripe Checkout session.
type CreatePaymentRequest struct {
	ExperienceID string `json:"experience_id" binding:"required"`
}

// PaymentIntent is the checkout handle returned to the client.
type PaymentIntent struct {
	AttemptID    string  `json:"attempt_id"`
	ExperienceID string  `json:"experience_id"`
	Gateway      Gateway `json:"gateway"`
	Reference    string  `json:"reference"`
	CheckoutURL  string  `json:"checkout_url,omitempty"`
	KeyID        string  `json:"key_id,omitempty"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	Reused       bool    `json:"reused"`
}

// VerifyRazorpayRequest is posted by the client after Razorpay Checkout succeeds.
type VerifyRazorpayRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// ManualPaymentRequest is a UPI/PayPal claim submitted by the sender.
type ManualPaymentRequest struct {
	ExperienceID  string `json:"experience_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id"`
	ScreenshotKey string `json:"screenshot_key"`
}

// ManualPaymentResult is returned for a submitted or previously submitted claim.
type ManualPaymentResult struct {
	ClaimID          string `json:"claim_id"`
	AlreadySubmitted bool   `json:"already_submitted"`
	AdminNotified    bool   `json:"admin_notified"`
}

// UploadURLRequest asks for a presigned screenshot upload.
type UploadURLRequest struct {
	ExperienceID string `json:"experience_id" binding:"required"`
	ContentType  string `json:"content_type"`
}

// UploadURL is a presigned PUT target for a payment screenshot.
type UploadURL struct {
	URL     string            `json:"url"`
	Key     string            `json:"key"`
	Headers map[string]string `json:"headers"`
}

// AdminVerifyRequest accepts either field name for the approval token.
type AdminVerifyRequest struct {
	Token         string `json:"token" form:"token"`
	ApprovalToken string `json:"approval_token" form:"approval_token"`
}

// AdminVerifyResult describes the outcome rendered on the approval page.
type AdminVerifyResult struct {
	ExperienceID    string `json:"experience_id"`
	RecipientName   string `json:"recipient_name"`
	AlreadyApproved bool   `json:"already_approved"`
	EmailSent       bool   `json:"email_sent"`
}

// RespondRequest records the recipient's answer.
type RespondRequest struct {
	Response string `json:"response" binding:"required"`
}

// ReplyRequest carries the recipient's reply to the sender.
type ReplyRequest struct {
	Message string `json:"message" binding:"required"`
}

// DeliveryResult reports a send attempt made by the delivery trigger.
type DeliveryResult struct {
	ExperienceID string    `json:"experience_id"`
	MessageID    string    `json:"message_id"`
	SentAt       time.Time `json:"sent_at"`
}
