package models

import (
	"time"

	"github.com/google/uuid"
)

// Gateway identifies the payment rail an attempt went through.
type Gateway string

const (
	GatewayRazorpay Gateway = "razorpay"
	GatewayStripe   Gateway = "stripe"
	GatewayManual   Gateway = "manual"
)

// PaymentStatus constants.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// PaymentAttempt is one gateway-specific try at collecting payment.
type PaymentAttempt struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExperienceID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"experience_id"`
	Gateway          Gateway    `gorm:"type:varchar(20);not null" json:"gateway"`
	GatewayReference *string    `gorm:"type:varchar(255);uniqueIndex" json:"gateway_reference,omitempty"`
	GatewayPaymentID *string    `gorm:"type:varchar(255)" json:"gateway_payment_id,omitempty"`
	CheckoutURL      *string    `gorm:"type:varchar(1024)" json:"checkout_url,omitempty"`
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`
	Amount           int64      `gorm:"not null" json:"amount"` // minor units
	Currency         string     `gorm:"type:varchar(10);not null" json:"currency"`
	ErrorCode        *string    `gorm:"type:varchar(100)" json:"error_code,omitempty"`
	ErrorDescription *string    `gorm:"type:text" json:"error_description,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Reference returns the gateway reference or "" for attempts without one.
func (p *PaymentAttempt) Reference() string {
	if p.GatewayReference == nil {
		return ""
	}
	return *p.GatewayReference
}

// ManualPaymentMethod constants.
const (
	ManualMethodUPI    = "upi"
	ManualMethodPayPal = "paypal"
)

// ManualPaymentClaim is a user-submitted UPI/PayPal payment awaiting review.
type ManualPaymentClaim struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExperienceID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"experience_id"`
	PayerName      string     `gorm:"type:varchar(255);not null" json:"payer_name"`
	PayerEmail     string     `gorm:"type:varchar(255);not null" json:"payer_email"`
	PaymentMethod  string     `gorm:"type:varchar(20);not null" json:"payment_method"`
	TransactionID  string     `gorm:"type:varchar(255);not null" json:"transaction_id"`
	ScreenshotKey  *string    `gorm:"type:varchar(1024)" json:"screenshot_key,omitempty"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"type:varchar(10);not null" json:"currency"`
	ApprovalToken  string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	TokenExpiresAt time.Time  `gorm:"not null" json:"token_expires_at"`
	Reviewed       bool       `gorm:"not null;default:false" json:"reviewed"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// AdminNotifiedAt is set once the admin email carrying the current token went out.
	AdminNotifiedAt *time.Time `json:"admin_notified_at,omitempty"`
}

// ManualAttemptReference is the gateway reference used for a claim's payment attempt.
func ManualAttemptReference(claimID uuid.UUID) string {
	return "manual:" + claimID.String()
}
