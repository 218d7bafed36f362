package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit event types.
const (
	EventExperienceCreated      = "EXPERIENCE_CREATED"
	EventPaymentInitiated       = "PAYMENT_INITIATED"
	EventStripePaymentInitiated = "STRIPE_PAYMENT_INITIATED"
	EventPaymentVerified        = "PAYMENT_VERIFIED"
	EventPaymentCompleted       = "PAYMENT_COMPLETED"
	EventPaymentFailed          = "PAYMENT_FAILED"
	EventPaymentRefunded        = "PAYMENT_REFUNDED"
	EventManualPaymentSubmitted = "MANUAL_PAYMENT_SUBMITTED"
	EventPaymentVerifiedByAdmin = "PAYMENT_VERIFIED_BY_ADMIN"
	EventEmailSent              = "EMAIL_SENT"
	EventEmailFailed            = "EMAIL_FAILED"
	EventExperienceOpened       = "EXPERIENCE_OPENED"
	EventExperienceResponded    = "EXPERIENCE_RESPONDED"
	EventReplySent              = "REPLY_SENT"
)

// TriggerSource names the completion signal that drove a PAID transition.
type TriggerSource string

const (
	SourceClientVerify    TriggerSource = "client_verify"
	SourceRazorpayWebhook TriggerSource = "razorpay_webhook"
	SourceStripeWebhook   TriggerSource = "stripe_webhook"
	SourceAdminApproval   TriggerSource = "admin_approval"
)

// AuditEvent is persisted to analytics_events and mirrored to the event bus.
type AuditEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ExperienceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"experience_id"`
	EventType    string         `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Metadata     datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditEvent) TableName() string { return "analytics_events" }

// LifecycleEvent is the message published to SNS or Kafka.
type LifecycleEvent struct {
	EventType    string                 `json:"event_type"`
	ExperienceID string                 `json:"experience_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// EmailRetryMessage is queued when a delivery fails after a committed PAID transition.
type EmailRetryMessage struct {
	ExperienceID string    `json:"experience_id"`
	Reason       string    `json:"reason"`
	QueuedAt     time.Time `json:"queued_at"`
}
