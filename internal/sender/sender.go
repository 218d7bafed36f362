package sender

import (
	"context"
	"time"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Email is one outbound HTML message. Tags are forwarded where the provider supports them.
type Email struct {
	To      string
	Subject string
	HTML    string
	Tags    map[string]string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) (SendResult, error)
}
