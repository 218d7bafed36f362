package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/jordan-wright/email"
)

type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	send     func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewSMTPSender(host, port, username, password, from string) (*SMTPSender, error) {
	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	if port == "" {
		return nil, fmt.Errorf("SMTP_PORT not set")
	}
	if from == "" {
		from = username
	}

	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}, nil
}

func (s *SMTPSender) SendEmail(ctx context.Context, msg Email) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	messageID := fmt.Sprintf("smtp-%d", time.Now().UnixNano())

	e := &email.Email{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    []byte(msg.HTML),
		Headers: textproto.MIMEHeader{},
	}
	e.Headers.Set("X-Message-Id", messageID)
	for k, v := range msg.Tags {
		e.Headers.Set("X-Tag-"+k, v)
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := s.send(e, s.host+":"+s.port, auth); err != nil {
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	return SendResult{MessageID: messageID, SentAt: time.Now()}, nil
}
