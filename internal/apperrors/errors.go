package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindInvalidSignature Kind = "invalid_signature"
	KindInvalidToken     Kind = "invalid_token"
	KindAlreadyPaid      Kind = "already_paid"
	KindAlreadyReviewed  Kind = "already_reviewed"
	KindUnknownAttempt   Kind = "unknown_attempt"
	KindNotFound         Kind = "not_found"
	KindGateway          Kind = "gateway"
	KindEmailDelivery    Kind = "email_delivery"
	KindNotPayableState  Kind = "not_payable_state"
	KindInternal         Kind = "internal"
)

var kindCodes = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindInvalidSignature: http.StatusUnauthorized,
	KindInvalidToken:     http.StatusUnauthorized,
	KindAlreadyPaid:      http.StatusOK,
	KindAlreadyReviewed:  http.StatusOK,
	KindUnknownAttempt:   http.StatusNotFound,
	KindNotFound:         http.StatusNotFound,
	KindGateway:          http.StatusBadGateway,
	KindEmailDelivery:    http.StatusBadGateway,
	KindNotPayableState:  http.StatusBadRequest,
	KindInternal:         http.StatusInternalServerError,
}

// Error represents an application error
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	code, ok := kindCodes[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithCode returns a copy of e answering with a different HTTP status.
func (e *Error) WithCode(code int) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = New(KindValidation, "Validation error", nil)
	ErrInvalidSignature = New(KindInvalidSignature, "Invalid signature", nil)
	ErrInvalidToken     = New(KindInvalidToken, "Invalid token", nil)
	ErrAlreadyPaid      = New(KindAlreadyPaid, "Experience already paid", nil)
	ErrAlreadyReviewed  = New(KindAlreadyReviewed, "Payment already reviewed", nil)
	ErrUnknownAttempt   = New(KindUnknownAttempt, "Unknown payment attempt", nil)
	ErrNotFound         = New(KindNotFound, "Not found", nil)
	ErrGateway          = New(KindGateway, "Payment gateway error", nil)
	ErrEmailDelivery    = New(KindEmailDelivery, "Email delivery failed", nil)
	ErrNotPayableState  = New(KindNotPayableState, "Experience is not in a payable state", nil)
	ErrInternal         = New(KindInternal, "Internal server error", nil)
)

func Validation(message string) *Error { return New(KindValidation, message, nil) }

func InvalidSignature(message string, err error) *Error {
	return New(KindInvalidSignature, message, err)
}

func InvalidToken(message string, err error) *Error { return New(KindInvalidToken, message, err) }

func AlreadyPaid(message string) *Error { return New(KindAlreadyPaid, message, nil) }

func AlreadyReviewed(message string) *Error { return New(KindAlreadyReviewed, message, nil) }

func UnknownAttempt(reference string) *Error {
	return New(KindUnknownAttempt, "Unknown payment attempt: "+reference, nil)
}

func NotFound(message string) *Error { return New(KindNotFound, message, nil) }

func Gateway(message string, err error) *Error { return New(KindGateway, message, err) }

func EmailDelivery(message string, err error) *Error { return New(KindEmailDelivery, message, err) }

func NotPayableState(message string) *Error { return New(KindNotPayableState, message, nil) }

func Internal(message string, err error) *Error { return New(KindInternal, message, err) }

// From converts any error into an *Error, defaulting to an internal error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error", err)
}

// IsSuccessNoOp reports whether err is an idempotent no-op that callers treat as success.
func IsSuccessNoOp(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrAlreadyReviewed)
}
