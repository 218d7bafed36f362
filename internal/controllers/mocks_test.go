package controllers

import (
	"context"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mock Services ---

type MockExperienceService struct {
	mock.Mock
}

func (m *MockExperienceService) Create(ctx context.Context, req models.CreateExperienceRequest) (*models.CreateExperienceResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CreateExperienceResponse), args.Error(1)
}

func (m *MockExperienceService) Get(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PublicExperience), args.Error(1)
}

func (m *MockExperienceService) MarkOpened(ctx context.Context, id uuid.UUID) (*models.PublicExperience, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PublicExperience), args.Error(1)
}

func (m *MockExperienceService) Respond(ctx context.Context, id uuid.UUID, response models.Response) (*models.PublicExperience, error) {
	args := m.Called(ctx, id, response)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PublicExperience), args.Error(1)
}

func (m *MockExperienceService) Reply(ctx context.Context, id uuid.UUID, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

type MockDeliveryTrigger struct {
	mock.Mock
}

func (m *MockDeliveryTrigger) Deliver(ctx context.Context, id uuid.UUID) (*models.DeliveryResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeliveryResult), args.Error(1)
}

func (m *MockDeliveryTrigger) RetryStalled(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateIntent(ctx context.Context, id uuid.UUID, gateway models.Gateway) (*models.PaymentIntent, error) {
	args := m.Called(ctx, id, gateway)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockPaymentService) VerifyRazorpay(ctx context.Context, req models.VerifyRazorpayRequest) (*services.CompletionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CompletionResult), args.Error(1)
}

type MockManualPaymentService struct {
	mock.Mock
}

func (m *MockManualPaymentService) SubmitClaim(ctx context.Context, req models.ManualPaymentRequest) (*models.ManualPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualPaymentResult), args.Error(1)
}

func (m *MockManualPaymentService) CreateUploadURL(ctx context.Context, req models.UploadURLRequest) (*models.UploadURL, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UploadURL), args.Error(1)
}

func (m *MockManualPaymentService) Approve(ctx context.Context, token string) (*models.AdminVerifyResult, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdminVerifyResult), args.Error(1)
}

type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) HandleRazorpay(ctx context.Context, payload []byte, signature, eventID string) (*services.WebhookAck, error) {
	args := m.Called(ctx, payload, signature, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WebhookAck), args.Error(1)
}

func (m *MockWebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) (*services.WebhookAck, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.WebhookAck), args.Error(1)
}
