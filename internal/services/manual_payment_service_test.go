package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/verifier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTokens keeps the last token issued so tests can play the admin.
// With expired set, valid tokens parse as signed but past their expiry.
type recordingTokens struct {
	*verifier.ApprovalTokenIssuer
	last    verifier.ApprovalToken
	expired bool
}

func (r *recordingTokens) Issue(claimID uuid.UUID) (verifier.ApprovalToken, error) {
	tok, err := r.ApprovalTokenIssuer.Issue(claimID)
	r.last = tok
	return tok, err
}

func (r *recordingTokens) Parse(token string) (*verifier.ApprovalClaims, error) {
	claims, err := r.ApprovalTokenIssuer.Parse(token)
	if err == nil && r.expired {
		return claims, apperrors.InvalidToken("approval link has expired", nil)
	}
	return claims, err
}

type fakePresigner struct {
	key         string
	contentType string
	expiry      time.Duration
}

func (p *fakePresigner) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (string, map[string]string, error) {
	p.key, p.contentType, p.expiry = key, contentType, expiry
	return "https://screenshots.s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", map[string]string{"Content-Type": contentType}, nil
}

func newManualService(t *testing.T, h *harness) (ManualPaymentService, *recordingTokens, *fakePresigner) {
	t.Helper()
	renderer, err := sender.NewRenderer()
	require.NoError(t, err)
	tokens := &recordingTokens{ApprovalTokenIssuer: verifier.NewApprovalTokenIssuer("approval-secret", time.Hour)}
	presigner := &fakePresigner{}
	svc := NewManualPaymentService(
		memExperiences{h.store},
		memAttempts{h.store},
		memClaims{h.store},
		tokens,
		h.applier,
		h.sender,
		renderer,
		presigner,
		h.audit,
		ManualPaymentConfig{AdminEmail: "admin@example.com", FunctionsBaseURL: "https://api.cupids-arrow.test"},
		h.logger,
	)
	return svc, tokens, presigner
}

func validClaim(expID uuid.UUID) models.ManualPaymentRequest {
	return models.ManualPaymentRequest{
		ExperienceID:  expID.String(),
		Name:          "Asha",
		Email:         "Asha@Example.com",
		PaymentMethod: "UPI",
		TransactionID: "UPI123456789",
	}
}

func TestSubmitClaim_CreatesClaimAttemptAndNotifiesAdmin(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	result, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))

	require.NoError(t, err)
	assert.False(t, result.AlreadySubmitted)
	assert.True(t, result.AdminNotified)

	claimID := uuid.MustParse(result.ClaimID)
	attempt := h.store.attempt(models.ManualAttemptReference(claimID))
	assert.Equal(t, models.GatewayManual, attempt.Gateway)
	assert.Equal(t, models.PaymentStatusPending, attempt.Status)
	assert.Equal(t, models.StatePreview, h.store.experience(exp.ID).LifecycleState)

	require.Equal(t, 1, h.sender.sentTo("admin@example.com"))
	msg := h.sender.sent[0]
	assert.Equal(t, "💰 New Payment: UPI from Asha", msg.Subject)
	assert.True(t, strings.Contains(msg.HTML, "https://api.cupids-arrow.test/adminVerify?token="+tokens.last.Token))
	assert.Equal(t, 1, h.audit.count(models.EventManualPaymentSubmitted))
}

func TestSubmitClaim_SecondSubmissionReturnsExisting(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	first, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	second, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)

	assert.True(t, second.AlreadySubmitted)
	assert.Equal(t, first.ClaimID, second.ClaimID)
	assert.Len(t, h.store.attempts, 1)
	assert.Equal(t, 1, h.sender.sentTo("admin@example.com"))
}

func TestSubmitClaim_ResubmitAfterAdminEmailFailureNotifiesAgain(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	h.sender.always = true
	first, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	assert.False(t, first.AdminNotified)

	h.sender.always = false
	second, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	assert.True(t, second.AlreadySubmitted)
	assert.True(t, second.AdminNotified)
	assert.Equal(t, first.ClaimID, second.ClaimID)
	assert.Equal(t, 1, h.sender.sentTo("admin@example.com"))

	approved, err := svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)
	assert.False(t, approved.AlreadyApproved)
	assert.Equal(t, models.StateSent, h.store.experience(exp.ID).LifecycleState)
}

func TestSubmitClaim_ResubmitAfterTokenExpiryReissuesLink(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	first, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	staleToken := tokens.last
	claimID := uuid.MustParse(first.ClaimID)
	h.store.expireClaimToken(claimID)

	second, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	assert.True(t, second.AdminNotified)
	assert.NotEqual(t, staleToken.Nonce, tokens.last.Nonce)
	assert.Equal(t, tokens.last.Nonce, h.store.claim(claimID).ApprovalToken)
	assert.Equal(t, 2, h.sender.sentTo("admin@example.com"))
	assert.Len(t, h.store.attempts, 1)

	_, err = svc.Approve(context.Background(), staleToken.Token)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	approved, err := svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)
	assert.True(t, approved.EmailSent)
	assert.Equal(t, 1, h.sender.sentTo("ravi@example.com"))
}

func TestSubmitClaim_ResubmitRecordsMissingAttempt(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	h.store.attemptCreateErr = errors.New("connection reset by peer")
	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.True(t, errors.Is(err, apperrors.ErrInternal))
	require.Len(t, h.store.claims, 1)
	assert.Empty(t, h.store.attempts)

	h.store.attemptCreateErr = nil
	result, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	assert.True(t, result.AlreadySubmitted)
	assert.True(t, result.AdminNotified)

	claimID := uuid.MustParse(result.ClaimID)
	attempt := h.store.attempt(models.ManualAttemptReference(claimID))
	assert.Equal(t, models.PaymentStatusPending, attempt.Status)
	assert.Equal(t, models.StatePreview, h.store.experience(exp.ID).LifecycleState)

	approved, err := svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)
	assert.False(t, approved.AlreadyApproved)
	assert.True(t, approved.EmailSent)
	assert.Equal(t, models.StateSent, h.store.experience(exp.ID).LifecycleState)
}

func TestSubmitClaim_Validation(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	tests := []struct {
		name   string
		mutate func(r *models.ManualPaymentRequest)
	}{
		{"bad experience id", func(r *models.ManualPaymentRequest) { r.ExperienceID = "nope" }},
		{"missing name", func(r *models.ManualPaymentRequest) { r.Name = "  " }},
		{"bad email", func(r *models.ManualPaymentRequest) { r.Email = "asha@" }},
		{"bad method", func(r *models.ManualPaymentRequest) { r.PaymentMethod = "venmo" }},
		{"short transaction id", func(r *models.ManualPaymentRequest) { r.TransactionID = "12345" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validClaim(exp.ID)
			tt.mutate(&req)
			_, err := svc.SubmitClaim(context.Background(), req)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
		})
	}
	assert.Empty(t, h.store.claims)
}

func TestSubmitClaim_AlreadyPaid(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StatePaid)

	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))

	assert.True(t, errors.Is(err, apperrors.ErrAlreadyPaid))
}

func TestApprove_DoubleClickSendsOneEmail(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)
	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)

	first, err := svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)
	assert.False(t, first.AlreadyApproved)
	assert.True(t, first.EmailSent)
	assert.Equal(t, models.StateSent, h.store.experience(exp.ID).LifecycleState)

	second, err := svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)
	assert.True(t, second.AlreadyApproved)

	assert.Equal(t, 1, h.sender.sentTo("ravi@example.com"))
	assert.Equal(t, 1, h.audit.count(models.EventPaymentVerifiedByAdmin))
}

func TestApprove_ExpiredLinkAfterApprovalReportsAlreadyApproved(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)
	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tokens.last.Token)
	require.NoError(t, err)

	tokens.expired = true
	again, err := svc.Approve(context.Background(), tokens.last.Token)

	require.NoError(t, err)
	assert.True(t, again.AlreadyApproved)
	assert.Equal(t, exp.ID.String(), again.ExperienceID)
	assert.Equal(t, 1, h.sender.sentTo("ravi@example.com"))
}

func TestApprove_ExpiredLinkBeforeApprovalIsRejected(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)
	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)

	tokens.expired = true
	_, err = svc.Approve(context.Background(), tokens.last.Token)

	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
	assert.Equal(t, models.StatePreview, h.store.experience(exp.ID).LifecycleState)
}

func TestApprove_ReviewMarkFailureStillCountsAsFirstApproval(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)
	_, err := svc.SubmitClaim(context.Background(), validClaim(exp.ID))
	require.NoError(t, err)

	h.store.markReviewedErr = errors.New("connection reset by peer")
	result, err := svc.Approve(context.Background(), tokens.last.Token)

	require.NoError(t, err)
	assert.False(t, result.AlreadyApproved)
	assert.True(t, result.EmailSent)
	assert.Equal(t, 1, h.audit.count(models.EventPaymentVerifiedByAdmin))
	assert.Equal(t, models.StateSent, h.store.experience(exp.ID).LifecycleState)
}

func TestApprove_InvalidTokens(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newManualService(t, h)

	_, err := svc.Approve(context.Background(), "")
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, 400, appErr.Code)

	_, err = svc.Approve(context.Background(), "not.a.jwt")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))

	forged, err := verifier.NewApprovalTokenIssuer("other-secret", time.Hour).Issue(uuid.New())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), forged.Token)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
}

func TestApprove_UnknownClaim(t *testing.T) {
	h := newHarness(t)
	svc, tokens, _ := newManualService(t, h)

	tok, err := tokens.Issue(uuid.New())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tok.Token)

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCreateUploadURL(t *testing.T) {
	h := newHarness(t)
	svc, _, presigner := newManualService(t, h)
	exp := h.store.seedExperience(models.StateDraft)

	upload, err := svc.CreateUploadURL(context.Background(), models.UploadURLRequest{
		ExperienceID: exp.ID.String(),
		ContentType:  "image/png",
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(upload.Key, "payment-screenshots/"+exp.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(upload.Key, ".png"))
	assert.Equal(t, upload.Key, presigner.key)
	assert.Equal(t, 15*time.Minute, presigner.expiry)
	assert.Equal(t, "image/png", upload.Headers["Content-Type"])

	_, err = svc.CreateUploadURL(context.Background(), models.UploadURLRequest{
		ExperienceID: exp.ID.String(),
		ContentType:  "application/pdf",
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}
