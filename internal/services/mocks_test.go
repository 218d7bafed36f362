package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/providers"
	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/sender"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---- in-memory store ----

// memStore implements the experience, attempt and claim repositories with the
// same conditional-update semantics as the gorm versions.
type memStore struct {
	mu          sync.Mutex
	experiences map[uuid.UUID]*models.Experience
	attempts    map[uuid.UUID]*models.PaymentAttempt
	claims      map[uuid.UUID]*models.ManualPaymentClaim

	findErr          error
	attemptCreateErr error
	markReviewedErr  error
}

func newMemStore() *memStore {
	return &memStore{
		experiences: map[uuid.UUID]*models.Experience{},
		attempts:    map[uuid.UUID]*models.PaymentAttempt{},
		claims:      map[uuid.UUID]*models.ManualPaymentClaim{},
	}
}

func (m *memStore) experience(id uuid.UUID) models.Experience {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.experiences[id]
}

func (m *memStore) attempt(ref string) models.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.Reference() == ref {
			return *a
		}
	}
	return models.PaymentAttempt{}
}

func (m *memStore) seedExperience(state models.LifecycleState) *models.Experience {
	senderName := "Asha"
	senderEmail := "asha@example.com"
	e := &models.Experience{
		ID:             uuid.New(),
		ExperienceType: models.ExperienceCrush,
		LifecycleState: state,
		AmountDue:      4900,
		Currency:       "inr",
		RecipientName:  "Ravi",
		RecipientEmail: "ravi@example.com",
		SenderName:     &senderName,
		SenderEmail:    &senderEmail,
	}
	m.mu.Lock()
	m.experiences[e.ID] = e
	m.mu.Unlock()
	return e
}

func (m *memStore) seedAttempt(expID uuid.UUID, gateway models.Gateway, ref, status string) *models.PaymentAttempt {
	a := &models.PaymentAttempt{
		ID:               uuid.New(),
		ExperienceID:     expID,
		Gateway:          gateway,
		GatewayReference: &ref,
		Status:           status,
		Amount:           4900,
		Currency:         "inr",
	}
	m.mu.Lock()
	m.attempts[a.ID] = a
	m.mu.Unlock()
	return a
}

// experiences

type memExperiences struct{ *memStore }

func (r memExperiences) Create(_ context.Context, e *models.Experience) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	cp := *e
	r.experiences[e.ID] = &cp
	return nil
}

func (r memExperiences) FindByID(_ context.Context, id uuid.UUID) (*models.Experience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	e, ok := r.experiences[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r memExperiences) TransitionState(_ context.Context, id uuid.UUID, from []models.LifecycleState, to models.LifecycleState, fields map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiences[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if e.LifecycleState == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	e.LifecycleState = to
	for k, v := range fields {
		switch k {
		case "paid_at":
			t := v.(time.Time)
			e.PaidAt = &t
		case "sent_at":
			t := v.(time.Time)
			e.SentAt = &t
		case "responded_at":
			t := v.(time.Time)
			e.RespondedAt = &t
		case "response":
			resp := v.(models.Response)
			e.Response = &resp
		case "opened_at":
			switch val := v.(type) {
			case time.Time:
				e.OpenedAt = &val
			case clause.Expr:
				if e.OpenedAt == nil {
					t := val.Vars[0].(time.Time)
					e.OpenedAt = &t
				}
			}
		}
	}
	e.UpdatedAt = time.Now()
	return true, nil
}

func (r memExperiences) ClaimDelivery(_ context.Context, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiences[id]
	if !ok || e.LifecycleState != models.StatePaid {
		return false, nil
	}
	if e.DeliveryClaimedAt != nil && !e.DeliveryClaimedAt.Before(staleBefore) {
		return false, nil
	}
	e.DeliveryClaimedAt = &at
	return true, nil
}

func (r memExperiences) ReleaseDelivery(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.experiences[id]; ok && e.LifecycleState == models.StatePaid {
		e.DeliveryClaimedAt = nil
	}
	return nil
}

func (r memExperiences) SetReply(_ context.Context, id uuid.UUID, message string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiences[id]
	if !ok || e.ReplyMessage != nil {
		return false, nil
	}
	e.ReplyMessage = &message
	e.RepliedAt = &at
	return true, nil
}

func (r memExperiences) ListByState(_ context.Context, state models.LifecycleState, olderThan time.Time, limit int) ([]models.Experience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Experience
	for _, e := range r.experiences {
		if e.LifecycleState == state && e.UpdatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

// attempts

type memAttempts struct{ *memStore }

func (r memAttempts) Create(_ context.Context, a *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attemptCreateErr != nil {
		return r.attemptCreateErr
	}
	for _, existing := range r.attempts {
		if a.GatewayReference != nil && existing.Reference() == *a.GatewayReference {
			return fmt.Errorf("duplicate gateway_reference %q", *a.GatewayReference)
		}
	}
	a.ID = uuid.New()
	cp := *a
	r.attempts[a.ID] = &cp
	return nil
}

func (r memAttempts) FindByReference(_ context.Context, reference string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.Reference() == reference {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memAttempts) FindPending(_ context.Context, experienceID uuid.UUID, gateway models.Gateway) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.ExperienceID == experienceID && a.Gateway == gateway && a.Status == models.PaymentStatusPending {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memAttempts) MarkCompleted(_ context.Context, id uuid.UUID, gatewayPaymentID *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok || (a.Status != models.PaymentStatusPending && a.Status != models.PaymentStatusFailed) {
		return false, nil
	}
	a.Status = models.PaymentStatusCompleted
	a.GatewayPaymentID = gatewayPaymentID
	a.VerifiedAt = &at
	return true, nil
}

func (r memAttempts) MarkFailed(_ context.Context, reference, code, desc string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.Reference() == reference && a.Status == models.PaymentStatusPending {
			a.Status = models.PaymentStatusFailed
			a.ErrorCode = &code
			a.ErrorDescription = &desc
			return true, nil
		}
	}
	return false, nil
}

func (r memAttempts) MarkRefunded(_ context.Context, gatewayPaymentID string) (*models.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.GatewayPaymentID != nil && *a.GatewayPaymentID == gatewayPaymentID && a.Status == models.PaymentStatusCompleted {
			a.Status = models.PaymentStatusRefunded
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// claims

type memClaims struct{ *memStore }

func (r memClaims) Create(_ context.Context, c *models.ManualPaymentClaim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.claims {
		if existing.ExperienceID == c.ExperienceID {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	cp := *c
	r.claims[c.ID] = &cp
	return nil
}

func (r memClaims) FindByExperienceID(_ context.Context, experienceID uuid.UUID) (*models.ManualPaymentClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.claims {
		if c.ExperienceID == experienceID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memClaims) FindByToken(_ context.Context, token string) (*models.ManualPaymentClaim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.claims {
		if c.ApprovalToken == token {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memClaims) MarkReviewed(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markReviewedErr != nil {
		return false, r.markReviewedErr
	}
	c, ok := r.claims[id]
	if !ok || c.Reviewed {
		return false, nil
	}
	c.Reviewed = true
	c.ReviewedAt = &at
	return true, nil
}

func (r memClaims) ReissueToken(_ context.Context, id uuid.UUID, nonce string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok || c.Reviewed {
		return false, nil
	}
	c.ApprovalToken = nonce
	c.TokenExpiresAt = expiresAt
	c.AdminNotifiedAt = nil
	return true, nil
}

func (r memClaims) MarkAdminNotified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.claims[id]; ok {
		c.AdminNotifiedAt = &at
	}
	return nil
}

func (m *memStore) claim(id uuid.UUID) models.ManualPaymentClaim {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.claims[id]
}

func (m *memStore) expireClaimToken(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[id].TokenExpiresAt = time.Now().Add(-time.Minute)
}

// ---- fakes ----

type fakeSender struct {
	mu     sync.Mutex
	sent   []sender.Email
	failN  int // fail the first failN sends
	calls  int
	always bool
	delay  time.Duration
}

func (f *fakeSender) SendEmail(_ context.Context, msg sender.Email) (sender.SendResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.always || f.calls <= f.failN {
		return sender.SendResult{}, errors.New("resend: 503 service unavailable")
	}
	f.sent = append(f.sent, msg)
	return sender.SendResult{MessageID: fmt.Sprintf("msg_%d", len(f.sent)), SentAt: time.Now()}, nil
}

func (f *fakeSender) sentTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.To == addr {
			n++
		}
	}
	return n
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Record(_ context.Context, _ uuid.UUID, eventType string, _ map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *fakeAudit) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type fakeRetryQueue struct {
	mu     sync.Mutex
	queued []uuid.UUID
}

func (f *fakeRetryQueue) EnqueueEmailRetry(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, id)
	return nil
}

type fakeGateway struct {
	name     models.Gateway
	currency string
	calls    int
	err      error
}

func (g *fakeGateway) Name() models.Gateway { return g.name }

func (g *fakeGateway) SupportsCurrency(c string) bool {
	return g.currency == "" || g.currency == c
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req providers.CheckoutRequest) (*providers.Checkout, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &providers.Checkout{
		Reference:   fmt.Sprintf("order_%d", g.calls),
		CheckoutURL: "",
		KeyID:       "rzp_test_key",
		Amount:      req.Amount,
		Currency:    req.Currency,
	}, nil
}

type fakeLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (l *fakeLedger) FirstSeen(_ context.Context, gateway, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	if id == "" {
		return true, nil
	}
	key := gateway + ":" + id
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func (l *fakeLedger) Forget(_ context.Context, gateway, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, gateway+":"+id)
	return nil
}

// ---- harness ----

type harness struct {
	store    *memStore
	sender   *fakeSender
	audit    *fakeAudit
	retries  *fakeRetryQueue
	delivery *deliveryTrigger
	applier  TransitionApplier
	logger   *zap.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	renderer, err := sender.NewRenderer()
	require.NoError(t, err)

	h := &harness{
		store:   newMemStore(),
		sender:  &fakeSender{},
		audit:   &fakeAudit{},
		retries: &fakeRetryQueue{},
		logger:  zap.NewNop(),
	}
	d := NewDeliveryTrigger(memExperiences{h.store}, h.sender, renderer, h.audit, nil, "https://cupids-arrow.test", h.logger).(*deliveryTrigger)
	d.sleep = func(time.Duration) {}
	h.delivery = d
	h.applier = NewTransitionApplier(memAttempts{h.store}, memExperiences{h.store}, d, h.retries, h.audit, nil, h.logger)
	return h
}
