package verifier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/apperrors"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const approvalTokenType = "manual_approval"

// DefaultApprovalTTL bounds how long an admin approval link stays usable.
const DefaultApprovalTTL = 72 * time.Hour

// ApprovalClaims is the payload of an admin approval capability.
// ID (jti) is the nonce stored on the claim row; Subject is the claim id.
type ApprovalClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// ApprovalToken is an issued capability and the nonce persisted alongside it.
type ApprovalToken struct {
	Token     string
	Nonce     string
	ExpiresAt time.Time
}

// ApprovalTokenIssuer mints and checks single-use approval capabilities.
// Single use is enforced by the claim row, not here.
type ApprovalTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewApprovalTokenIssuer(secret string, ttl time.Duration) *ApprovalTokenIssuer {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	return &ApprovalTokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed approval token for claimID.
func (i *ApprovalTokenIssuer) Issue(claimID uuid.UUID) (ApprovalToken, error) {
	if len(i.secret) == 0 {
		return ApprovalToken{}, fmt.Errorf("approval token secret not configured")
	}
	now := i.now()
	expiresAt := now.Add(i.ttl)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")

	claims := ApprovalClaims{
		Type: approvalTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Subject:   claimID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return ApprovalToken{}, fmt.Errorf("failed to sign approval token: %w", err)
	}
	return ApprovalToken{Token: signed, Nonce: nonce, ExpiresAt: expiresAt}, nil
}

// Parse validates signature, type and expiry and returns the claims. A
// correctly signed token past its expiry returns its claims together with
// the expired error so the claim it names can still be looked up.
func (i *ApprovalTokenIssuer) Parse(token string) (*ApprovalClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.InvalidToken("missing approval token", nil)
	}
	if len(i.secret) == 0 {
		return nil, apperrors.InvalidToken("approval token secret not configured", nil)
	}

	claims := &ApprovalClaims{}
	parser := jwt.Parser{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		// Only the expiry bit set means the signature checked out.
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors == jwt.ValidationErrorExpired && claims.wellFormed() {
			return claims, apperrors.InvalidToken("approval link has expired", err)
		}
		return nil, apperrors.InvalidToken("invalid approval token", err)
	}
	if parsed == nil || !parsed.Valid || !claims.wellFormed() {
		return nil, apperrors.InvalidToken("invalid approval token", nil)
	}
	return claims, nil
}

func (c *ApprovalClaims) wellFormed() bool {
	if c.Type != approvalTokenType || c.ID == "" || c.ExpiresAt == nil {
		return false
	}
	_, err := uuid.Parse(c.Subject)
	return err == nil
}

// ClaimID returns the claim the token grants approval for.
func (c *ApprovalClaims) ClaimID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}
