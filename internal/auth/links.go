package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rmitchellscott/ditherbox/internal/logging"
)

const (
	linkIssuer   = "ditherbox"
	linkAudience = "result-download"

	// DefaultLinkTTL applies when a signer is built with a non-positive TTL.
	DefaultLinkTTL = 24 * time.Hour
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired download token")

// Signer issues and verifies HS256 download tokens bound to a job ID.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. An empty secret is replaced by a random one,
// which means links do not survive a restart.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if secret == "" {
		logging.WarnWithComponent(logging.ComponentLinks,
			"LINK_SIGNING_SECRET is not set; using a random secret, download links will not survive a restart")
		secret = uuid.NewString() + uuid.NewString()
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long issued tokens stay valid.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Sign returns a token for jobID and its expiry.
func (s *Signer) Sign(jobID uuid.UUID) (string, time.Time, error) {
	issued := s.now()
	expires := issued.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    linkIssuer,
		Subject:   jobID.String(),
		Audience:  jwt.ClaimStrings{linkAudience},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign download token: %w", err)
	}
	return tokenString, expires, nil
}

// Verify checks that tokenString is a valid, unexpired token for jobID.
func (s *Signer) Verify(tokenString string, jobID uuid.UUID) error {
	if tokenString == "" {
		return ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(linkIssuer),
		jwt.WithAudience(linkAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != jobID.String() {
		return fmt.Errorf("%w: token is for a different job", ErrInvalidToken)
	}
	return nil
}
