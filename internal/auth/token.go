package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/accountkit/account-auth-service/internal/config"
	"github.com/accountkit/account-auth-service/internal/domain"
)

// SessionLifetime is how long an issued token stays valid.
const SessionLifetime = 10 * time.Hour

var (
	// ErrInvalidToken is matched by every Decode failure. The concrete cause is wrapped
	// alongside it for logging and must not be returned to clients.
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptySubject = errors.New("token subject must not be empty")
)

// TokenCodec issues and validates HS256 session tokens.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the wall clock used for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// NewTokenCodec builds a codec from validated auth configuration.
func NewTokenCodec(cfg config.AuthConfig, opts ...CodecOption) (*TokenCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tc := &TokenCodec{secret: []byte(cfg.JWTSecret), now: time.Now}
	for _, opt := range opts {
		opt(tc)
	}
	tc.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.now),
	)
	return tc, nil
}

// Encode signs a claim for subject and returns the token with its expiry.
func (tc *TokenCodec) Encode(subject string) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, ErrEmptySubject
	}

	issuedAt := tc.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(SessionLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tc.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, claims.ExpiresAt.Time, nil
}

// Decode verifies signature and expiry and returns the embedded claim.
func (tc *TokenCodec) Decode(tokenStr string) (domain.Claim, error) {
	claims, err := tc.verify(tokenStr)
	if err != nil {
		return domain.Claim{}, err
	}

	claim := domain.Claim{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	return claim, nil
}

// IsValid reports whether Decode would succeed.
func (tc *TokenCodec) IsValid(tokenStr string) bool {
	_, err := tc.verify(tokenStr)
	return err == nil
}

func (tc *TokenCodec) verify(tokenStr string) (*jwt.RegisteredClaims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := tc.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tc.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token not valid", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
