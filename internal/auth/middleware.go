package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/accountkit/account-auth-service/internal/domain"
)

const bearerPrefix = "Bearer "

// ClaimDecoder verifies a token and returns its claim.
type ClaimDecoder interface {
	Decode(token string) (domain.Claim, error)
}

// Outcome is the result of inspecting a request's credentials.
// It is either Authenticated or Anonymous.
type Outcome interface {
	isOutcome()
}

// Authenticated carries the principal recovered from a valid token.
type Authenticated struct {
	Principal *Principal
}

// AnonymousReason explains why a request proceeds without identity.
type AnonymousReason string

const (
	ReasonNoCredentials     AnonymousReason = "no_credentials"
	ReasonUnsupportedScheme AnonymousReason = "unsupported_scheme"
	ReasonEmptyToken        AnonymousReason = "empty_token"
	ReasonInvalidToken      AnonymousReason = "invalid_token"
)

// Anonymous means no usable identity was offered. Err is set only for ReasonInvalidToken.
type Anonymous struct {
	Reason AnonymousReason
	Err    error
}

func (Authenticated) isOutcome() {}
func (Anonymous) isOutcome()     {}

// AuthMiddleware resolves bearer tokens into a request principal. It never rejects a
// request; route guards decide whether anonymous callers may proceed.
type AuthMiddleware struct {
	tokens ClaimDecoder
	logger *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens ClaimDecoder, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// Authenticate inspects an Authorization header value.
func (m *AuthMiddleware) Authenticate(authHeader string) Outcome {
	if authHeader == "" {
		return Anonymous{Reason: ReasonNoCredentials}
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return Anonymous{Reason: ReasonUnsupportedScheme}
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return Anonymous{Reason: ReasonEmptyToken}
	}

	claim, err := m.tokens.Decode(token)
	if err != nil {
		return Anonymous{Reason: ReasonInvalidToken, Err: err}
	}

	return Authenticated{Principal: &Principal{
		Subject:       claim.Subject,
		Role:          RoleForSubject(claim.Subject),
		Authenticated: true,
	}}
}

// Handle installs the principal when the request carries a valid token and none is set yet.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	switch outcome := m.Authenticate(c.Get(fiber.HeaderAuthorization)).(type) {
	case Authenticated:
		if _, exists := PrincipalFromContext(c); exists {
			break
		}
		installPrincipal(c, outcome.Principal)
		m.logger.Debug("request authenticated",
			zap.String("subject", outcome.Principal.Subject),
			zap.String("role", string(outcome.Principal.Role)))
	case Anonymous:
		if outcome.Err != nil {
			m.logger.Debug("bearer token rejected",
				zap.String("path", c.Path()),
				zap.Error(outcome.Err))
		}
	}
	return c.Next()
}
