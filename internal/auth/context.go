package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/accountkit/account-auth-service/internal/domain"
)

const principalKey = "auth_principal"

type principalCtxKey struct{}

// Principal is the authorization context installed for an authenticated request.
type Principal struct {
	Subject       string
	Role          domain.Role
	Authenticated bool
}

// WithPrincipal returns a copy of ctx carrying principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, principal)
}

// FromContext retrieves the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return principal, ok && principal != nil
}

// PrincipalFromContext retrieves the authenticated entity for the current request.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}

func installPrincipal(c *fiber.Ctx, principal *Principal) {
	c.Locals(principalKey, principal)
	c.SetUserContext(WithPrincipal(c.UserContext(), principal))
}
