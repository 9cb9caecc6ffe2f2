package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/accountkit/account-auth-service/internal/domain"
	apperrors "github.com/accountkit/account-auth-service/pkg/util/errorutil"
)

// AdminSubject is the only subject granted the ADMIN role.
const AdminSubject = "admin"

// RoleForSubject maps a token subject to its role. Matching is case-insensitive.
func RoleForSubject(subject string) domain.Role {
	if strings.EqualFold(subject, AdminSubject) {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}

// RequireAuthenticated rejects anonymous callers with 401.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || !principal.Authenticated {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequireRole ensures the principal has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || !principal.Authenticated {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
