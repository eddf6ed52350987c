package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/officehub-api/internal/utils"
)

// PermissionChecker decides whether an identity may perform a named action.
type PermissionChecker interface {
	HasPermission(identity Identity, permission string) bool
}

// ClaimsPermissionChecker grants permissions listed in the token, and everything to superuser roles.
type ClaimsPermissionChecker struct {
	superRoles map[string]struct{}
}

// NewClaimsPermissionChecker constructs a checker; holders of any superRole pass every check.
func NewClaimsPermissionChecker(superRoles ...string) *ClaimsPermissionChecker {
	allowed := make(map[string]struct{}, len(superRoles))
	for _, role := range superRoles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &ClaimsPermissionChecker{superRoles: allowed}
}

func (p *ClaimsPermissionChecker) HasPermission(identity Identity, permission string) bool {
	for role := range p.superRoles {
		if identity.HasRole(role) {
			return true
		}
	}

	permission = strings.ToLower(strings.TrimSpace(permission))
	for _, granted := range identity.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

// RequirePermission ensures that the authenticated identity holds the permission.
func RequirePermission(checker PermissionChecker, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "authentication required")
		}
		if !checker.HasPermission(identity, permission) {
			return utils.SendErrorKind(c, fiber.StatusForbidden, "forbidden", "insufficient permissions")
		}
		return c.Next()
	}
}
