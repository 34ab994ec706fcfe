package auth

import (
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// RequireStaff admits callers that AuthMiddleware resolved to a staff member.
// When roles are given, the member's stored role must be one of them.
func RequireStaff(roles ...domain.StaffRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if err := principal.admit(roles); err != nil {
			return err
		}
		return c.Next()
	}
}

// admit checks the role against the loaded staff record, not the token, so a
// demotion takes effect before the token expires.
func (p *Principal) admit(roles []domain.StaffRole) error {
	if p.SubjectType != domain.SubjectTypeStaff || p.Staff == nil {
		return apperrors.NewForbidden("staff only")
	}
	if p.Role != nil && *p.Role != p.Staff.Role {
		return apperrors.NewForbidden("role changed since sign-in")
	}
	if len(roles) > 0 && !slices.Contains(roles, p.Staff.Role) {
		return apperrors.NewForbidden("role not permitted")
	}
	return nil
}
