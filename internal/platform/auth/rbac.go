package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles.
const (
	RoleAdmin      = "admin"
	RolePhysician  = "physician"
	RoleNurse      = "nurse"
	RoleGovernment = "government"
)

func hasRole(userRoles []string, role string) bool {
	for _, r := range userRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			if hasRole(userRoles, RoleAdmin) {
				return next(c)
			}
			for _, required := range roles {
				if hasRole(userRoles, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireHospitalScope restricts hospital staff to their own hospital's
// routes. Admin and government users, and callers without a hospital claim,
// are not restricted.
func RequireHospitalScope(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			roles := RolesFromContext(ctx)
			if hasRole(roles, RoleAdmin) || hasRole(roles, RoleGovernment) {
				return next(c)
			}
			own := HospitalIDFromContext(ctx)
			if own == "" || strings.EqualFold(own, c.Param(param)) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "access to this hospital is not permitted")
		}
	}
}
