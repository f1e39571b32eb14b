package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == "admin" {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// RequireScope returns middleware that checks for a "resource.operation"
// scope such as "careplan.write".
func RequireScope(resource, operation string) echo.MiddlewareFunc {
	required := resource + "." + operation
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, scope := range ScopesFromContext(c.Request().Context()) {
				if matchScope(scope, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required scope: %s", required))
		}
	}
}

// matchScope reports whether granted covers required. Either half of the
// granted scope may be "*": "*.*" matches everything, "careplan.*" any
// operation on care plans.
func matchScope(granted, required string) bool {
	if granted == required {
		return true
	}

	gRes, gOp, ok := strings.Cut(granted, ".")
	if !ok {
		return false
	}
	rRes, rOp, ok := strings.Cut(required, ".")
	if !ok {
		return false
	}

	resMatch := gRes == rRes || gRes == "*"
	opMatch := gOp == rOp || gOp == "*"
	return resMatch && opMatch
}
