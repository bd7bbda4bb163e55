package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// Capability names an operation class checked at the request boundary.
type Capability string

const (
	CapTriageSelf   Capability = "triage:self"
	CapCatalogRead  Capability = "catalog:read"
	CapCatalogWrite Capability = "catalog:write"
)

var roleCapabilities = map[string][]Capability{
	RolePatient: {CapTriageSelf, CapCatalogRead},
	RoleDoctor:  {CapCatalogRead},
	RoleAdmin:   {CapCatalogRead, CapCatalogWrite},
}

// HasCapability reports whether any of roles grants want.
func HasCapability(roles []string, want Capability) bool {
	for _, r := range roles {
		for _, c := range roleCapabilities[r] {
			if c == want {
				return true
			}
		}
	}
	return false
}

// Require returns middleware that rejects callers lacking the capability.
func Require(want Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasCapability(RolesFromContext(c.Request().Context()), want) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}
