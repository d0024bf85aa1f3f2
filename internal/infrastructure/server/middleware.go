package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	httpHandlers "github.com/osamaflash/catalog/internal/adapters/http"
)

// adminGuard requires a valid bearer token for admin actions when
// security.require_admin_token is set. Other actions pass through.
func (s *Server) adminGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			action := c.QueryParam("action")
			if !s.config.Security.RequireAdminToken || !httpHandlers.IsAdminAction(action) {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				s.logger.LogSecurityEvent("missing_admin_token", c.RealIP(), map[string]interface{}{
					"action": action,
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			claims, err := s.admin.ValidateToken(tokenString)
			if err != nil {
				s.logger.LogSecurityEvent("invalid_admin_token", c.RealIP(), map[string]interface{}{
					"action": action,
					"error":  err.Error(),
				})
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set("admin_token_id", claims.TokenID)

			return next(c)
		}
	}
}
