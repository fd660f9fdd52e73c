package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/dto"
	"github.com/vibast-solutions/ms-go-referral/app/service"
)

// ContextKeyUserID holds the authenticated user id as a uint64.
const ContextKeyUserID = "user_id"

type accessTokenResolver interface {
	ResolveAccessToken(tokenString string) (uint64, error)
}

type AuthMiddleware struct {
	resolver accessTokenResolver
}

func NewAuthMiddleware(resolver accessTokenResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return unauthorized(c, "missing authorization header")
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			logrus.Debug("Invalid authorization header format")
			return unauthorized(c, "invalid authorization header format")
		}

		userID, err := m.resolver.ResolveAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				logrus.Debug("Expired access token")
				return unauthorized(c, service.ErrTokenExpired.Error())
			}
			logrus.WithError(err).Debug("Invalid access token")
			return unauthorized(c, service.ErrInvalidToken.Error())
		}

		c.Set(ContextKeyUserID, userID)
		return next(c)
	}
}

// UserID returns the id stored by RequireAuth.
func UserID(c echo.Context) (uint64, bool) {
	userID, ok := c.Get(ContextKeyUserID).(uint64)
	return userID, ok
}

func unauthorized(c echo.Context, message string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: message})
}
