package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/dto"
	"github.com/vibast-solutions/ms-go-referral/app/middleware"
	"github.com/vibast-solutions/ms-go-referral/app/service"
	"github.com/vibast-solutions/ms-go-referral/app/types"
)

type AuthController struct {
	authService service.AuthService
}

func NewAuthController(authService service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

func (c *AuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return badRequest(ctx, "invalid request body")
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Register validation failed")
		return badRequest(ctx, err.Error())
	}

	entry := logrus.WithField("email", req.Email)
	entry.Info("Register request received")
	result, err := c.authService.Register(ctx.Request().Context(), req)
	if err != nil {
		return writeError(ctx, err, entry.WithField("action", "register"))
	}

	entry.Info("User registered")
	return ctx.JSON(http.StatusCreated, result)
}

func (c *AuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return badRequest(ctx, "invalid request body")
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return badRequest(ctx, err.Error())
	}

	entry := logrus.WithField("email", req.Email)
	entry.Info("Login request received")
	result, err := c.authService.Login(ctx.Request().Context(), req)
	if err != nil {
		// Bad credentials are a client error here, not an auth challenge.
		if errors.Is(err, service.ErrInvalidCredentials) {
			entry.Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		return writeError(ctx, err, entry.WithField("action", "login"))
	}

	entry.Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *AuthController) RefreshToken(ctx echo.Context) error {
	req, err := types.NewRefreshTokenRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind refresh token request")
		return badRequest(ctx, "invalid request body")
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Refresh token validation failed")
		return badRequest(ctx, err.Error())
	}

	logrus.Info("Refresh token request received")
	result, err := c.authService.RefreshToken(ctx.Request().Context(), req)
	if err != nil {
		return writeError(ctx, err, logrus.WithField("action", "refresh"))
	}

	logrus.Info("Refresh token successful")
	return ctx.JSON(http.StatusOK, result)
}

func (c *AuthController) Me(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		logrus.Warn("Me failed: missing user_id in context")
		return unauthorized(ctx)
	}

	result, err := c.authService.CurrentUser(ctx.Request().Context(), userID)
	if err != nil {
		return writeError(ctx, err, logrus.WithField("user_id", userID))
	}

	return ctx.JSON(http.StatusOK, result)
}
