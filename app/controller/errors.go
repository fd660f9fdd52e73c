package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/dto"
	"github.com/vibast-solutions/ms-go-referral/app/service"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates a service error into a response. Unclassified errors
// are logged and hidden behind a generic message.
func writeError(ctx echo.Context, err error, entry *logrus.Entry) error {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		entry.WithError(err).Error("request failed")
		return ctx.JSON(status, dto.ErrorResponse{Error: "internal server error"})
	case http.StatusUnauthorized:
		ctx.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}

	entry.WithField("status", status).Warn(err.Error())
	return ctx.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: message})
}

func unauthorized(ctx echo.Context) error {
	ctx.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
}
