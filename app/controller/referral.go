package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/middleware"
	"github.com/vibast-solutions/ms-go-referral/app/service"
	"github.com/vibast-solutions/ms-go-referral/app/types"
)

type ReferralController struct {
	referralService service.ReferralCodeService
	now             func() time.Time
}

func NewReferralController(referralService service.ReferralCodeService) *ReferralController {
	return &ReferralController{referralService: referralService, now: time.Now}
}

func (c *ReferralController) Create(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewCreateReferralCodeRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind create referral code request")
		return badRequest(ctx, "invalid request body")
	}

	if err = req.Validate(c.now()); err != nil {
		logrus.WithField("user_id", userID).Debug("Create referral code validation failed")
		return badRequest(ctx, err.Error())
	}

	entry := logrus.WithField("user_id", userID)
	result, err := c.referralService.Create(ctx.Request().Context(), userID, req)
	if err != nil {
		return writeError(ctx, err, entry.WithField("action", "create_referral_code"))
	}

	entry.WithField("code_id", result.ID).Info("Referral code created")
	return ctx.JSON(http.StatusCreated, result)
}

func (c *ReferralController) Delete(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	entry := logrus.WithField("user_id", userID)
	if err := c.referralService.Delete(ctx.Request().Context(), userID); err != nil {
		return writeError(ctx, err, entry.WithField("action", "delete_referral_code"))
	}

	entry.Info("Referral code deleted")
	return ctx.NoContent(http.StatusNoContent)
}

func (c *ReferralController) Extend(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	req, err := types.NewExtendReferralCodeRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind extend referral code request")
		return badRequest(ctx, "invalid request body")
	}

	if err = req.Validate(); err != nil {
		return badRequest(ctx, err.Error())
	}

	entry := logrus.WithFields(logrus.Fields{"user_id": userID, "days": req.Days})
	result, err := c.referralService.Extend(ctx.Request().Context(), userID, req.Days)
	if err != nil {
		return writeError(ctx, err, entry.WithField("action", "extend_referral_code"))
	}

	entry.Info("Referral code extended")
	return ctx.JSON(http.StatusOK, result)
}

func (c *ReferralController) Deactivate(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return unauthorized(ctx)
	}

	entry := logrus.WithField("user_id", userID)
	result, err := c.referralService.Deactivate(ctx.Request().Context(), userID)
	if err != nil {
		return writeError(ctx, err, entry.WithField("action", "deactivate_referral_code"))
	}

	entry.Info("Referral code deactivated")
	return ctx.JSON(http.StatusOK, result)
}

func (c *ReferralController) GetByEmail(ctx echo.Context) error {
	email := strings.TrimSpace(ctx.Param("email"))
	if email == "" {
		return badRequest(ctx, "email is required")
	}

	result, err := c.referralService.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		return writeError(ctx, err, logrus.WithField("email", email))
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *ReferralController) ListReferrals(ctx echo.Context) error {
	referrerID, err := strconv.ParseUint(ctx.Param("referrer_id"), 10, 64)
	if err != nil || referrerID == 0 {
		return badRequest(ctx, "referrer_id must be a positive integer")
	}

	result, err := c.referralService.ListReferrals(ctx.Request().Context(), referrerID)
	if err != nil {
		return writeError(ctx, err, logrus.WithField("referrer_id", referrerID))
	}

	return ctx.JSON(http.StatusOK, result)
}
