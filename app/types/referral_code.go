package types

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

type CreateReferralCodeRequest struct {
	// Code is generated when left empty.
	Code       string    `json:"code,omitempty" validate:"omitempty,alphanum,min=4,max=64"`
	ExpiryDate time.Time `json:"expiry_date"`
}

func NewCreateReferralCodeRequestFromContext(ctx echo.Context) (*CreateReferralCodeRequest, error) {
	var body CreateReferralCodeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *CreateReferralCodeRequest) Validate(now time.Time) error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.ExpiryDate.IsZero() {
		return errors.New("expiry_date is required")
	}
	if !r.ExpiryDate.After(now) {
		return errors.New("expiry_date must be in the future")
	}

	return nil
}

type ExtendReferralCodeRequest struct {
	Days int `json:"days" validate:"required,min=1,max=3650"`
}

func NewExtendReferralCodeRequestFromContext(ctx echo.Context) (*ExtendReferralCodeRequest, error) {
	var body ExtendReferralCodeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ExtendReferralCodeRequest) Validate() error {
	return validateStruct(r)
}

type ReferralCodeResponse struct {
	ID         uint64    `json:"id"`
	Code       string    `json:"code"`
	UserID     uint64    `json:"user_id"`
	ExpiryDate time.Time `json:"expiry_date"`
	IsActive   bool      `json:"is_active"`
}

func NewReferralCodeResponse(code *entity.ReferralCode, now time.Time) *ReferralCodeResponse {
	return &ReferralCodeResponse{
		ID:         code.ID,
		Code:       code.Code,
		UserID:     code.UserID,
		ExpiryDate: code.ExpiryDate,
		IsActive:   code.IsActive(now),
	}
}
