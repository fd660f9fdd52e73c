package types

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
)

const TokenTypeBearer = "bearer"

type RegisterRequest struct {
	Email          string `json:"email" validate:"required,email,max=255"`
	Password       string `json:"password" validate:"required"`
	PasswordRepeat string `json:"password_repeat" validate:"required,eqfield=Password"`
	ReferralCode   string `json:"referral_code,omitempty" validate:"omitempty,max=64"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	var body RegisterRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RegisterRequest) Validate() error {
	return validateStruct(r)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	return validateStruct(r)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func NewRefreshTokenRequestFromContext(ctx echo.Context) (*RefreshTokenRequest, error) {
	var body RefreshTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RefreshTokenRequest) Validate() error {
	return validateStruct(r)
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type UserResponse struct {
	ID         uint64    `json:"id"`
	Email      string    `json:"email"`
	ReferredBy *uint64   `json:"referred_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewUserResponse(user *entity.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
	if referrerID, ok := user.ReferrerID(); ok {
		res.ReferredBy = &referrerID
	}
	return res
}
