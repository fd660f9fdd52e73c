package service

import "errors"

// Error categories. Controllers map these to HTTP statuses.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("authentication failed")
)

// Error is a domain error whose message is safe to return to clients.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrEmailTaken          = newError(ErrConflict, "email is already registered")
	ErrReferralCodeExists  = newError(ErrConflict, "referral code already exists")
	ErrReferralCodeTaken   = newError(ErrConflict, "referral code is already in use")
	ErrWeakPassword        = newError(ErrValidation, "password does not meet policy requirements")
	ErrPasswordsMismatch   = newError(ErrValidation, "passwords do not match")
	ErrInvalidReferralCode = newError(ErrValidation, "invalid referral code")
	ErrExpiredReferralCode = newError(ErrValidation, "referral code has expired")
	ErrInvalidExpiry       = newError(ErrValidation, "expiry date must be in the future")
	ErrInvalidExtension    = newError(ErrValidation, "extension must be between 1 and 3650 days")

	ErrUserNotFound         = newError(ErrNotFound, "user not found")
	ErrReferralCodeNotFound = newError(ErrNotFound, "referral code not found")

	ErrInvalidCredentials = newError(ErrAuth, "incorrect email or password")
	ErrInvalidToken       = newError(ErrAuth, "invalid token")
	ErrTokenExpired       = newError(ErrAuth, "token has expired")
	ErrInvalidSignature   = newError(ErrInvalidToken, "invalid token signature")
	ErrMissingSubject     = newError(ErrInvalidToken, "token has no subject")
)
