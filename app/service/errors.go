package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-filedrop/app/types"
)

var (
	ErrValidation            = types.ErrValidation
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrNotVerified           = errors.New("email address not verified")
	ErrInvalidToken          = errors.New("invalid verification token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrSessionInvalid        = errors.New("session is invalid or expired")
	ErrNotFound              = errors.New("not found")
	ErrGone                  = errors.New("resource has expired")
	ErrStorage               = errors.New("storage failure")
	ErrBadRequest            = errors.New("bad request")
	ErrCodeSpaceExhausted    = errors.New("could not allocate a unique transfer code")
	ErrMailDelivery          = errors.New("mail delivery failed")
)
