package service

import "errors"

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidDisplayName   = errors.New("display name must be 1-64 characters")
	ErrInternalServer       = errors.New("internal server error")
	ErrInvalidAction        = errors.New("invalid action data")
	ErrForbiddenAction      = errors.New("action author does not match connection user")
	ErrRateLimited          = errors.New("too many actions, slow down")
)
