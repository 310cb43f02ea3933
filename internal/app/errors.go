package app

import "errors"

var (
	// ErrInvalidCredentials is shown to end users on failed logins and is
	// worded so it does not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect user id or password")

	ErrDuplicateUser             = errors.New("user id already exists")
	ErrUserIDAndPasswordRequired = errors.New("userId and password required")

	ErrAccountNotFound = errors.New("account not found")
	ErrShowNotFound    = errors.New("show not found")
	ErrQuizNotFound    = errors.New("quiz not found")

	ErrInvalidStatus     = errors.New("unknown show status")
	ErrInvalidTransition = errors.New("illegal show status transition")
)
