package app

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotVerified is returned when an NGO signs in before admin approval.
	ErrNotVerified = errors.New("ngo registration is not verified yet")
)
