package ring

import "errors"

var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCode        = errors.New("invalid two-factor code")
	ErrCodeExpired        = errors.New("two-factor prompt expired")
	ErrRefreshRejected    = errors.New("refresh rejected")

	// Command errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrCommandFailed     = errors.New("command failed")
)
