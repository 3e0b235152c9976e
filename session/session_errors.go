package session

import "errors"

var (
	ErrNoPendingAttempt = errors.New("no pending login attempt")
	ErrNotAuthenticated = errors.New("not authenticated")
)
