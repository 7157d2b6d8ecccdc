// Package errors defines the error taxonomy shared by every component.
// Components return these sentinels (possibly wrapped); only the server
// loop decides what a client gets to see.
package errors

import "fmt"

var (
	// ErrAuthFailure covers unknown login, wrong credential and inactive
	// accounts alike, so callers cannot probe for existing logins.
	ErrAuthFailure        = fmt.Errorf("authentication failed")
	ErrDuplicateLogin     = fmt.Errorf("login already taken")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrProtocolViolation  = fmt.Errorf("protocol violation")
	ErrAdmissionRefused   = fmt.Errorf("connection limit reached")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrInvalidCredential  = fmt.Errorf("credential does not meet the requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
