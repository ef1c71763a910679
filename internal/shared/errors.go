package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied indicates a chat outside the white list.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidCredentials indicates a rejected API token.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
