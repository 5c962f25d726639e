package shared

import "errors"

var (
	ErrNotImplemented = errors.New("not implemented")

	// Configuration errors
	ErrMissingConfig      = errors.New("configuration not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Authentication errors
	ErrAuth             = errors.New("credential rejected by provider")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnauthorized     = errors.New("record belongs to another user")

	// Provider errors
	ErrAPIRequest        = errors.New("API request failed")
	ErrRemoteUnavailable = errors.New("remote provider unavailable")

	// Record errors
	ErrNotFound        = errors.New("not found")
	ErrAlreadyImported = errors.New("remote playlist already imported")
	ErrNotLinked       = errors.New("playlist is not linked to a remote playlist")
	ErrAlreadyLinked   = errors.New("playlist is already linked to a remote playlist")
	ErrDuplicate       = errors.New("record already exists")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)
