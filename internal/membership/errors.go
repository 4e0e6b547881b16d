// internal/membership/errors.go
package membership

import "errors"

var (
	ErrNotFound           = errors.New("member not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrConflict           = errors.New("member was modified concurrently")
	ErrValidation         = errors.New("validation failed")
)
