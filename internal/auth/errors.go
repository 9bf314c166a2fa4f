package auth

import "errors"

var (
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("authorization header missing")
	ErrMalformedToken     = errors.New("authorization header is not a bearer token")
	ErrUnauthenticated    = errors.New("invalid or expired session")
)
