package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrTokenConflict is returned by the store when a write collides with the
	// uniqueness constraint on link tokens. The renewal service retries with
	// fresh randomness; everyone else surfaces it.
	ErrTokenConflict = errors.New("renewal token conflict")

	// ErrTokenUsed is returned by the store when a conditional consume loses
	// the race against another renewal carrying the same token.
	ErrTokenUsed = errors.New("renewal token already used")

	// ErrTokenExhausted means token generation kept colliding after the retry
	// budget ran out. Server-side fault, not a user error.
	ErrTokenExhausted = errors.New("could not generate a unique renewal token")

	// ErrInvalidFormat is returned for malformed duration values in configuration.
	ErrInvalidFormat = errors.New("invalid duration format")

	// ErrMissingConfig is returned at startup when a required setting is absent.
	ErrMissingConfig = errors.New("missing required configuration")

	// ErrMissingExpiration is returned when a renewal email is requested for an
	// account that has no tracked expiration.
	ErrMissingExpiration = errors.New("account has no expiration time")
)
