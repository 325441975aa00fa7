package backend

import "errors"

// ErrUnauthorized indicates the backend rejected the session credential.
var ErrUnauthorized = errors.New("backend: unauthorized")

// ErrNotFound indicates the addressed resource does not exist.
var ErrNotFound = errors.New("backend: not found")

// ErrInvalidInput indicates the backend rejected the request payload.
var ErrInvalidInput = errors.New("backend: invalid input")

// ErrUnavailable indicates the backend could not be reached or answered with
// a server-side failure.
var ErrUnavailable = errors.New("backend: unavailable")
