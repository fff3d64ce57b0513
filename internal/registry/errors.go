package registry

import "errors"

// ErrInvalidCapacity is returned when a session is created outside the
// allowed participant range.
var ErrInvalidCapacity = errors.New("max participants must be between 5 and 50")

// ErrSessionNotFound is returned when an operation targets an unknown or
// expired session.
var ErrSessionNotFound = errors.New("session not found")

// ErrCapacityExceeded is returned when a join is attempted on a full session.
var ErrCapacityExceeded = errors.New("session is full")
