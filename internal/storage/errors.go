package storage

import "errors"

// ErrNotFound is returned when a sweep record does not exist.
var ErrNotFound = errors.New("sweep record not found")

// ErrAlreadyExists is returned when a sweep record with the same ID is already stored.
var ErrAlreadyExists = errors.New("sweep record already exists")

// ErrInvalidLimit is returned when a listing is requested with a non-positive limit.
var ErrInvalidLimit = errors.New("limit must be positive")
