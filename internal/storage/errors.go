package storage

import "errors"

// ErrInvalidInput is returned when a record cannot be archived, such as an
// empty dedup key, which would silently collide under the primary key.
var ErrInvalidInput = errors.New("invalid input")
