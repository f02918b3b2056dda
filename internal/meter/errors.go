package meter

import "errors"

var (
	// ErrInvalidInput indicates an empty or malformed user-supplied field
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateMeterNumber indicates another live meter already has the number
	ErrDuplicateMeterNumber = errors.New("a meter with this number already exists")

	// ErrNotFound indicates the requested meter or reading does not exist
	ErrNotFound = errors.New("not found")
)
