package session

import "errors"

// ErrAlreadyExists is returned when creating a session whose id is taken.
var ErrAlreadyExists = errors.New("session already exists")

// NotFoundError is returned when a session doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "session not found"
	}

	return "session not found: " + e.ID
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
