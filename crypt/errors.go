package crypt

import (
	"errors"
	"fmt"
)

// ErrInvalidPassword is matched by errors returned when neither the owner
// nor the user password check accepts a password.
var ErrInvalidPassword = errors.New("invalid password")

// ErrUnsupported is matched by errors for encryption schemes this package
// cannot handle.
var ErrUnsupported = errors.New("unsupported encryption")

// InvalidPasswordError is returned by [Handler.AuthenticatePassword]. The
// handler stays usable, so callers may prompt for another password and
// retry.
type InvalidPasswordError struct {
	ID       []byte // first element of the document ID
	Revision int
}

func (e *InvalidPasswordError) Error() string {
	return fmt.Sprintf("invalid password for revision %d security handler", e.Revision)
}

func (e *InvalidPasswordError) Is(target error) bool { return target == ErrInvalidPassword }

// UnsupportedError names an encryption feature that cannot be handled.
type UnsupportedError struct {
	What string
}

func (e *UnsupportedError) Error() string {
	return "unsupported encryption: " + e.What
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

func unsupported(format string, args ...interface{}) error {
	return &UnsupportedError{What: fmt.Sprintf(format, args...)}
}
