package core

import (
	"errors"
	"fmt"
)

// ErrCorrupt is matched by every error reporting a document whose structure
// cannot be recovered, even after the repair scan.
var ErrCorrupt = errors.New("corrupt PDF document")

// ErrNoXRef is returned when no startxref marker can be found.
var ErrNoXRef = errors.New("startxref not found")

// CorruptError reports an unrecoverable structural problem at a byte offset.
type CorruptError struct {
	Pos int64
	Err error
}

func (e *CorruptError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("corrupt PDF at offset %d: %v", e.Pos, e.Err)
	}
	return fmt.Sprintf("corrupt PDF: %v", e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCorrupt) succeed for every CorruptError.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// SyntaxError reports input that matches no branch of the object grammar.
type SyntaxError struct {
	Pos int64
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func corrupt(pos int64, format string, args ...interface{}) error {
	return &CorruptError{Pos: pos, Err: fmt.Errorf(format, args...)}
}
