package imagecodec

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is matched by every [*UnsupportedFormatError].
var ErrUnsupportedFormat = errors.New("unsupported image format")

// UnsupportedFormatError reports an image that is well formed but uses a
// feature this package cannot convert.
type UnsupportedFormatError struct {
	Format string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported %s image", e.Format)
	}
	return fmt.Sprintf("unsupported %s image: %s", e.Format, e.Reason)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

func unsupported(format, reason string, args ...interface{}) error {
	return &UnsupportedFormatError{Format: format, Reason: fmt.Sprintf(reason, args...)}
}

// FormatError reports malformed image data.
type FormatError struct {
	Format string
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s image: %s", e.Format, e.Msg)
}

func invalid(format, msg string, args ...interface{}) error {
	return &FormatError{Format: format, Msg: fmt.Sprintf(msg, args...)}
}
