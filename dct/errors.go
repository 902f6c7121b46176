package dct

import "errors"

// ErrUnsupported is matched by every [UnsupportedError].
var ErrUnsupported = errors.New("dct: unsupported JPEG feature")

// FormatError reports that the input is not a valid JPEG stream.
type FormatError string

func (e FormatError) Error() string { return "dct: invalid JPEG: " + string(e) }

// UnsupportedError reports a valid JPEG stream that uses a feature this
// decoder does not implement, such as arithmetic coding.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "dct: unsupported JPEG feature: " + string(e) }

func (e UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

func formatError(msg string) error { return FormatError(msg) }
