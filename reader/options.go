package reader

import "log/slog"

// PasswordFunc is asked for a password when the document cannot be opened
// with the empty password or the one given by [WithPassword]. attempt
// counts from 1. Returning false gives up, and opening fails with the last
// password error.
type PasswordFunc func(attempt int) (password string, ok bool)

type options struct {
	password     string
	passwordFunc PasswordFunc
	logger       *slog.Logger
	repair       bool
}

func defaultOptions() options {
	return options{
		logger: slog.New(slog.DiscardHandler),
		repair: true,
	}
}

// Option configures a Reader.
type Option func(*options)

// WithPassword sets the password tried first on encrypted documents. It may
// be the user or the owner password.
func WithPassword(password string) Option {
	return func(o *options) {
		o.password = password
	}
}

// WithPasswordFunc sets a callback that supplies further passwords after
// the first one was rejected.
func WithPasswordFunc(fn PasswordFunc) Option {
	return func(o *options) {
		o.passwordFunc = fn
	}
}

// WithLogger sets the logger for recoverable problems in the file.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRepair controls whether a file with unusable cross-reference data is
// rebuilt by scanning (the default) or rejected.
func WithRepair(repair bool) Option {
	return func(o *options) {
		o.repair = repair
	}
}
