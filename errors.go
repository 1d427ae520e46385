package certgen

import "errors"

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	// ErrConfig reports a missing or malformed environment file or setting.
	ErrConfig = errors.New("config error")
	// ErrParse reports a malformed specification document.
	ErrParse = errors.New("parse error")
	// ErrCrypto reports a key generation, encoding or signing failure.
	ErrCrypto = errors.New("crypto error")
	// ErrIO reports a directory, file or history store failure.
	ErrIO = errors.New("io error")
)
