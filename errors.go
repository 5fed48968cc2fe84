package asherah

import (
	"errors"
)

// Errors returned by Handle. Each wraps the underlying cause, so errors.Is also
// matches the engine's domain errors (for example a key-not-found class error).
var (
	ErrNotInitialized     = errors.New("asherah: not initialized")
	ErrAlreadyInitialized = errors.New("asherah: already initialized")
	ErrGetSessionFailed   = errors.New("asherah: get session failed")
	ErrEncryptFailed      = errors.New("asherah: encrypt failed")
	ErrDecryptFailed      = errors.New("asherah: decrypt failed")
	ErrBadConfig          = errors.New("asherah: bad config")
)

// Result codes reported by ResultCode.
const (
	ResultSuccess            = 0
	ResultNotInitialized     = -100
	ResultAlreadyInitialized = -101
	ResultGetSessionFailed   = -102
	ResultEncryptFailed      = -103
	ResultDecryptFailed      = -104
	ResultBadConfig          = -105
)

// ResultCode maps an error returned by Handle to its numeric result code.
// nil maps to ResultSuccess; errors Handle never returns map to -1.
func ResultCode(err error) int {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrNotInitialized):
		return ResultNotInitialized
	case errors.Is(err, ErrAlreadyInitialized):
		return ResultAlreadyInitialized
	case errors.Is(err, ErrGetSessionFailed):
		return ResultGetSessionFailed
	case errors.Is(err, ErrEncryptFailed):
		return ResultEncryptFailed
	case errors.Is(err, ErrDecryptFailed):
		return ResultDecryptFailed
	case errors.Is(err, ErrBadConfig):
		return ResultBadConfig
	default:
		return -1
	}
}
