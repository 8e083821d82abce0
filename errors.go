package found

import "fmt"

// EngineError carries a nonzero code returned by the engine (spec §7). The
// harness inspects Retryable to decide whether to loop; every other
// consumer should treat it as opaque and propagate it with %w.
type EngineError struct {
	Code        int
	Description string
	Retryable   bool
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("found: engine error %d: %s", e.Code, e.Description)
}

// UsageError is a fatal, non-retryable caller mistake: wrong arity, a
// missing active change id in a VN-store mutation, a Transactional scope
// that is neither a Database nor a Transaction, or a malformed
// versionstamped atomic op (spec §7). An all-0xFF argument to NextPrefix
// is reported as tuple.ErrAllFF, and an API-version mismatch as
// VersionHandshakeError.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return "found: usage error: " + e.Message }

// DataError is a fatal error about the data itself: a missing B-store blob,
// or an N-store pattern that no covering permutation resolves (a bug
// indicator, not a user error; spec §4.3, §7).
type DataError struct {
	Message string
}

func (e *DataError) Error() string { return "found: data error: " + e.Message }

// VersionHandshakeError means the installed engine library does not
// support the API version this adapter requires (spec §6.1, code 2203).
type VersionHandshakeError struct {
	Requested, MaxSupported int
}

func (e *VersionHandshakeError) Error() string {
	return fmt.Sprintf("found: engine does not support API version %d (max supported %d)", e.Requested, e.MaxSupported)
}

// apiVersionNotSupported is the engine's well-known code for "requested API
// version is not supported by the installed client library" (spec §6.1).
const apiVersionNotSupported = 2203
