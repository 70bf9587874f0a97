package models

import "errors"

// Audit error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidEventStructure marks schema validation failures. Recovered inside the
	// write path; never returned to business callers.
	ErrInvalidEventStructure = errors.New("invalid audit event structure")
	// ErrDecryptionFailure marks authentication-tag or checksum mismatches on read.
	// It means tampering or a wrong key, never "not found".
	ErrDecryptionFailure = errors.New("audit record decryption failed")
	// ErrPersistenceFailure marks transient store failures during flush.
	ErrPersistenceFailure = errors.New("audit persistence failed")
	// ErrConfiguration marks fatal startup configuration problems (missing key).
	ErrConfiguration = errors.New("audit configuration error")
)
