package core

import "errors"

// Sentinel errors the façade and CLI match with errors.Is. Every other
// failure is surfaced as a plain wrapped error; the core never retries.
var (
	// ErrUniquenessViolation fires when COUNT(*) != COUNT(DISTINCT key) on
	// either side and the caller did not assert AssumeUniqueKey.
	ErrUniquenessViolation = errors.New("core: key columns are not unique")

	// ErrSchemaIncompatible fires when the two segments' column sets or
	// declared types cannot be reconciled by canonicalisation.
	ErrSchemaIncompatible = errors.New("core: schemas are not diff-compatible")

	// ErrCancelled fires when the caller closed the diff iterator or
	// reached the configured row limit before the diff finished.
	ErrCancelled = errors.New("core: diff cancelled")

	// ErrUnsupportedDialect fires when a URI names a driver with no
	// registered dialect adapter.
	ErrUnsupportedDialect = errors.New("core: unsupported dialect")
)
