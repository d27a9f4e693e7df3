package research

import (
	"fmt"
	"github.com/myrjola/deepresearch/internal/errors"
)

var (
	// ErrStateCorruption signals that a session is in a state its mode cannot produce. It is never auto-corrected.
	ErrStateCorruption = errors.NewSentinel("session state corruption")
	// ErrPersistFailed is returned once every persist attempt has failed.
	ErrPersistFailed = errors.NewSentinel("persist session snapshot")
	// ErrMalformedSnapshot signals an incomplete or invalid snapshot.
	ErrMalformedSnapshot = errors.NewSentinel("malformed session snapshot")

	ErrUnknownMode       = errors.NewSentinel("unknown research mode")
	ErrUnknownPhase      = errors.NewSentinel("unknown research phase")
	ErrEmptyQuery        = errors.NewSentinel("research query is empty")
	ErrFieldNotOwned     = errors.NewSentinel("phase does not own session field")
	ErrInvalidSource     = errors.NewSentinel("invalid source")
	ErrUnknownSource     = errors.NewSentinel("unknown source")
	ErrInvalidTransition = errors.NewSentinel("invalid verification status transition")
	ErrInvalidOutput     = errors.NewSentinel("phase output is not representable in a snapshot")
)

// SnapshotError reports the snapshot field that prevented a restore.
//
// It matches ErrMalformedSnapshot with errors.Is. Unrecognised enumeration values and phases outside the mode's
// subsequence additionally match ErrStateCorruption.
type SnapshotError struct {
	Field  string
	Reason string
	// corrupt marks enumeration and state violations.
	corrupt bool
	// Err is the underlying decoding error, if any.
	Err error
}

func (e *SnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("snapshot field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("snapshot field %q: %s", e.Field, e.Reason)
}

func (e *SnapshotError) Unwrap() []error {
	errs := []error{ErrMalformedSnapshot}
	if e.corrupt {
		errs = append(errs, ErrStateCorruption)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func missingField(field string) *SnapshotError {
	return &SnapshotError{Field: field, Reason: "required field is missing", corrupt: false, Err: nil}
}

func invalidField(field string, err error) *SnapshotError {
	return &SnapshotError{Field: field, Reason: "invalid value", corrupt: false, Err: err}
}

func unknownField(field string) *SnapshotError {
	return &SnapshotError{Field: field, Reason: "unknown field", corrupt: false, Err: nil}
}

func corruptField(field, reason string) *SnapshotError {
	return &SnapshotError{Field: field, Reason: reason, corrupt: true, Err: nil}
}
