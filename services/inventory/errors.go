package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedReport is returned when a report fails normalization. No state changes.
	ErrMalformedReport = errors.New("malformed report")
	// ErrIdentityConflict means more than one canonical asset carries the same sn.
	// It needs manual remediation and is never resolved automatically.
	ErrIdentityConflict = errors.New("identity conflict")
	// ErrNoPendingAsset is returned by approve/reject when nothing is staged for the sn.
	ErrNoPendingAsset = errors.New("no pending asset")
	// ErrTransactionFailure wraps storage failures. The transaction was rolled back.
	ErrTransactionFailure = errors.New("transaction failure")
	// ErrNotFound is returned by read operations.
	ErrNotFound = errors.New("not found")
	// ErrPrincipalRequired is returned when an approval decision names no principal.
	ErrPrincipalRequired = errors.New("principal is required")
)

// MalformedReportError points at the field that failed validation.
type MalformedReportError struct {
	Field  string
	Reason string
}

func (e *MalformedReportError) Error() string {
	return fmt.Sprintf("malformed report: %s: %s", e.Field, e.Reason)
}

func (e *MalformedReportError) Is(target error) bool {
	return target == ErrMalformedReport
}

func malformed(field, format string, args ...any) error {
	return &MalformedReportError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// isDomainError reports whether err already carries an engine outcome and
// must be returned to the caller as is.
func isDomainError(err error) bool {
	return errors.Is(err, ErrMalformedReport) ||
		errors.Is(err, ErrIdentityConflict) ||
		errors.Is(err, ErrNoPendingAsset) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPrincipalRequired) ||
		errors.Is(err, ErrTransactionFailure)
}

func txFailure(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}
