/*
errors.go - Error taxonomy for the guest ledger

PURPOSE:
  All error types in one place. The taxonomy maps directly onto the
  HTTP boundary:
    ValidationError -> 400 (caller-correctable input)
    ErrNotFound     -> 404 (referenced guest_id absent)
    ErrConflict     -> 409 (duplicate guest_id on create)
    StoreError      -> 500 (unexpected storage failure)

PROPAGATION POLICY:
  Validation errors are raised before any storage access and never
  retried. Storage failures are recorded best-effort in the error log
  and re-returned unchanged - no automatic write retry (retrying a
  transactional statement risks double-apply). A not-found raised by a
  nested lookup inside a larger operation propagates as-is.

USAGE:
  if errors.Is(err, guest.ErrNotFound) { ... }

  var verr *guest.ValidationError
  if errors.As(err, &verr) {
      for _, d := range verr.Details { ... }
  }

SEE ALSO:
  - validate.go: Produces ValidationError values
  - store/sqlite: Produces ErrNotFound/ErrConflict/StoreError
*/
package guest

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced guest_id does not exist.
	ErrNotFound = errors.New("guest not found")

	// ErrConflict is returned when creating a guest whose id is taken.
	ErrConflict = errors.New("guest already exists")
)

// =============================================================================
// FIELD-LEVEL VALIDATION ERRORS
// =============================================================================

// Error codes carried by FieldError. Kept as plain strings so callers can
// branch on them without importing anything beyond this package.
const (
	CodeRequiredField   = "REQUIRED_FIELD"
	CodeInvalidType     = "INVALID_TYPE"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeInvalidRange    = "INVALID_RANGE"
	CodeFieldNotAllowed = "FIELD_NOT_ALLOWED"
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError aggregates every field failure of one request instead of
// stopping at the first, so callers can surface all problems at once.
type ValidationError struct {
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d field error(s))", e.Message, len(e.Details))
}

// NewValidationError builds a ValidationError with optional details.
func NewValidationError(message string, details ...FieldError) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// HasField reports whether the error carries a detail for the given field.
func (e *ValidationError) HasField(field string) bool {
	for _, d := range e.Details {
		if d.Field == field {
			return true
		}
	}
	return false
}

// =============================================================================
// STORAGE ERRORS
// =============================================================================

// StoreError wraps an unexpected storage-engine failure with the operation
// that produced it. The raw driver text stays inside Err and must not be
// serialized to untrusted callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsNotFound reports whether err indicates a missing guest.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err indicates a duplicate guest_id.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether the caller can correct the failure.
func IsClientError(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err)
}
