/*
validate.go - Request validators for the service layer

PURPOSE:
  One explicit validator per request type, each returning an aggregated
  list of field errors rather than stopping at the first failure. All
  validation happens before any storage access.

RULES:
  Create:   guest_id required, at least one display name, guest_of enum,
            non-negative amounts, payment method mandatory whenever any
            amount is positive
  Update:   non-empty patch, per-field type/range/enum checks
  Check-in: payment method mandatory, amounts non-negative; only the
            three payment fields are allowed in the payload
  Search:   non-blank query <= 100 chars, known search type,
            limit in [1,100], offset >= 0

FIELD WHITELISTS:
  Typed requests cannot carry stray fields, so whitelist enforcement for
  loosely-typed callers (JSON bodies) lives in ValidateFieldNames, fed
  with the raw key set by the HTTP layer.

SEE ALSO:
  - types.go: The request types
  - errors.go: FieldError codes
*/
package guest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxSearchQueryLen caps the raw query accepted by search validation and
// the repository-side sanitizer alike.
const MaxSearchQueryLen = 100

// Pagination bounds for search.
const (
	MinSearchLimit = 1
	MaxSearchLimit = 100
)

// =============================================================================
// FIELD WHITELISTS
// =============================================================================

var updateAllowedFields = map[string]bool{
	"english_name":   true,
	"khmer_name":     true,
	"amount_khr":     true,
	"amount_usd":     true,
	"payment_method": true,
	"guest_of":       true,
	"is_duplicate":   true,
}

var checkInAllowedFields = map[string]bool{
	"amount_khr":     true,
	"amount_usd":     true,
	"payment_method": true,
}

// ValidateFieldNames rejects payload keys outside the whitelist of the
// given operation ("update" or "checkin"). Used by callers that decode
// loosely-typed payloads before binding them to a request struct.
func ValidateFieldNames(op string, keys []string) error {
	allowed := updateAllowedFields
	if op == "checkin" {
		allowed = checkInAllowedFields
	}

	var details []FieldError
	for _, k := range keys {
		if !allowed[k] {
			details = append(details, FieldError{
				Field:   k,
				Message: fmt.Sprintf("Field '%s' is not allowed for %s", k, op),
				Code:    CodeFieldNotAllowed,
			})
		}
	}
	if len(details) > 0 {
		return NewValidationError("Invalid fields in request", details...)
	}
	return nil
}

// =============================================================================
// PER-REQUEST VALIDATORS
// =============================================================================

// ValidateCreate checks a CreateGuestRequest. Required-field failures and
// amount/payment failures are collected together into one ValidationError.
func ValidateCreate(req *CreateGuestRequest) error {
	var details []FieldError

	if strings.TrimSpace(req.GuestID) == "" {
		details = append(details, FieldError{
			Field:   "guest_id",
			Message: "Guest ID is required",
			Code:    CodeRequiredField,
		})
	}
	if isBlank(req.EnglishName) && isBlank(req.KhmerName) {
		details = append(details, FieldError{
			Field:   "english_name",
			Message: "At least one of english_name or khmer_name is required",
			Code:    CodeRequiredField,
		})
	}
	if !req.GuestOf.Valid() {
		details = append(details, FieldError{
			Field:   "guest_of",
			Message: "guest_of must be one of Bride, Groom, Bride_Parents, Groom_Parents",
			Code:    CodeInvalidValue,
			Value:   string(req.GuestOf),
		})
	}

	details = append(details, validateAmount("amount_khr", req.AmountKHR)...)
	details = append(details, validateAmount("amount_usd", req.AmountUSD)...)

	if (req.AmountKHR.IsPositive() || req.AmountUSD.IsPositive()) && req.PaymentMethod == nil {
		details = append(details, FieldError{
			Field:   "payment_method",
			Message: "Payment method is required when amount is provided",
			Code:    CodeRequiredField,
		})
	}
	if req.PaymentMethod != nil && !req.PaymentMethod.Valid() {
		details = append(details, FieldError{
			Field:   "payment_method",
			Message: "payment_method must be QR_Code or Cash",
			Code:    CodeInvalidValue,
			Value:   string(*req.PaymentMethod),
		})
	}

	if len(details) > 0 {
		return NewValidationError("Guest validation failed", details...)
	}
	return nil
}

// ValidateUpdate checks a GuestPatch. An empty patch is rejected outright;
// set fields are checked individually and failures aggregated.
func ValidateUpdate(patch *GuestPatch) error {
	if patch == nil || patch.IsEmpty() {
		return NewValidationError("At least one field must be provided for update")
	}

	var details []FieldError

	if patch.EnglishName != nil && strings.TrimSpace(*patch.EnglishName) == "" {
		details = append(details, FieldError{
			Field:   "english_name",
			Message: "english_name cannot be empty",
			Code:    CodeInvalidValue,
		})
	}
	if patch.KhmerName != nil && strings.TrimSpace(*patch.KhmerName) == "" {
		details = append(details, FieldError{
			Field:   "khmer_name",
			Message: "khmer_name cannot be empty",
			Code:    CodeInvalidValue,
		})
	}
	if patch.AmountKHR != nil {
		details = append(details, validateAmount("amount_khr", *patch.AmountKHR)...)
	}
	if patch.AmountUSD != nil {
		details = append(details, validateAmount("amount_usd", *patch.AmountUSD)...)
	}
	if patch.PaymentMethod != nil && !patch.PaymentMethod.Valid() {
		details = append(details, FieldError{
			Field:   "payment_method",
			Message: "payment_method must be QR_Code or Cash",
			Code:    CodeInvalidValue,
			Value:   string(*patch.PaymentMethod),
		})
	}
	if patch.GuestOf != nil && !patch.GuestOf.Valid() {
		details = append(details, FieldError{
			Field:   "guest_of",
			Message: "guest_of must be one of Bride, Groom, Bride_Parents, Groom_Parents",
			Code:    CodeInvalidValue,
			Value:   string(*patch.GuestOf),
		})
	}

	if len(details) > 0 {
		return NewValidationError("Guest validation failed", details...)
	}
	return nil
}

// ValidateCheckIn checks a CheckInRequest. The payment method is mandatory
// for a check-in: recording a gift without knowing how it arrived is not
// a valid state.
func ValidateCheckIn(req *CheckInRequest) error {
	var details []FieldError

	if req.PaymentMethod == "" {
		details = append(details, FieldError{
			Field:   "payment_method",
			Message: "Payment method is required for check-in",
			Code:    CodeRequiredField,
		})
	} else if !req.PaymentMethod.Valid() {
		details = append(details, FieldError{
			Field:   "payment_method",
			Message: "payment_method must be QR_Code or Cash",
			Code:    CodeInvalidValue,
			Value:   string(req.PaymentMethod),
		})
	}

	details = append(details, validateAmount("amount_khr", req.AmountKHR)...)
	details = append(details, validateAmount("amount_usd", req.AmountUSD)...)

	if len(details) > 0 {
		return NewValidationError("Check-in validation failed", details...)
	}
	return nil
}

// ValidateSearch checks a SearchRequest. A zero limit means "use default"
// and passes; explicit limits must sit inside [1,100].
func ValidateSearch(req *SearchRequest) error {
	var details []FieldError

	if strings.TrimSpace(req.Query) == "" {
		details = append(details, FieldError{
			Field:   "query",
			Message: "Search query is required",
			Code:    CodeRequiredField,
		})
	} else if utf8.RuneCountInString(req.Query) > MaxSearchQueryLen {
		details = append(details, FieldError{
			Field:   "query",
			Message: fmt.Sprintf("Search query must be at most %d characters", MaxSearchQueryLen),
			Code:    CodeInvalidRange,
		})
	}
	if !req.SearchType.Valid() {
		details = append(details, FieldError{
			Field:   "search_type",
			Message: "search_type must be guest_id, english_name or khmer_name",
			Code:    CodeInvalidValue,
			Value:   string(req.SearchType),
		})
	}
	if req.Limit != 0 && (req.Limit < MinSearchLimit || req.Limit > MaxSearchLimit) {
		details = append(details, FieldError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between %d and %d", MinSearchLimit, MaxSearchLimit),
			Code:    CodeInvalidRange,
			Value:   req.Limit,
		})
	}
	if req.Offset < 0 {
		details = append(details, FieldError{
			Field:   "offset",
			Message: "offset cannot be negative",
			Code:    CodeInvalidRange,
			Value:   req.Offset,
		})
	}

	if len(details) > 0 {
		return NewValidationError("Search validation failed", details...)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// validateAmount rejects negative amounts with a per-currency message.
// The INVALID_TYPE code mirrors the loosely-typed origin of these checks,
// where a negative value and a non-numeric one failed the same gate.
func validateAmount(field string, v decimal.Decimal) []FieldError {
	if v.IsNegative() {
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("%s cannot be negative", field),
			Code:    CodeInvalidType,
			Value:   v.String(),
		}}
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
