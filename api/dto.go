/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP boundary. These decouple the domain model
  from the wire contract: amounts travel as decimal strings, timestamps
  as RFC3339, and error payloads carry a stable code plus optional
  field-level details.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Wrappers around lists/pages

VALIDATION:
  None here. DTOs are pure data carriers; validation belongs to the
  guest package validators.

SEE ALSO:
  - handlers.go: Uses these types
  - guest/types.go: The domain model behind them
*/
package api

import (
	"time"

	"github.com/angkor/guestbook/guest"
)

// =============================================================================
// GUEST RESPONSES
// =============================================================================

// GuestDTO represents a guest in API responses.
type GuestDTO struct {
	GuestID       string  `json:"guest_id"`
	EnglishName   *string `json:"english_name"`
	KhmerName     *string `json:"khmer_name"`
	AmountKHR     string  `json:"amount_khr"`
	AmountUSD     string  `json:"amount_usd"`
	PaymentMethod *string `json:"payment_method"`
	GuestOf       string  `json:"guest_of"`
	IsDuplicate   bool    `json:"is_duplicate"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toGuestDTO(g *guest.Guest) GuestDTO {
	dto := GuestDTO{
		GuestID:     g.GuestID,
		EnglishName: g.EnglishName,
		KhmerName:   g.KhmerName,
		AmountKHR:   g.AmountKHR.String(),
		AmountUSD:   g.AmountUSD.String(),
		GuestOf:     string(g.GuestOf),
		IsDuplicate: g.IsDuplicate,
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   g.UpdatedAt.Format(time.RFC3339),
	}
	if g.PaymentMethod != nil {
		m := string(*g.PaymentMethod)
		dto.PaymentMethod = &m
	}
	return dto
}

func toGuestDTOs(guests []guest.Guest) []GuestDTO {
	dtos := make([]GuestDTO, len(guests))
	for i := range guests {
		dtos[i] = toGuestDTO(&guests[i])
	}
	return dtos
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Guests     []GuestDTO `json:"guests"`
	TotalCount int        `json:"total_count"`
	Query      string     `json:"query"`
	SearchType string     `json:"search_type"`
	ElapsedMS  float64    `json:"elapsed_ms"`
}

// DeleteResponse acknowledges a delete.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
	Hard    bool `json:"hard"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the uniform error payload. Details are present only
// for validation failures.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Code    string             `json:"code"`
	Details []guest.FieldError `json:"details,omitempty"`
}
