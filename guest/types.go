/*
types.go - Core domain types for the guest gift ledger

PURPOSE:
  Defines the guest record, its enumerations, the append-only activity
  log entry, and the request/result types consumed by the service layer.

DESIGN NOTES:
  1. Amounts use decimal.Decimal - gifts are money, floats drift
  2. Optional columns are pointers (nil == SQL NULL)
  3. GuestPatch carries one optional field per mutable column; the patch
     type itself is the update whitelist
  4. IsDuplicate doubles as the soft-delete marker: a duplicate guest is
     excluded from searches and statistics but keeps its row and history

SEE ALSO:
  - validate.go: Per-request validators
  - service.go: Orchestration on top of the repository
  - store/sqlite: Persistence of these types
*/
package guest

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// PaymentMethod is how a gift was handed over.
type PaymentMethod string

const (
	PaymentQRCode PaymentMethod = "QR_Code"
	PaymentCash   PaymentMethod = "Cash"
)

// Valid reports whether m is one of the two accepted methods.
func (m PaymentMethod) Valid() bool {
	return m == PaymentQRCode || m == PaymentCash
}

// GuestOf is the wedding-side association of an invited party.
type GuestOf string

const (
	OfBride        GuestOf = "Bride"
	OfGroom        GuestOf = "Groom"
	OfBrideParents GuestOf = "Bride_Parents"
	OfGroomParents GuestOf = "Groom_Parents"
)

// Valid reports whether g names one of the four wedding sides.
func (g GuestOf) Valid() bool {
	switch g {
	case OfBride, OfGroom, OfBrideParents, OfGroomParents:
		return true
	}
	return false
}

// SearchType selects the lookup mode for SearchGuests.
type SearchType string

const (
	SearchByGuestID     SearchType = "guest_id"     // case-insensitive exact
	SearchByEnglishName SearchType = "english_name" // substring with ranking
	SearchByKhmerName   SearchType = "khmer_name"   // substring with ranking
)

// Valid reports whether t is a known search mode.
func (t SearchType) Valid() bool {
	return t == SearchByGuestID || t == SearchByEnglishName || t == SearchByKhmerName
}

// =============================================================================
// GUEST RECORD
// =============================================================================

// Guest is one gift-contribution record tied to one invited party.
// Amounts are cumulative per currency and not mutually exclusive.
type Guest struct {
	GuestID       string          `json:"guest_id"`
	EnglishName   *string         `json:"english_name"`
	KhmerName     *string         `json:"khmer_name"`
	AmountKHR     decimal.Decimal `json:"amount_khr"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	PaymentMethod *PaymentMethod  `json:"payment_method"`
	GuestOf       GuestOf         `json:"guest_of"`
	IsDuplicate   bool            `json:"is_duplicate"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasPayment reports whether any gift has been recorded for the guest.
func (g *Guest) HasPayment() bool {
	return g.AmountKHR.IsPositive() || g.AmountUSD.IsPositive()
}

// =============================================================================
// ACTIVITY LOG
// =============================================================================

// Action is the kind of guest-affecting event recorded in the audit trail.
type Action string

const (
	ActionCreated           Action = "created"
	ActionUpdated           Action = "updated"
	ActionDeleted           Action = "deleted"
	ActionCheckedIn         Action = "checked_in"
	ActionPaymentReceived   Action = "payment_received"
	ActionPaymentUpdated    Action = "payment_updated"
	ActionDuplicateMarked   Action = "duplicate_marked"
	ActionDuplicateResolved Action = "duplicate_resolved"
	ActionSearched          Action = "searched"
)

// SearchLogToken is the guest_id used for "searched" activity rows, which
// track analytics events rather than a specific guest.
const SearchLogToken = "SEARCH"

// ActivityEntry is one append-only audit row. Monetary changes carry
// before/after snapshots; rows are never updated or deleted except when a
// hard delete cascades a guest's history away.
type ActivityEntry struct {
	ID           string           `json:"id"`
	GuestID      string           `json:"guest_id"`
	Action       Action           `json:"action"`
	Detail       string           `json:"detail,omitempty"`
	OldAmountKHR *decimal.Decimal `json:"old_amount_khr,omitempty"`
	NewAmountKHR *decimal.Decimal `json:"new_amount_khr,omitempty"`
	OldAmountUSD *decimal.Decimal `json:"old_amount_usd,omitempty"`
	NewAmountUSD *decimal.Decimal `json:"new_amount_usd,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateGuestRequest registers a new invited party.
// At least one of the two names is required.
type CreateGuestRequest struct {
	GuestID       string          `json:"guest_id"`
	EnglishName   *string         `json:"english_name"`
	KhmerName     *string         `json:"khmer_name"`
	AmountKHR     decimal.Decimal `json:"amount_khr"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	PaymentMethod *PaymentMethod  `json:"payment_method"`
	GuestOf       GuestOf         `json:"guest_of"`
}

// GuestPatch is a partial update. Nil fields are left untouched; the set
// of fields on this struct is the mutable-column whitelist.
type GuestPatch struct {
	EnglishName   *string          `json:"english_name,omitempty"`
	KhmerName     *string          `json:"khmer_name,omitempty"`
	AmountKHR     *decimal.Decimal `json:"amount_khr,omitempty"`
	AmountUSD     *decimal.Decimal `json:"amount_usd,omitempty"`
	PaymentMethod *PaymentMethod   `json:"payment_method,omitempty"`
	GuestOf       *GuestOf         `json:"guest_of,omitempty"`
	IsDuplicate   *bool            `json:"is_duplicate,omitempty"`
}

// IsEmpty reports whether no field of the patch is set.
func (p *GuestPatch) IsEmpty() bool {
	return p.EnglishName == nil && p.KhmerName == nil &&
		p.AmountKHR == nil && p.AmountUSD == nil &&
		p.PaymentMethod == nil && p.GuestOf == nil && p.IsDuplicate == nil
}

// CheckInRequest records (or overwrites) a guest's payment.
// Amounts replace the stored values; they do not accumulate.
type CheckInRequest struct {
	AmountKHR     decimal.Decimal `json:"amount_khr"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// SearchRequest is a paginated lookup in one of the three search modes.
type SearchRequest struct {
	Query      string     `json:"query"`
	SearchType SearchType `json:"search_type"`
	Limit      int        `json:"limit"`  // 0 means default
	Offset     int        `json:"offset"` // 0-based
}

// Filters narrows ListGuests. Nil fields are not applied. Unlike search,
// listing does NOT exclude duplicates unless asked to.
type Filters struct {
	GuestOf       *GuestOf
	PaymentMethod *PaymentMethod
	HasPayment    *bool
	IsDuplicate   *bool
}

// =============================================================================
// RESULTS
// =============================================================================

// SearchResult is one page of matches plus the unpaginated total and the
// measured query time for caller-side performance monitoring.
type SearchResult struct {
	Guests     []Guest `json:"guests"`
	TotalCount int     `json:"total_count"`
	Query      string  `json:"query"`
	SearchType string  `json:"search_type"`
	ElapsedMS  float64 `json:"elapsed_ms"`
}

// Statistics is the aggregate view over non-duplicate guests.
type Statistics struct {
	TotalGuests     int             `json:"total_guests"`
	DuplicateGuests int             `json:"duplicate_guests"`
	PaidGuests      int             `json:"paid_guests"`
	PendingGuests   int             `json:"pending_guests"`
	TotalKHR        decimal.Decimal `json:"total_khr"`
	TotalUSD        decimal.Decimal `json:"total_usd"`
	ByPaymentMethod PaymentBreakdown `json:"by_payment_method"`
	ByGuestOf       GuestOfBreakdown `json:"by_guest_of"`
}

// PaymentBreakdown counts paid guests per method.
type PaymentBreakdown struct {
	QRCode int `json:"qr_code"`
	Cash   int `json:"cash"`
}

// GuestOfBreakdown counts guests per wedding side.
type GuestOfBreakdown struct {
	Bride        int `json:"bride"`
	Groom        int `json:"groom"`
	BrideParents int `json:"bride_parents"`
	GroomParents int `json:"groom_parents"`
}
