/*
service.go - Stateless orchestration over the repository

PURPOSE:
  The service is the system boundary consumed by the HTTP collaborator.
  It validates every request before storage is touched, delegates to the
  repository, and canonicalizes every guest it returns.

RESPONSIBILITIES:
  1. Validation - per-request validators from validate.go
  2. Blank-id guard on every by-id operation
  3. Normalization - tolerate heterogeneous rows coming back from storage
  4. Slow-search warning (>200ms) without failing the request

STATE MACHINE:
  unpaid -> paid      via CheckInGuest or a create with an initial amount
  paid   -> paid      repeated check-ins overwrite, never accumulate
  active -> inactive  via soft delete (is_duplicate=true)

  There is deliberately no paid -> unpaid transition and no reactivation
  of a soft-deleted guest.

SEE ALSO:
  - store/sqlite: Repository implementation
  - api/handlers.go: The external caller
*/
package guest

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SlowSearchThresholdMS is the elapsed-time watermark above which a search
// is logged as slow. The request still succeeds.
const SlowSearchThresholdMS = 200.0

// QuickSearchLimit is the fixed page size of QuickSearch.
const QuickSearchLimit = 20

// =============================================================================
// REPOSITORY CONTRACT
// =============================================================================

// Repository is the storage contract the service depends on. All
// multi-statement writes behind these methods are atomic.
type Repository interface {
	CreateGuest(ctx context.Context, req *CreateGuestRequest) (*Guest, error)
	GetGuestByID(ctx context.Context, id string) (*Guest, error)
	ListGuests(ctx context.Context, f Filters) ([]Guest, error)
	UpdateGuest(ctx context.Context, id string, patch *GuestPatch) (*Guest, error)
	CheckInGuest(ctx context.Context, id string, req *CheckInRequest) (*Guest, error)
	DeleteGuest(ctx context.Context, id string, soft bool) error
	SearchGuests(ctx context.Context, req SearchRequest) (*SearchResult, error)
	GetStatistics(ctx context.Context) (*Statistics, error)
}

// SlipRenderer turns a paid guest into a QR payment-slip image.
type SlipRenderer interface {
	Render(g *Guest) ([]byte, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service validates requests, delegates to the repository and normalizes
// results. It holds no persistent state of its own.
type Service struct {
	repo  Repository
	slips SlipRenderer
	log   zerolog.Logger
}

// NewService creates a service on top of the given repository. The slip
// renderer may be nil when QR slips are not needed (tests, CLI tools).
func NewService(repo Repository, slips SlipRenderer, log zerolog.Logger) *Service {
	return &Service{repo: repo, slips: slips, log: log}
}

// CreateGuest registers a new guest after full request validation.
func (s *Service) CreateGuest(ctx context.Context, req *CreateGuestRequest) (*Guest, error) {
	if err := ValidateCreate(req); err != nil {
		return nil, err
	}
	g, err := s.repo.CreateGuest(ctx, req)
	if err != nil {
		return nil, err
	}
	return Normalize(g), nil
}

// GetGuestByID fetches one guest by exact id.
func (s *Service) GetGuestByID(ctx context.Context, id string) (*Guest, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	g, err := s.repo.GetGuestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return Normalize(g), nil
}

// GetAllGuests lists guests under the given filters. Duplicates are NOT
// excluded implicitly; callers filter them explicitly.
func (s *Service) GetAllGuests(ctx context.Context, f Filters) ([]Guest, error) {
	guests, err := s.repo.ListGuests(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range guests {
		Normalize(&guests[i])
	}
	return guests, nil
}

// UpdateGuest applies a partial update to one guest.
func (s *Service) UpdateGuest(ctx context.Context, id string, patch *GuestPatch) (*Guest, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := ValidateUpdate(patch); err != nil {
		return nil, err
	}
	g, err := s.repo.UpdateGuest(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return Normalize(g), nil
}

// CheckInGuest records or overwrites a guest's payment.
func (s *Service) CheckInGuest(ctx context.Context, id string, req *CheckInRequest) (*Guest, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := ValidateCheckIn(req); err != nil {
		return nil, err
	}
	g, err := s.repo.CheckInGuest(ctx, id, req)
	if err != nil {
		return nil, err
	}
	return Normalize(g), nil
}

// DeleteGuest removes a guest. Soft delete (the default at the HTTP layer)
// marks the row inactive and keeps its history; hard delete removes the row
// and its activity trail. Returns true when a row was removed.
func (s *Service) DeleteGuest(ctx context.Context, id string, soft bool) (bool, error) {
	if err := requireID(id); err != nil {
		return false, err
	}
	if err := s.repo.DeleteGuest(ctx, id, soft); err != nil {
		return false, err
	}
	return true, nil
}

// SearchGuests runs a validated, paginated search. Searches slower than
// SlowSearchThresholdMS are logged but never failed.
func (s *Service) SearchGuests(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := ValidateSearch(&req); err != nil {
		return nil, err
	}
	res, err := s.repo.SearchGuests(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.ElapsedMS > SlowSearchThresholdMS {
		s.log.Warn().
			Str("query", req.Query).
			Str("search_type", string(req.SearchType)).
			Float64("elapsed_ms", res.ElapsedMS).
			Msg("slow guest search")
	}
	for i := range res.Guests {
		Normalize(&res.Guests[i])
	}
	return res, nil
}

// QuickSearch is SearchGuests with a fixed first page of 20.
func (s *Service) QuickSearch(ctx context.Context, query string, searchType SearchType) ([]Guest, error) {
	res, err := s.SearchGuests(ctx, SearchRequest{
		Query:      query,
		SearchType: searchType,
		Limit:      QuickSearchLimit,
		Offset:     0,
	})
	if err != nil {
		return nil, err
	}
	return res.Guests, nil
}

// GetStatistics returns the aggregate view over non-duplicate guests.
func (s *Service) GetStatistics(ctx context.Context) (*Statistics, error) {
	return s.repo.GetStatistics(ctx)
}

// PaymentSlip renders the QR payment slip for a checked-in guest.
// Returns a validation error when the service has no slip renderer.
func (s *Service) PaymentSlip(ctx context.Context, id string) ([]byte, error) {
	if s.slips == nil {
		return nil, NewValidationError("QR payment slips are not enabled")
	}
	g, err := s.GetGuestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.HasPayment() {
		return nil, NewValidationError("Guest has no recorded payment")
	}
	return s.slips.Render(g)
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize canonicalizes a guest row coming back from storage: missing
// timestamps are backfilled with the current time. Amounts default to zero
// through the decimal zero value and payment_method stays nil until paid.
// Returns its argument for call-site convenience.
func Normalize(g *Guest) *Guest {
	if g == nil {
		return nil
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = now
	}
	return g
}

// requireID rejects blank or whitespace-only identifiers before any
// storage round trip.
func requireID(id string) error {
	if isBlankString(id) {
		return NewValidationError("Guest ID is required", FieldError{
			Field:   "guest_id",
			Message: "Guest ID is required",
			Code:    CodeRequiredField,
		})
	}
	return nil
}

func isBlankString(s string) bool {
	return strings.TrimSpace(s) == ""
}
