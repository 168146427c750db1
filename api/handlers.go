/*
handlers.go - HTTP handlers for the guest ledger

PURPOSE:
  Exposes the guest service over REST. Handlers parse and type requests,
  delegate to the service layer, and serialize its results or errors.
  No business rule lives here.

ENDPOINTS:
  Guests:
    GET    /api/guests                  List (filterable)
    POST   /api/guests                  Create
    GET    /api/guests/{id}             Get one
    PUT    /api/guests/{id}             Partial update
    DELETE /api/guests/{id}             Soft delete (?hard=true for hard)
    POST   /api/guests/{id}/checkin     Record/overwrite payment
    GET    /api/guests/{id}/qr          QR payment slip (PNG)
    GET    /api/guests/{id}/activity    Audit trail

  Search:
    GET    /api/guests/search           Paginated ranked search
    GET    /api/guests/search/quick     First 20 matches

  Aggregates:
    GET    /api/statistics              Summary over active guests

  Admin:
    GET    /api/admin/errors            Unresolved error-log records
    POST   /api/admin/errors/{id}/resolve

ERROR HANDLING:
  guest.ValidationError -> 400 with field details
  guest.ErrNotFound     -> 404
  guest.ErrConflict     -> 409
  anything else         -> 500 with a generic message; the raw storage
                           error text never reaches the client

SEE ALSO:
  - dto.go: Wire types
  - server.go: Router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/angkor/guestbook/guest"
	"github.com/angkor/guestbook/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. The concrete store
// is kept alongside the service for the diagnostic read endpoints that
// sit outside the service boundary.
type Handler struct {
	Service *guest.Service
	Store   *sqlite.Store
	Log     zerolog.Logger
}

// NewHandler creates a handler around the service and store.
func NewHandler(svc *guest.Service, store *sqlite.Store, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, Store: store, Log: log}
}

// =============================================================================
// GUEST HANDLERS
// =============================================================================

// CreateGuest registers a new guest.
func (h *Handler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req guest.CreateGuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON", nil)
		return
	}

	g, err := h.Service.CreateGuest(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGuestDTO(g))
}

// GetGuest returns a single guest by exact id.
func (h *Handler) GetGuest(w http.ResponseWriter, r *http.Request) {
	g, err := h.Service.GetGuestByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestDTO(g))
}

// ListGuests returns guests under optional query-string filters.
func (h *Handler) ListGuests(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	guests, err := h.Service.GetAllGuests(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestDTOs(guests))
}

// UpdateGuest applies a partial update. The payload keys are checked
// against the mutable-column whitelist before binding.
func (h *Handler) UpdateGuest(w http.ResponseWriter, r *http.Request) {
	raw, keys, err := decodeRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON", nil)
		return
	}
	if err := guest.ValidateFieldNames("update", keys); err != nil {
		h.writeServiceError(w, err)
		return
	}

	var patch guest.GuestPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON", nil)
		return
	}

	g, err := h.Service.UpdateGuest(r.Context(), chi.URLParam(r, "id"), &patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestDTO(g))
}

// CheckInGuest records or overwrites a payment. Only the three payment
// fields are accepted in the payload.
func (h *Handler) CheckInGuest(w http.ResponseWriter, r *http.Request) {
	raw, keys, err := decodeRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON", nil)
		return
	}
	if err := guest.ValidateFieldNames("checkin", keys); err != nil {
		h.writeServiceError(w, err)
		return
	}

	var req guest.CheckInRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON", nil)
		return
	}

	g, err := h.Service.CheckInGuest(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestDTO(g))
}

// DeleteGuest soft deletes by default; ?hard=true removes the row and
// its audit trail.
func (h *Handler) DeleteGuest(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	deleted, err := h.Service.DeleteGuest(r.Context(), chi.URLParam(r, "id"), !hard)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted, Hard: hard})
}

// PaymentSlip streams the QR slip PNG for a checked-in guest.
func (h *Handler) PaymentSlip(w http.ResponseWriter, r *http.Request) {
	png, err := h.Service.PaymentSlip(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// =============================================================================
// SEARCH HANDLERS
// =============================================================================

// SearchGuests runs a paginated ranked search.
func (h *Handler) SearchGuests(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchParams(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	res, err := h.Service.SearchGuests(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Guests:     toGuestDTOs(res.Guests),
		TotalCount: res.TotalCount,
		Query:      res.Query,
		SearchType: res.SearchType,
		ElapsedMS:  res.ElapsedMS,
	})
}

// QuickSearch returns the first 20 matches without pagination metadata.
func (h *Handler) QuickSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	st := guest.SearchType(r.URL.Query().Get("type"))

	guests, err := h.Service.QuickSearch(r.Context(), q, st)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuestDTOs(guests))
}

// =============================================================================
// AGGREGATE AND ADMIN HANDLERS
// =============================================================================

// GetStatistics returns the aggregate summary.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.GetStatistics(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListErrors returns unresolved error-log records.
func (h *Handler) ListErrors(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.Store.ListUnresolvedErrors(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ResolveError marks one error-log record as handled.
func (h *Handler) ResolveError(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.ResolveError(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActivity returns a guest's audit trail, newest first.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Store.ListActivity(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// decodeRawBody reads the body once, returning both the raw JSON and the
// top-level key set for whitelist checks.
func decodeRawBody(r *http.Request) (json.RawMessage, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	raw, err := json.Marshal(fields)
	return raw, keys, err
}

func parseFilters(r *http.Request) (guest.Filters, error) {
	var f guest.Filters
	q := r.URL.Query()

	if v := q.Get("guest_of"); v != "" {
		g := guest.GuestOf(v)
		if !g.Valid() {
			return f, guest.NewValidationError("Invalid guest_of filter")
		}
		f.GuestOf = &g
	}
	if v := q.Get("payment_method"); v != "" {
		m := guest.PaymentMethod(v)
		if !m.Valid() {
			return f, guest.NewValidationError("Invalid payment_method filter")
		}
		f.PaymentMethod = &m
	}
	if v := q.Get("has_payment"); v != "" {
		b := v == "true"
		f.HasPayment = &b
	}
	if v := q.Get("is_duplicate"); v != "" {
		b := v == "true"
		f.IsDuplicate = &b
	}
	return f, nil
}

func parseSearchParams(r *http.Request) (guest.SearchRequest, error) {
	q := r.URL.Query()
	req := guest.SearchRequest{
		Query:      q.Get("q"),
		SearchType: guest.SearchType(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, guest.NewValidationError("limit must be an integer")
		}
		req.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, guest.NewValidationError("offset must be an integer")
		}
		req.Offset = n
	}
	return req, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string, details []guest.FieldError) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeServiceError maps a service error onto the HTTP taxonomy. Internal
// failures are logged with their full cause and surfaced generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *guest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message, "VALIDATION_ERROR", verr.Details)
	case guest.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Guest not found", "NOT_FOUND", nil)
	case guest.IsConflict(err):
		writeError(w, http.StatusConflict, "Guest ID already exists", "CONFLICT", nil)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal server error", "DATABASE_ERROR", nil)
	}
}
