package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor/guestbook/api"
	"github.com/angkor/guestbook/guest"
	"github.com/angkor/guestbook/qrslip"
	"github.com/angkor/guestbook/store/sqlite"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// newTestServer wires the full stack (router, handlers, service, store)
// against an in-memory database.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:", sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := guest.NewService(store, qrslip.NewGenerator("test-secret"), zerolog.Nop())
	h := api.NewHandler(svc, store, zerolog.Nop())
	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createGuest(t *testing.T, srv *httptest.Server, id, name string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests", map[string]any{
		"guest_id":     id,
		"english_name": name,
		"guest_of":     "Bride",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

type guestBody struct {
	GuestID       string  `json:"guest_id"`
	EnglishName   *string `json:"english_name"`
	AmountKHR     string  `json:"amount_khr"`
	AmountUSD     string  `json:"amount_usd"`
	PaymentMethod *string `json:"payment_method"`
	GuestOf       string  `json:"guest_of"`
	IsDuplicate   bool    `json:"is_duplicate"`
}

type errorBody struct {
	Error   string             `json:"error"`
	Code    string             `json:"code"`
	Details []guest.FieldError `json:"details"`
}

// =============================================================================
// GUEST CRUD
// =============================================================================

func TestHTTP_CreateAndGetGuest(t *testing.T) {
	// GIVEN: A running server
	// WHEN:  A guest is created and fetched back
	// THEN:  The wire representation round-trips with string amounts

	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g guestBody
	decodeBody(t, resp, &g)
	assert.Equal(t, "g-001", g.GuestID)
	require.NotNil(t, g.EnglishName)
	assert.Equal(t, "Sok Dara", *g.EnglishName)
	assert.Equal(t, "0", g.AmountKHR)
	assert.Nil(t, g.PaymentMethod)
	assert.Equal(t, "Bride", g.GuestOf)
}

func TestHTTP_CreateGuest_ValidationError(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests", map[string]any{
		"guest_id":   "g-001",
		"guest_of":   "Bride",
		"amount_khr": "500000",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.NotEmpty(t, body.Details)
}

func TestHTTP_CreateGuest_Conflict(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests", map[string]any{
		"guest_id":     "g-001",
		"english_name": "Someone Else",
		"guest_of":     "Groom",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "CONFLICT", body.Code)
}

func TestHTTP_CreateGuest_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/guests",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_GetGuest_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/guests/ghost", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestHTTP_UpdateGuest_UnknownField_Rejected(t *testing.T) {
	// GIVEN: An update payload carrying a non-whitelisted key
	// WHEN:  PUT to the guest
	// THEN:  400 with a FIELD_NOT_ALLOWED detail before any write

	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/guests/g-001", map[string]any{
		"english_name": "Renamed",
		"created_at":   "2025-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "created_at", body.Details[0].Field)
	assert.Equal(t, guest.CodeFieldNotAllowed, body.Details[0].Code)

	// The allowed field was not applied either.
	get := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001", nil)
	var g guestBody
	decodeBody(t, get, &g)
	assert.Equal(t, "Sok Dara", *g.EnglishName)
}

func TestHTTP_UpdateGuest_OK(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/guests/g-001", map[string]any{
		"english_name": "Sok Dara Jr.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g guestBody
	decodeBody(t, resp, &g)
	assert.Equal(t, "Sok Dara Jr.", *g.EnglishName)
}

// =============================================================================
// CHECK-IN
// =============================================================================

func TestHTTP_CheckIn_OK(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests/g-001/checkin", map[string]any{
		"amount_khr":     "500000",
		"payment_method": "QR_Code",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g guestBody
	decodeBody(t, resp, &g)
	assert.Equal(t, "500000", g.AmountKHR)
	require.NotNil(t, g.PaymentMethod)
	assert.Equal(t, "QR_Code", *g.PaymentMethod)
}

func TestHTTP_CheckIn_GuestOfInPayload_Rejected(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests/g-001/checkin", map[string]any{
		"amount_khr":     "500000",
		"payment_method": "Cash",
		"guest_of":       "Groom",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "guest_of", body.Details[0].Field)
}

// =============================================================================
// DELETE
// =============================================================================

func TestHTTP_Delete_SoftByDefault(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/guests/g-001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var del struct {
		Deleted bool `json:"deleted"`
		Hard    bool `json:"hard"`
	}
	decodeBody(t, resp, &del)
	assert.True(t, del.Deleted)
	assert.False(t, del.Hard)

	// Soft deleted: still fetchable, now flagged.
	get := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001", nil)
	require.Equal(t, http.StatusOK, get.StatusCode)
	var g guestBody
	decodeBody(t, get, &g)
	assert.True(t, g.IsDuplicate)
}

func TestHTTP_Delete_Hard(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/guests/g-001?hard=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	get := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001", nil)
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestHTTP_Search_RankedResults(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Johnny Chan")
	createGuest(t, srv, "g-002", "John")

	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/guests/search?q=John&type=english_name", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Guests     []guestBody `json:"guests"`
		TotalCount int         `json:"total_count"`
		SearchType string      `json:"search_type"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Guests, 2)
	assert.Equal(t, "g-002", body.Guests[0].GuestID)
	assert.Equal(t, 2, body.TotalCount)
	assert.Equal(t, "english_name", body.SearchType)
}

func TestHTTP_Search_MissingQuery_Rejected(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/guests/search?type=english_name", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_QuickSearch(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/guests/search/quick?q=Dara&type=english_name", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var guests []guestBody
	decodeBody(t, resp, &guests)
	assert.Len(t, guests, 1)
}

// =============================================================================
// AGGREGATES, SLIPS, ADMIN
// =============================================================================

func TestHTTP_Statistics(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		TotalGuests   int `json:"total_guests"`
		PendingGuests int `json:"pending_guests"`
	}
	decodeBody(t, resp, &stats)
	assert.Equal(t, 1, stats.TotalGuests)
	assert.Equal(t, 1, stats.PendingGuests)
}

func TestHTTP_PaymentSlip_PNG(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/guests/g-001/checkin", map[string]any{
		"amount_usd":     "20",
		"payment_method": "QR_Code",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	slip := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001/qr", nil)
	require.Equal(t, http.StatusOK, slip.StatusCode)
	assert.Equal(t, "image/png", slip.Header.Get("Content-Type"))
}

func TestHTTP_PaymentSlip_UnpaidGuest_Rejected(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001/qr", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_ActivityTrail(t *testing.T) {
	srv := newTestServer(t)
	createGuest(t, srv, "g-001", "Sok Dara")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/guests/g-001/activity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []struct {
		Action string `json:"action"`
	}
	decodeBody(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].Action)
}

func TestHTTP_AdminErrors_EmptyAndResolveMissing(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/admin/errors", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resolve := doJSON(t, http.MethodPost, srv.URL+"/api/admin/errors/ghost/resolve", nil)
	assert.Equal(t, http.StatusNotFound, resolve.StatusCode)
}

func TestHTTP_Healthz(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
