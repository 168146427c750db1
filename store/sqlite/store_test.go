package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angkor/guestbook/guest"
	"github.com/angkor/guestbook/store/sqlite"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:", sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func methodOf(m guest.PaymentMethod) *guest.PaymentMethod { return &m }

func seedGuest(t *testing.T, store *sqlite.Store, id string, name string, of guest.GuestOf) *guest.Guest {
	t.Helper()
	g, err := store.CreateGuest(context.Background(), &guest.CreateGuestRequest{
		GuestID:     id,
		EnglishName: strPtr(name),
		GuestOf:     of,
	})
	require.NoError(t, err)
	return g
}

func actionsOf(entries []guest.ActivityEntry) map[guest.Action]int {
	counts := make(map[guest.Action]int, len(entries))
	for _, e := range entries {
		counts[e.Action]++
	}
	return counts
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateGuest_RoundTrip(t *testing.T) {
	// GIVEN: An empty store
	// WHEN:  A guest without an initial amount is created
	// THEN:  The read-back row has zero amounts and no payment method

	store := newTestStore(t)
	ctx := context.Background()

	g, err := store.CreateGuest(ctx, &guest.CreateGuestRequest{
		GuestID:     "g-001",
		EnglishName: strPtr("Sok Dara"),
		KhmerName:   strPtr("សុខ ដារា"),
		GuestOf:     guest.OfBride,
	})
	require.NoError(t, err)

	assert.Equal(t, "g-001", g.GuestID)
	require.NotNil(t, g.EnglishName)
	assert.Equal(t, "Sok Dara", *g.EnglishName)
	require.NotNil(t, g.KhmerName)
	assert.Equal(t, "សុខ ដារា", *g.KhmerName)
	assert.True(t, g.AmountKHR.IsZero())
	assert.True(t, g.AmountUSD.IsZero())
	assert.Nil(t, g.PaymentMethod)
	assert.Equal(t, guest.OfBride, g.GuestOf)
	assert.False(t, g.IsDuplicate)
	assert.False(t, g.CreatedAt.IsZero())
	assert.False(t, g.UpdatedAt.IsZero())

	got, err := store.GetGuestByID(ctx, "g-001")
	require.NoError(t, err)
	assert.Equal(t, g.GuestID, got.GuestID)
}

func TestCreateGuest_DuplicateID_Conflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	_, err := store.CreateGuest(ctx, &guest.CreateGuestRequest{
		GuestID:     "g-001",
		EnglishName: strPtr("Someone Else"),
		GuestOf:     guest.OfGroom,
	})
	assert.ErrorIs(t, err, guest.ErrConflict)
}

func TestCreateGuest_WithInitialAmount_LogsPayment(t *testing.T) {
	// GIVEN: A create request carrying an initial gift
	// WHEN:  The guest is created
	// THEN:  Both "created" and "payment_received" audit rows exist,
	//        the latter with zero -> amount snapshots

	store := newTestStore(t)
	ctx := context.Background()

	g, err := store.CreateGuest(ctx, &guest.CreateGuestRequest{
		GuestID:       "g-002",
		EnglishName:   strPtr("Chan Thida"),
		AmountKHR:     decimal.NewFromInt(500000),
		PaymentMethod: methodOf(guest.PaymentQRCode),
		GuestOf:       guest.OfGroom,
	})
	require.NoError(t, err)
	assert.True(t, g.AmountKHR.Equal(decimal.NewFromInt(500000)))
	require.NotNil(t, g.PaymentMethod)
	assert.Equal(t, guest.PaymentQRCode, *g.PaymentMethod)

	entries, err := store.ListActivity(ctx, "g-002", 0)
	require.NoError(t, err)
	counts := actionsOf(entries)
	assert.Equal(t, 1, counts[guest.ActionCreated])
	assert.Equal(t, 1, counts[guest.ActionPaymentReceived])

	for _, e := range entries {
		if e.Action == guest.ActionPaymentReceived {
			require.NotNil(t, e.OldAmountKHR)
			assert.True(t, e.OldAmountKHR.IsZero())
			require.NotNil(t, e.NewAmountKHR)
			assert.True(t, e.NewAmountKHR.Equal(decimal.NewFromInt(500000)))
		}
	}
}

// =============================================================================
// READ AND LIST
// =============================================================================

func TestGetGuestByID_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetGuestByID(context.Background(), "no-such-guest")
	assert.ErrorIs(t, err, guest.ErrNotFound)
}

func TestListGuests_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)
	seedGuest(t, store, "g-002", "Chan Thida", guest.OfGroom)
	_, err := store.CheckInGuest(ctx, "g-002", &guest.CheckInRequest{
		AmountUSD:     decimal.NewFromInt(20),
		PaymentMethod: guest.PaymentCash,
	})
	require.NoError(t, err)

	all, err := store.ListGuests(ctx, guest.Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	of := guest.OfBride
	brideSide, err := store.ListGuests(ctx, guest.Filters{GuestOf: &of})
	require.NoError(t, err)
	require.Len(t, brideSide, 1)
	assert.Equal(t, "g-001", brideSide[0].GuestID)

	paid := true
	withPayment, err := store.ListGuests(ctx, guest.Filters{HasPayment: &paid})
	require.NoError(t, err)
	require.Len(t, withPayment, 1)
	assert.Equal(t, "g-002", withPayment[0].GuestID)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateGuest_PartialPatch(t *testing.T) {
	// GIVEN: An existing guest
	// WHEN:  Only the english name is patched
	// THEN:  Other columns survive and an "updated" audit row is appended

	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	updated, err := store.UpdateGuest(ctx, "g-001", &guest.GuestPatch{
		EnglishName: strPtr("Sok Dara Jr."),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EnglishName)
	assert.Equal(t, "Sok Dara Jr.", *updated.EnglishName)
	assert.Equal(t, guest.OfBride, updated.GuestOf)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, actionsOf(entries)[guest.ActionUpdated])
}

func TestUpdateGuest_AmountChange_Snapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	amount := decimal.NewFromInt(100000)
	method := guest.PaymentCash
	_, err := store.UpdateGuest(ctx, "g-001", &guest.GuestPatch{
		AmountKHR:     &amount,
		PaymentMethod: &method,
	})
	require.NoError(t, err)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if e.Action == guest.ActionUpdated {
			found = true
			require.NotNil(t, e.OldAmountKHR)
			assert.True(t, e.OldAmountKHR.IsZero())
			require.NotNil(t, e.NewAmountKHR)
			assert.True(t, e.NewAmountKHR.Equal(amount))
		}
	}
	assert.True(t, found)
}

func TestUpdateGuest_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.UpdateGuest(context.Background(), "ghost", &guest.GuestPatch{
		EnglishName: strPtr("Nobody"),
	})
	assert.ErrorIs(t, err, guest.ErrNotFound)
}

func TestUpdateGuest_EmptyPatch_Rejected(t *testing.T) {
	store := newTestStore(t)
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	_, err := store.UpdateGuest(context.Background(), "g-001", &guest.GuestPatch{})
	assert.True(t, guest.IsValidation(err))
}

// =============================================================================
// CHECK-IN
// =============================================================================

func TestCheckInGuest_FirstPayment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	g, err := store.CheckInGuest(ctx, "g-001", &guest.CheckInRequest{
		AmountKHR:     decimal.NewFromInt(500000),
		PaymentMethod: guest.PaymentQRCode,
	})
	require.NoError(t, err)
	assert.True(t, g.AmountKHR.Equal(decimal.NewFromInt(500000)))
	require.NotNil(t, g.PaymentMethod)
	assert.Equal(t, guest.PaymentQRCode, *g.PaymentMethod)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, actionsOf(entries)[guest.ActionCheckedIn])
}

func TestCheckInGuest_SecondPayment_Overwrites(t *testing.T) {
	// GIVEN: A guest already checked in with 500,000 KHR
	// WHEN:  A second check-in records 300,000 KHR via Cash
	// THEN:  The amount is replaced, not accumulated, and the audit row is
	//        "payment_updated" with the prior amount as the old snapshot

	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	_, err := store.CheckInGuest(ctx, "g-001", &guest.CheckInRequest{
		AmountKHR:     decimal.NewFromInt(500000),
		PaymentMethod: guest.PaymentQRCode,
	})
	require.NoError(t, err)

	g, err := store.CheckInGuest(ctx, "g-001", &guest.CheckInRequest{
		AmountKHR:     decimal.NewFromInt(300000),
		PaymentMethod: guest.PaymentCash,
	})
	require.NoError(t, err)
	assert.True(t, g.AmountKHR.Equal(decimal.NewFromInt(300000)))
	require.NotNil(t, g.PaymentMethod)
	assert.Equal(t, guest.PaymentCash, *g.PaymentMethod)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)
	counts := actionsOf(entries)
	assert.Equal(t, 1, counts[guest.ActionCheckedIn])
	assert.Equal(t, 1, counts[guest.ActionPaymentUpdated])

	for _, e := range entries {
		if e.Action == guest.ActionPaymentUpdated {
			require.NotNil(t, e.OldAmountKHR)
			assert.True(t, e.OldAmountKHR.Equal(decimal.NewFromInt(500000)))
			require.NotNil(t, e.NewAmountKHR)
			assert.True(t, e.NewAmountKHR.Equal(decimal.NewFromInt(300000)))
		}
	}
}

func TestCheckInGuest_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CheckInGuest(context.Background(), "ghost", &guest.CheckInRequest{
		AmountUSD:     decimal.NewFromInt(10),
		PaymentMethod: guest.PaymentCash,
	})
	assert.ErrorIs(t, err, guest.ErrNotFound)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteGuest_Soft_KeepsRowAndHistory(t *testing.T) {
	// GIVEN: An active guest
	// WHEN:  Soft deleted
	// THEN:  The row survives as duplicate and the audit trail grows

	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	require.NoError(t, store.DeleteGuest(ctx, "g-001", true))

	g, err := store.GetGuestByID(ctx, "g-001")
	require.NoError(t, err)
	assert.True(t, g.IsDuplicate)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, actionsOf(entries)[guest.ActionDeleted])
}

func TestDeleteGuest_Hard_RemovesRowAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)

	require.NoError(t, store.DeleteGuest(ctx, "g-001", false))

	_, err := store.GetGuestByID(ctx, "g-001")
	assert.ErrorIs(t, err, guest.ErrNotFound)

	entries, err := store.ListActivity(ctx, "g-001", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteGuest_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteGuest(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, guest.ErrNotFound)
}

// =============================================================================
// STATISTICS
// =============================================================================

func TestGetStatistics_ExcludesDuplicates(t *testing.T) {
	// GIVEN: Three active guests (two paid, one pending) and one duplicate
	// WHEN:  Statistics are computed
	// THEN:  Every figure except the duplicate count ignores the duplicate

	store := newTestStore(t)
	ctx := context.Background()

	seedGuest(t, store, "g-001", "Sok Dara", guest.OfBride)
	seedGuest(t, store, "g-002", "Chan Thida", guest.OfGroom)
	seedGuest(t, store, "g-003", "Vanna Rith", guest.OfBrideParents)
	seedGuest(t, store, "g-004", "Copy Cat", guest.OfBride)

	_, err := store.CheckInGuest(ctx, "g-001", &guest.CheckInRequest{
		AmountKHR:     decimal.NewFromInt(500000),
		PaymentMethod: guest.PaymentQRCode,
	})
	require.NoError(t, err)
	_, err = store.CheckInGuest(ctx, "g-002", &guest.CheckInRequest{
		AmountUSD:     decimal.NewFromInt(20),
		PaymentMethod: guest.PaymentCash,
	})
	require.NoError(t, err)
	require.NoError(t, store.DeleteGuest(ctx, "g-004", true))

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalGuests)
	assert.Equal(t, 1, stats.DuplicateGuests)
	assert.Equal(t, 2, stats.PaidGuests)
	assert.Equal(t, 1, stats.PendingGuests)
	assert.True(t, stats.TotalKHR.Equal(decimal.NewFromInt(500000)))
	assert.True(t, stats.TotalUSD.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 1, stats.ByPaymentMethod.QRCode)
	assert.Equal(t, 1, stats.ByPaymentMethod.Cash)
	assert.Equal(t, 1, stats.ByGuestOf.Bride)
	assert.Equal(t, 1, stats.ByGuestOf.Groom)
	assert.Equal(t, 1, stats.ByGuestOf.BrideParents)
	assert.Equal(t, 0, stats.ByGuestOf.GroomParents)
}

func TestGetStatistics_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.GetStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalGuests)
	assert.True(t, stats.TotalKHR.IsZero())
	assert.True(t, stats.TotalUSD.IsZero())
}

// =============================================================================
// ERROR LOG
// =============================================================================

func TestErrorLog_RecordListResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.LogError(ctx, "DATABASE_ERROR", errors.New("disk I/O error"),
		map[string]any{"operation": "create_guest"})

	records, err := store.ListUnresolvedErrors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DATABASE_ERROR", records[0].ErrorType)
	assert.Equal(t, "disk I/O error", records[0].Message)
	assert.Equal(t, "create_guest", records[0].Context["operation"])
	assert.False(t, records[0].Resolved)
	assert.NotEmpty(t, records[0].Stack)

	require.NoError(t, store.ResolveError(ctx, records[0].ID))

	records, err = store.ListUnresolvedErrors(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestErrorLog_NilCause_Ignored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.LogError(ctx, "DATABASE_ERROR", nil, nil)

	records, err := store.ListUnresolvedErrors(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolveError_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.ResolveError(context.Background(), "no-such-record")
	assert.ErrorIs(t, err, guest.ErrNotFound)
}
