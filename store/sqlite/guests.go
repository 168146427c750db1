/*
guests.go - Transactional guest CRUD and check-in

PURPOSE:
  The write protocols of the repository. Every mutation pairs its row
  change with an activity_log append inside one transaction: the audit
  trail can never drift from the data.

WRITE PROTOCOLS:
  CreateGuest:  conflict check + insert + "created" log
                (+ "payment_received" log when created already paid)
  UpdateGuest:  read-for-diff + dynamic SET + "updated" log with
                before/after amount snapshots
  CheckInGuest: overwrite amounts and method + "checked_in" log on the
                first payment, "payment_updated" on later ones
  DeleteGuest:  soft marks is_duplicate and logs; hard logs, then
                removes the activity rows and the guest row

ERROR MAPPING:
  Client-correctable outcomes surface as guest.ErrNotFound,
  guest.ErrConflict or *guest.ValidationError. Anything else is
  recorded in the error log (after rollback - the single connection is
  not available while a transaction holds it) and wrapped in a
  *guest.StoreError.

SEE ALSO:
  - sqlite.go: Shared scanning and activity helpers
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angkor/guestbook/guest"
)

// =============================================================================
// CREATE
// =============================================================================

// CreateGuest inserts a new guest and its audit trail atomically, then
// returns the freshly read row. A taken guest_id yields guest.ErrConflict.
func (s *Store) CreateGuest(ctx context.Context, req *guest.CreateGuestRequest) (*guest.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.createGuest(ctx, req)
	if err != nil {
		if guest.IsClientError(err) {
			return nil, err
		}
		return nil, s.fail(ctx, "create_guest", err)
	}
	return g, nil
}

func (s *Store) createGuest(ctx context.Context, req *guest.CreateGuestRequest) (*guest.Guest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM guests WHERE guest_id = ?", req.GuestID,
	).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, guest.ErrConflict
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO guests
			(guest_id, english_name, khmer_name, amount_khr, amount_usd,
			 payment_method, guest_of, is_duplicate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		req.GuestID,
		namePtr(req.EnglishName),
		namePtr(req.KhmerName),
		req.AmountKHR.String(),
		req.AmountUSD.String(),
		methodPtr(req.PaymentMethod),
		string(req.GuestOf),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, guest.ErrConflict
		}
		return nil, err
	}

	if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
		GuestID: req.GuestID,
		Action:  guest.ActionCreated,
		Detail:  fmt.Sprintf("guest registered (guest_of=%s)", req.GuestOf),
	}); err != nil {
		return nil, err
	}

	if req.AmountKHR.IsPositive() || req.AmountUSD.IsPositive() {
		zero := decimal.Zero
		if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
			GuestID:      req.GuestID,
			Action:       guest.ActionPaymentReceived,
			Detail:       fmt.Sprintf("initial payment via %s", deref(methodPtr(req.PaymentMethod))),
			OldAmountKHR: &zero,
			NewAmountKHR: &req.AmountKHR,
			OldAmountUSD: &zero,
			NewAmountUSD: &req.AmountUSD,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.getGuest(ctx, req.GuestID)
}

// =============================================================================
// READ
// =============================================================================

// GetGuestByID does an exact primary-key lookup.
func (s *Store) GetGuestByID(ctx context.Context, id string) (*guest.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.getGuest(ctx, id)
	if err != nil {
		if guest.IsClientError(err) {
			return nil, err
		}
		return nil, s.fail(ctx, "get_guest", err)
	}
	return g, nil
}

func (s *Store) getGuest(ctx context.Context, id string) (*guest.Guest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+guestColumns+" FROM guests WHERE guest_id = ?", id)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, guest.ErrNotFound
	}
	return g, err
}

// ListGuests returns guests matching the AND-composed filters, newest
// first. Duplicates are included unless the caller filters them out.
func (s *Store) ListGuests(ctx context.Context, f guest.Filters) ([]guest.Guest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + guestColumns + " FROM guests"
	var where []string
	var args []any

	if f.GuestOf != nil {
		where = append(where, "guest_of = ?")
		args = append(args, string(*f.GuestOf))
	}
	if f.PaymentMethod != nil {
		where = append(where, "payment_method = ?")
		args = append(args, string(*f.PaymentMethod))
	}
	if f.HasPayment != nil {
		if *f.HasPayment {
			where = append(where, "(amount_khr > 0 OR amount_usd > 0)")
		} else {
			where = append(where, "(amount_khr = 0 AND amount_usd = 0)")
		}
	}
	if f.IsDuplicate != nil {
		where = append(where, "is_duplicate = ?")
		args = append(args, boolInt(*f.IsDuplicate))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(ctx, "list_guests", err)
	}
	defer rows.Close()

	var guests []guest.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, s.fail(ctx, "list_guests", err)
		}
		guests = append(guests, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "list_guests", err)
	}
	return guests, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateGuest applies the set fields of the patch and appends an
// "updated" audit row carrying before/after amount snapshots.
func (s *Store) UpdateGuest(ctx context.Context, id string, patch *guest.GuestPatch) (*guest.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.updateGuest(ctx, id, patch)
	if err != nil {
		if guest.IsClientError(err) {
			return nil, err
		}
		return nil, s.fail(ctx, "update_guest", err)
	}
	return g, nil
}

func (s *Store) updateGuest(ctx context.Context, id string, patch *guest.GuestPatch) (*guest.Guest, error) {
	// Defense in depth: the service validates this first.
	if patch == nil || patch.IsEmpty() {
		return nil, guest.NewValidationError("At least one field must be provided for update")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+guestColumns+" FROM guests WHERE guest_id = ?", id)
	cur, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, guest.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	var changed []string
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
		changed = append(changed, col)
	}

	if patch.EnglishName != nil {
		set("english_name", *patch.EnglishName)
	}
	if patch.KhmerName != nil {
		set("khmer_name", *patch.KhmerName)
	}
	newKHR := cur.AmountKHR
	if patch.AmountKHR != nil {
		newKHR = *patch.AmountKHR
		set("amount_khr", newKHR.String())
	}
	newUSD := cur.AmountUSD
	if patch.AmountUSD != nil {
		newUSD = *patch.AmountUSD
		set("amount_usd", newUSD.String())
	}
	if patch.PaymentMethod != nil {
		set("payment_method", string(*patch.PaymentMethod))
	}
	if patch.GuestOf != nil {
		set("guest_of", string(*patch.GuestOf))
	}
	if patch.IsDuplicate != nil {
		set("is_duplicate", boolInt(*patch.IsDuplicate))
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout))
	args = append(args, id)

	res, err := tx.ExecContext(ctx,
		"UPDATE guests SET "+strings.Join(sets, ", ")+" WHERE guest_id = ?", args...)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, guest.ErrNotFound
	}

	if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
		GuestID:      id,
		Action:       guest.ActionUpdated,
		Detail:       "updated fields: " + strings.Join(changed, ", "),
		OldAmountKHR: &cur.AmountKHR,
		NewAmountKHR: &newKHR,
		OldAmountUSD: &cur.AmountUSD,
		NewAmountUSD: &newUSD,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.getGuest(ctx, id)
}

// =============================================================================
// CHECK-IN
// =============================================================================

// CheckInGuest overwrites the guest's amounts and payment method. The
// first payment logs "checked_in"; later overwrites log "payment_updated".
// Amounts replace, never accumulate.
func (s *Store) CheckInGuest(ctx context.Context, id string, req *guest.CheckInRequest) (*guest.Guest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.checkInGuest(ctx, id, req)
	if err != nil {
		if guest.IsClientError(err) {
			return nil, err
		}
		return nil, s.fail(ctx, "check_in_guest", err)
	}
	return g, nil
}

func (s *Store) checkInGuest(ctx context.Context, id string, req *guest.CheckInRequest) (*guest.Guest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+guestColumns+" FROM guests WHERE guest_id = ?", id)
	cur, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, guest.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	firstPayment := cur.AmountKHR.IsZero() && cur.AmountUSD.IsZero()

	_, err = tx.ExecContext(ctx, `
		UPDATE guests
		SET amount_khr = ?, amount_usd = ?, payment_method = ?, updated_at = ?
		WHERE guest_id = ?`,
		req.AmountKHR.String(),
		req.AmountUSD.String(),
		string(req.PaymentMethod),
		time.Now().UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return nil, err
	}

	action := guest.ActionCheckedIn
	detail := fmt.Sprintf("checked in, payment via %s", req.PaymentMethod)
	if !firstPayment {
		action = guest.ActionPaymentUpdated
		detail = fmt.Sprintf("payment overwritten via %s", req.PaymentMethod)
	}
	if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
		GuestID:      id,
		Action:       action,
		Detail:       detail,
		OldAmountKHR: &cur.AmountKHR,
		NewAmountKHR: &req.AmountKHR,
		OldAmountUSD: &cur.AmountUSD,
		NewAmountUSD: &req.AmountUSD,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.getGuest(ctx, id)
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteGuest removes a guest. Soft delete marks the row as duplicate and
// keeps row and history; hard delete writes the final audit row, then
// cascades the guest's activity rows away with the guest itself.
func (s *Store) DeleteGuest(ctx context.Context, id string, soft bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteGuest(ctx, id, soft); err != nil {
		if guest.IsClientError(err) {
			return err
		}
		return s.fail(ctx, "delete_guest", err)
	}
	return nil
}

func (s *Store) deleteGuest(ctx context.Context, id string, soft bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM guests WHERE guest_id = ?", id,
	).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return guest.ErrNotFound
	}

	if soft {
		_, err = tx.ExecContext(ctx, `
			UPDATE guests SET is_duplicate = 1, updated_at = ?
			WHERE guest_id = ?`,
			time.Now().UTC().Format(timeLayout), id,
		)
		if err != nil {
			return err
		}
		if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
			GuestID: id,
			Action:  guest.ActionDeleted,
			Detail:  "soft delete: marked duplicate, row preserved",
		}); err != nil {
			return err
		}
		return tx.Commit()
	}

	// The "deleted" row is written first and removed again by the cascade
	// below. Pointless at first sight, but it keeps the audit protocol
	// identical for both modes and the trail consistent if the cascade is
	// ever narrowed.
	if err := s.appendActivity(ctx, tx, guest.ActivityEntry{
		GuestID: id,
		Action:  guest.ActionDeleted,
		Detail:  "hard delete: row and history removed",
	}); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM activity_log WHERE guest_id = ?", id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM guests WHERE guest_id = ?", id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return guest.ErrNotFound
	}
	return tx.Commit()
}

// =============================================================================
// ACTIVITY READSIDE
// =============================================================================

// ListActivity returns the audit rows for one guest, newest first.
// Pass guest.SearchLogToken to read search analytics rows.
func (s *Store) ListActivity(ctx context.Context, guestID string, limit int) ([]guest.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guest_id, action, detail,
		       old_amount_khr, new_amount_khr, old_amount_usd, new_amount_usd,
		       created_at
		FROM activity_log
		WHERE guest_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, guestID, limit)
	if err != nil {
		return nil, s.fail(ctx, "list_activity", err)
	}
	defer rows.Close()

	var entries []guest.ActivityEntry
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, s.fail(ctx, "list_activity", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "list_activity", err)
	}
	return entries, nil
}

// =============================================================================
// SMALL HELPERS
// =============================================================================

func namePtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func methodPtr(p *guest.PaymentMethod) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*p), Valid: true}
}

func deref(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
