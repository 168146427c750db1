/*
errorlog.go - Best-effort diagnostic side channel

PURPOSE:
  Records repository-level failures into error_log without ever letting
  the recording itself disturb the primary operation: a failed insert
  here is reported on the structured logger and swallowed.

  LogError never returns an error by design of the contract - callers
  must not be tempted to branch on it.
*/
package sqlite

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/angkor/guestbook/guest"
)

// ErrorRecord is one row of the error log.
type ErrorRecord struct {
	ID        string         `json:"id"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Resolved  bool           `json:"resolved"`
	CreatedAt time.Time      `json:"created_at"`
}

// LogError records a failure with optional request metadata. Best effort:
// the caller's error path is never replaced by a logging failure.
func (s *Store) LogError(ctx context.Context, errType string, cause error, reqCtx map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordError(ctx, errType, cause, reqCtx)
}

// recordError is the lock-free body of LogError, for call sites that
// already hold the mutex (the repository's own failure paths).
func (s *Store) recordError(ctx context.Context, errType string, cause error, reqCtx map[string]any) {
	if cause == nil {
		return
	}

	var contextJSON []byte
	if reqCtx != nil {
		contextJSON, _ = json.Marshal(reqCtx)
	}

	stack := make([]byte, 4096)
	stack = stack[:runtime.Stack(stack, false)]

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_log (id, error_type, message, stack, context_json, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		uuid.NewString(),
		errType,
		cause.Error(),
		string(stack),
		nullString(string(contextJSON)),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		// Swallowed: surfacing it would mask the original failure.
		s.log.Error().Err(err).Str("error_type", errType).
			Msg("error-log write failed")
	}
}

// ListUnresolvedErrors returns open diagnostic records, newest first.
func (s *Store) ListUnresolvedErrors(ctx context.Context, limit int) ([]ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, error_type, message, stack, context_json, resolved, created_at
		FROM error_log
		WHERE resolved = 0
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &guest.StoreError{Op: "list_errors", Err: err}
	}
	defer rows.Close()

	var records []ErrorRecord
	for rows.Next() {
		var (
			r           ErrorRecord
			stack       []byte
			contextJSON []byte
			createdAt   string
		)
		if err := rows.Scan(&r.ID, &r.ErrorType, &r.Message, &stack,
			&contextJSON, &r.Resolved, &createdAt); err != nil {
			return nil, &guest.StoreError{Op: "list_errors", Err: err}
		}
		r.Stack = string(stack)
		if len(contextJSON) > 0 {
			json.Unmarshal(contextJSON, &r.Context)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// ResolveError marks one diagnostic record as handled.
func (s *Store) ResolveError(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE error_log SET resolved = 1 WHERE id = ?", id)
	if err != nil {
		return &guest.StoreError{Op: "resolve_error", Err: err}
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return guest.ErrNotFound
	}
	return nil
}
