/*
search.go - Multi-mode guest search with ranking and pagination

PURPOSE:
  Implements the three lookup modes:
    guest_id:     case-insensitive EXACT match
    english_name: case-insensitive substring match with ranking
    khmer_name:   case-insensitive substring match with ranking

RANKING (name modes):
  Tier 0: exact case-insensitive equality
  Tier 1: substring match
  Tier 2: everything else (filtered out by the WHERE clause, kept in the
          CASE for symmetry with the rank definition)
  Ties inside a tier break by creation time, newest first.

SANITIZATION:
  The raw query is trimmed, stripped of SQL meta-characters, truncated
  to 100 runes; LIKE wildcards are escaped when the pattern is built. A
  query that sanitizes to nothing short-circuits to an empty result with
  measured elapsed time, without touching storage.

INVARIANTS:
  - Every search mode excludes is_duplicate rows unconditionally
  - total_count is computed by a parallel COUNT with the same filter
  - Every successful non-empty search appends a "searched" activity row
    under the SEARCH token (analytics, best effort)

SEE ALSO:
  - guest/validate.go: Rejects unknown search types before storage
*/
package sqlite

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angkor/guestbook/guest"
)

const defaultSearchLimit = 50

// SearchGuests runs a sanitized, ranked, paginated lookup. The search
// type must already be validated; an unknown type is rejected here too as
// defense in depth.
func (s *Store) SearchGuests(ctx context.Context, req guest.SearchRequest) (*guest.SearchResult, error) {
	start := time.Now()

	term := sanitizeQuery(req.Query)
	result := &guest.SearchResult{
		Guests:     []guest.Guest{},
		Query:      term,
		SearchType: string(req.SearchType),
	}
	if term == "" {
		result.ElapsedMS = elapsedMS(start)
		return result, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	var where string
	var whereArgs []any
	var orderBy string
	var orderArgs []any

	switch req.SearchType {
	case guest.SearchByGuestID:
		where = "is_duplicate = 0 AND guest_id = ? COLLATE NOCASE"
		whereArgs = []any{term}
		orderBy = "created_at DESC"
	case guest.SearchByEnglishName, guest.SearchByKhmerName:
		col := "english_name"
		if req.SearchType == guest.SearchByKhmerName {
			col = "khmer_name"
		}
		pattern := "%" + escapeLike(term) + "%"
		where = fmt.Sprintf(`is_duplicate = 0 AND %s LIKE ? ESCAPE '\'`, col)
		whereArgs = []any{pattern}
		orderBy = fmt.Sprintf(`CASE
			WHEN %s = ? COLLATE NOCASE THEN 0
			WHEN %s LIKE ? ESCAPE '\' THEN 1
			ELSE 2
		END, created_at DESC`, col, col)
		orderArgs = []any{term, pattern}
	default:
		return nil, guest.NewValidationError("Search validation failed", guest.FieldError{
			Field:   "search_type",
			Message: "search_type must be guest_id, english_name or khmer_name",
			Code:    guest.CodeInvalidValue,
			Value:   string(req.SearchType),
		})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + guestColumns + " FROM guests WHERE " + where +
		" ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	args := append(append(append([]any{}, whereArgs...), orderArgs...), limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(ctx, "search_guests", err)
	}
	defer rows.Close()

	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, s.fail(ctx, "search_guests", err)
		}
		result.Guests = append(result.Guests, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(ctx, "search_guests", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM guests WHERE "+where, whereArgs...,
	).Scan(&result.TotalCount); err != nil {
		return nil, s.fail(ctx, "search_guests_count", err)
	}

	result.ElapsedMS = elapsedMS(start)

	// Analytics only: a failed append never fails the search.
	if err := s.appendActivity(ctx, s.db, guest.ActivityEntry{
		GuestID: guest.SearchLogToken,
		Action:  guest.ActionSearched,
		Detail: fmt.Sprintf("query=%q type=%s results=%d elapsed_ms=%.2f",
			term, req.SearchType, result.TotalCount, result.ElapsedMS),
	}); err != nil {
		s.recordError(ctx, "SEARCH_LOG_ERROR", err, map[string]any{
			"query": term, "search_type": string(req.SearchType),
		})
	}

	return result, nil
}

// =============================================================================
// SANITIZATION
// =============================================================================

var metaCharStripper = strings.NewReplacer(
	"'", "", `"`, "", "`", "", ";", "", `\`, "",
)

// sanitizeQuery trims the raw query, strips SQL meta-characters and caps
// it at 100 runes. Runes, not bytes: Khmer names are multi-byte.
func sanitizeQuery(raw string) string {
	q := metaCharStripper.Replace(strings.TrimSpace(raw))
	runes := []rune(q)
	if len(runes) > guest.MaxSearchQueryLen {
		q = string(runes[:guest.MaxSearchQueryLen])
	}
	return strings.TrimSpace(q)
}

// escapeLike neutralizes LIKE wildcards in user input. Backslash is safe
// as the escape character because sanitizeQuery strips it from input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func elapsedMS(start time.Time) float64 {
	ms := float64(time.Since(start).Microseconds()) / 1000.0
	return math.Round(ms*100) / 100
}
