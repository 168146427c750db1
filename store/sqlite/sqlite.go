/*
Package sqlite provides the SQLite-backed guest repository.

PURPOSE:
  Implements guest.Repository with direct, parameterized SQL. Owns the
  single process-wide connection, every transaction boundary, and the
  error-log side channel. The service layer never issues SQL itself.

KEY TABLES:
  guests:       One row per invited party
  activity_log: Append-only audit trail of guest-affecting events
  error_log:    Best-effort diagnostic records of storage failures
  migrations:   Bookkeeping of applied schema migrations

TRANSACTIONS:
  Every multi-statement write (insert+log, update+log, delete+log) runs
  inside one sql.Tx: either all statements commit or none do. This is
  the only ordering guarantee; no application-level locking exists
  beyond the engine's own concurrency control.

AUDIT TRAIL:
  The schema from the original deployment carried a trigger that logged
  amount changes alongside the application-level activity rows, double
  writing on every paid update. Only the application-level path is kept
  here; the updated_at refresh trigger remains.

WAL MODE:
  The database is opened with WAL and foreign keys on, plus a busy
  timeout so concurrent readers and the writer coexist.

CONNECTION RETRY:
  New retries open+ping a bounded number of times with a fixed delay.
  Exhausting the retries is fatal for the caller; there is no automatic
  reconnect after an established connection drops.

USAGE:
  store, err := sqlite.New("./data/guests.db", sqlite.Options{})
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - guests.go:   Transactional CRUD and check-in
  - search.go:   Multi-mode search with ranking and pagination
  - stats.go:    Aggregate statistics
  - errorlog.go: Error-log side channel
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/angkor/guestbook/guest"
)

// timeLayout is a fixed-width RFC3339 variant. Fixed width keeps the
// lexicographic order of stored timestamps identical to chronological
// order, which the created_at DESC indexes rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Options tunes connection establishment.
type Options struct {
	// Retries is the number of open+ping attempts. Zero means 3.
	Retries int
	// RetryDelay is the fixed pause between attempts. Zero means 500ms.
	RetryDelay time.Duration
	// Logger receives side-channel diagnostics (error-log write failures).
	Logger zerolog.Logger
}

// Store implements guest.Repository on SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.RWMutex
}

// New opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for an in-memory database.
func New(path string, opts Options) (*Store, error) {
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

	var db *sql.DB
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		db, err = sql.Open("sqlite3", dsn)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
			db.Close()
		}
		if attempt < retries {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database after %d attempts: %w", retries, err)
	}

	// SQLite allows one writer; a single shared connection avoids
	// SQLITE_BUSY churn between pooled connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, log: opts.Logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SCHEMA MIGRATIONS
// =============================================================================

type migration struct {
	name string
	sql  string
}

var schemaMigrations = []migration{
	{name: "001_guests", sql: `
	CREATE TABLE IF NOT EXISTS guests (
		guest_id       TEXT PRIMARY KEY,
		english_name   TEXT,
		khmer_name     TEXT,
		amount_khr     NUMERIC NOT NULL DEFAULT 0 CHECK (amount_khr >= 0),
		amount_usd     NUMERIC NOT NULL DEFAULT 0 CHECK (amount_usd >= 0),
		payment_method TEXT CHECK (payment_method IN ('QR_Code', 'Cash')),
		guest_of       TEXT NOT NULL CHECK (guest_of IN ('Bride', 'Groom', 'Bride_Parents', 'Groom_Parents')),
		is_duplicate   INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_guests_guest_of
		ON guests(guest_of);
	CREATE INDEX IF NOT EXISTS idx_guests_payment_method
		ON guests(payment_method);
	CREATE INDEX IF NOT EXISTS idx_guests_is_duplicate
		ON guests(is_duplicate);

	-- Case-insensitive lookups (guest_id search, name search tiers)
	CREATE INDEX IF NOT EXISTS idx_guests_guest_id_nocase
		ON guests(guest_id COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_guests_english_name_nocase
		ON guests(english_name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_guests_khmer_name_nocase
		ON guests(khmer_name COLLATE NOCASE);

	-- Active guests ordered by creation (default listing, search ties)
	CREATE INDEX IF NOT EXISTS idx_guests_active_created
		ON guests(is_duplicate, created_at DESC);

	-- Refresh updated_at on out-of-band updates. Application writes set
	-- updated_at themselves, which the WHEN guard leaves alone.
	CREATE TRIGGER IF NOT EXISTS guests_touch_updated_at
	AFTER UPDATE ON guests
	FOR EACH ROW
	WHEN NEW.updated_at = OLD.updated_at
	BEGIN
		UPDATE guests
		SET updated_at = STRFTIME('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE guest_id = NEW.guest_id;
	END;
	`},
	{name: "002_activity_log", sql: `
	-- Append-only. No foreign key to guests: "searched" rows carry the
	-- literal token 'SEARCH' as guest_id, so the cascade on hard delete
	-- is done explicitly inside the delete transaction instead.
	CREATE TABLE IF NOT EXISTS activity_log (
		id             TEXT PRIMARY KEY,
		guest_id       TEXT NOT NULL,
		action         TEXT NOT NULL CHECK (action IN (
			'created', 'updated', 'deleted', 'checked_in',
			'payment_received', 'payment_updated',
			'duplicate_marked', 'duplicate_resolved', 'searched')),
		detail         TEXT,
		old_amount_khr NUMERIC,
		new_amount_khr NUMERIC,
		old_amount_usd NUMERIC,
		new_amount_usd NUMERIC,
		created_at     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_guest
		ON activity_log(guest_id);
	CREATE INDEX IF NOT EXISTS idx_activity_action
		ON activity_log(action);
	CREATE INDEX IF NOT EXISTS idx_activity_created
		ON activity_log(created_at DESC);
	`},
	{name: "003_error_log", sql: `
	CREATE TABLE IF NOT EXISTS error_log (
		id           TEXT PRIMARY KEY,
		error_type   TEXT NOT NULL,
		message      TEXT NOT NULL,
		stack        TEXT,
		context_json TEXT,
		resolved     INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_error_log_created
		ON error_log(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_error_log_resolved
		ON error_log(resolved);
	`},
}

// migrate applies pending migrations and records each one in the
// migrations bookkeeping table.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return err
	}

	for _, m := range schemaMigrations {
		var n int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM migrations WHERE name = ?", m.name,
		).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO migrations (name, applied_at) VALUES (?, ?)",
			m.name, time.Now().UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("migration %s: record: %w", m.name, err)
		}
	}
	return nil
}

// =============================================================================
// ROW SCANNING AND SHARED HELPERS
// =============================================================================

const guestColumns = `guest_id, english_name, khmer_name, amount_khr, amount_usd,
	payment_method, guest_of, is_duplicate, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuest(row rowScanner) (*guest.Guest, error) {
	var (
		g           guest.Guest
		englishName sql.NullString
		khmerName   sql.NullString
		amountKHR   float64
		amountUSD   float64
		method      sql.NullString
		guestOf     string
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&g.GuestID, &englishName, &khmerName, &amountKHR, &amountUSD,
		&method, &guestOf, &g.IsDuplicate, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if englishName.Valid {
		g.EnglishName = &englishName.String
	}
	if khmerName.Valid {
		g.KhmerName = &khmerName.String
	}
	g.AmountKHR = decimal.NewFromFloat(amountKHR)
	g.AmountUSD = decimal.NewFromFloat(amountUSD)
	if method.Valid {
		m := guest.PaymentMethod(method.String)
		g.PaymentMethod = &m
	}
	g.GuestOf = guest.GuestOf(guestOf)
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &g, nil
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// appendActivity writes one audit row through the given executor, so it
// joins whatever transaction the caller is running.
func (s *Store) appendActivity(ctx context.Context, ex executor, e guest.ActivityEntry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO activity_log
			(id, guest_id, action, detail,
			 old_amount_khr, new_amount_khr, old_amount_usd, new_amount_usd,
			 created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		e.GuestID,
		string(e.Action),
		nullString(e.Detail),
		decimalArg(e.OldAmountKHR),
		decimalArg(e.NewAmountKHR),
		decimalArg(e.OldAmountUSD),
		decimalArg(e.NewAmountUSD),
		time.Now().UTC().Format(timeLayout),
	)
	return err
}

// fail records a storage failure in the error log (best effort) and wraps
// it for the caller. The caller must not be inside an open transaction:
// with a single connection the error-log insert would block behind it.
func (s *Store) fail(ctx context.Context, op string, err error) error {
	s.recordError(ctx, "DATABASE_ERROR", err, map[string]any{"operation": op})
	return &guest.StoreError{Op: op, Err: err}
}

func scanActivity(row rowScanner) (guest.ActivityEntry, error) {
	var (
		e       guest.ActivityEntry
		action  string
		detail  sql.NullString
		oldKHR  sql.NullFloat64
		newKHR  sql.NullFloat64
		oldUSD  sql.NullFloat64
		newUSD  sql.NullFloat64
		created string
	)
	err := row.Scan(&e.ID, &e.GuestID, &action, &detail,
		&oldKHR, &newKHR, &oldUSD, &newUSD, &created)
	if err != nil {
		return e, err
	}
	e.Action = guest.Action(action)
	e.Detail = detail.String
	e.OldAmountKHR = decimalFromNull(oldKHR)
	e.NewAmountKHR = decimalFromNull(newKHR)
	e.OldAmountUSD = decimalFromNull(oldUSD)
	e.NewAmountUSD = decimalFromNull(newUSD)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

func decimalFromNull(v sql.NullFloat64) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := decimal.NewFromFloat(v.Float64)
	return &d
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
