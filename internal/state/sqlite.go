package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"packsync/internal/config"
)

// SQLiteStore keeps SyncRecords in a SQLite database. Writes use WAL with
// synchronous=FULL so a nil error from Put means the record survives a crash.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenFromConfig opens the state database under the configured state dir.
func OpenFromConfig(cfg *config.Config) (*SQLiteStore, error) {
	if cfg == nil {
		return nil, errors.New("state: config is nil")
	}
	return Open(cfg.StatePath())
}

// Open initializes or connects to the state database at path.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the pragmas below in force for every statement
	// and makes the store a single writer.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the record for itemID, if any.
func (s *SQLiteStore) Get(ctx context.Context, itemID string) (Record, bool, error) {
	ctx = ensureContext(ctx)
	var (
		rec Record
		row rawRecord
		err error
	)
	err = retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM sync_records WHERE item_id = ?`, itemID,
		).Scan(row.targets()...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %s: %w", itemID, err)
	}
	rec, err = row.record()
	if err != nil {
		return Record{}, false, fmt.Errorf("decode record %s: %w", itemID, err)
	}
	return rec, true, nil
}

// Put inserts or replaces the record for rec.ItemID.
func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO sync_records (
                item_id, last_synced_at, content_fingerprint, display_name, source_updated_at, written_at
            ) VALUES (?, ?, ?, ?, ?, ?)
            ON CONFLICT(item_id) DO UPDATE SET
                last_synced_at = excluded.last_synced_at,
                content_fingerprint = excluded.content_fingerprint,
                display_name = excluded.display_name,
                source_updated_at = excluded.source_updated_at,
                written_at = excluded.written_at`,
			rec.ItemID,
			formatTime(rec.LastSyncedAt),
			rec.Fingerprint,
			nullableString(rec.DisplayName),
			nullableString(formatTime(rec.SourceUpdatedAt)),
			formatTime(s.now()),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ItemID, err)
	}
	return nil
}

// Iterate calls fn for every record ordered by item id. Rows are read before
// fn runs, so fn may call back into the store.
func (s *SQLiteStore) Iterate(ctx context.Context, fn func(Record) error) error {
	ctx = ensureContext(ctx)
	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM sync_records ORDER BY item_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row rawRecord
			if err := rows.Scan(row.targets()...); err != nil {
				return err
			}
			rec, err := row.record()
			if err != nil {
				return fmt.Errorf("decode record %s: %w", row.itemID, err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

const recordColumns = `item_id, last_synced_at, content_fingerprint, display_name, source_updated_at`

type rawRecord struct {
	itemID          string
	lastSyncedAt    string
	fingerprint     string
	displayName     sql.NullString
	sourceUpdatedAt sql.NullString
}

func (r *rawRecord) targets() []any {
	return []any{&r.itemID, &r.lastSyncedAt, &r.fingerprint, &r.displayName, &r.sourceUpdatedAt}
}

func (r *rawRecord) record() (Record, error) {
	synced, err := parseTime(r.lastSyncedAt)
	if err != nil {
		return Record{}, fmt.Errorf("last_synced_at: %w", err)
	}
	source, err := parseTime(r.sourceUpdatedAt.String)
	if err != nil {
		return Record{}, fmt.Errorf("source_updated_at: %w", err)
	}
	return Record{
		ItemID:          r.itemID,
		LastSyncedAt:    synced,
		Fingerprint:     r.fingerprint,
		DisplayName:     r.displayName.String,
		SourceUpdatedAt: source,
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
