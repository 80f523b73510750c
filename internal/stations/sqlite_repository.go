package stations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/synopmap/synopmap/internal/geojson"
)

// SQLiteRepository stores snapshots in a SQLite file for single-node
// deployments. Timestamps are RFC 3339 text in UTC.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite snapshot repository. The schema must
// already be applied (see database.MigrateSQLite).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, s *Snapshot) error {
	collection, err := geojson.Marshal(s.Collection)
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO station_snapshots (
			id, country, window_start, window_end, fetched_at, source, station_count, collection
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Country, formatTime(s.WindowStart), formatTime(s.WindowEnd), formatTime(s.FetchedAt),
		s.Source, s.Collection.Len(), string(collection),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Latest(ctx context.Context) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM station_snapshots ORDER BY fetched_at DESC LIMIT 1`)
	return scanSQLiteSnapshot(row)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM station_snapshots WHERE id = ?`, id)
	return scanSQLiteSnapshot(row)
}

func scanSQLiteSnapshot(row *sql.Row) (*Snapshot, error) {
	var (
		s                                 Snapshot
		windowStart, windowEnd, fetchedAt string
		collection                        string
	)

	err := row.Scan(&s.ID, &s.Country, &windowStart, &windowEnd, &fetchedAt, &s.Source, &collection)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	if s.WindowStart, err = parseTime(windowStart); err != nil {
		return nil, err
	}
	if s.WindowEnd, err = parseTime(windowEnd); err != nil {
		return nil, err
	}
	if s.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, err
	}

	s.Collection, err = geojson.UnmarshalCollection([]byte(collection))
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) (out []Summary, err error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, country, window_start, window_end, fetched_at, source, station_count
		FROM station_snapshots
		ORDER BY fetched_at DESC
		LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var (
			s                                 Summary
			windowStart, windowEnd, fetchedAt string
		)
		if err := rows.Scan(&s.ID, &s.Country, &windowStart, &windowEnd, &fetchedAt, &s.Source, &s.StationCount); err != nil {
			return nil, err
		}
		if s.WindowStart, err = parseTime(windowStart); err != nil {
			return nil, err
		}
		if s.WindowEnd, err = parseTime(windowEnd); err != nil {
			return nil, err
		}
		if s.FetchedAt, err = parseTime(fetchedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Prune(ctx context.Context, keep int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM station_snapshots
		WHERE id NOT IN (
			SELECT id FROM station_snapshots ORDER BY fetched_at DESC LIMIT ?
		)`, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// sqliteTimeLayout sorts lexically in time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
