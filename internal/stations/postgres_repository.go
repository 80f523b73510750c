package stations

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/synopmap/synopmap/internal/geojson"
)

// PostgresRepository stores snapshots in PostgreSQL. The feature collection
// is kept as JSONB.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL snapshot repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const snapshotColumns = `id, country, window_start, window_end, fetched_at, source, collection`

func (r *PostgresRepository) Save(ctx context.Context, s *Snapshot) error {
	collection, err := geojson.Marshal(s.Collection)
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}

	query := `
		INSERT INTO station_snapshots (
			id, country, window_start, window_end, fetched_at, source, station_count, collection
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID, s.Country, s.WindowStart, s.WindowEnd, s.FetchedAt, s.Source,
		s.Collection.Len(), collection,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM station_snapshots ORDER BY fetched_at DESC LIMIT 1`
	return r.scanSnapshot(r.pool.QueryRow(ctx, query))
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM station_snapshots WHERE id = $1`
	return r.scanSnapshot(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var (
		s          Snapshot
		collection []byte
	)

	err := row.Scan(&s.ID, &s.Country, &s.WindowStart, &s.WindowEnd, &s.FetchedAt, &s.Source, &collection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	s.Collection, err = geojson.UnmarshalCollection(collection)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `
		SELECT id, country, window_start, window_end, fetched_at, source, station_count
		FROM station_snapshots
		ORDER BY fetched_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Country, &s.WindowStart, &s.WindowEnd, &s.FetchedAt, &s.Source, &s.StationCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Prune(ctx context.Context, keep int) (int, error) {
	query := `
		DELETE FROM station_snapshots
		WHERE id NOT IN (
			SELECT id FROM station_snapshots ORDER BY fetched_at DESC LIMIT $1
		)
	`

	tag, err := r.pool.Exec(ctx, query, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
