package closures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL closure repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveSnapshot replaces the stored snapshot in a single transaction.
func (r *PostgresRepository) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM closure_snapshot`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	query := `
		INSERT INTO closure_snapshot (
			id, kind, lat, lon, project, description, severity,
			starts_at, ends_at, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i := range snap.Closures {
		c := &snap.Closures[i]
		_, err := tx.Exec(ctx, query,
			c.ID,
			string(c.Kind),
			c.Location.Lat,
			c.Location.Lng,
			c.Project,
			c.Description,
			string(c.Severity),
			nullableTime(c.StartsAt),
			nullableTime(c.EndsAt),
			snap.FetchedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting closure %s: %w", c.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// LatestSnapshot retrieves the stored snapshot.
func (r *PostgresRepository) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT
			id, kind, lat, lon, project, description, severity,
			starts_at, ends_at, fetched_at
		FROM closure_snapshot
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	defer rows.Close()

	snap := &Snapshot{}
	for rows.Next() {
		var (
			c                Closure
			kind, severity   string
			startsAt, endsAt *time.Time
		)
		err := rows.Scan(
			&c.ID,
			&kind,
			&c.Location.Lat,
			&c.Location.Lng,
			&c.Project,
			&c.Description,
			&severity,
			&startsAt,
			&endsAt,
			&snap.FetchedAt,
		)
		if err != nil {
			return nil, err
		}
		c.Kind = Kind(kind)
		c.Severity = Severity(severity)
		if startsAt != nil {
			c.StartsAt = *startsAt
		}
		if endsAt != nil {
			c.EndsAt = *endsAt
		}
		snap.Closures = append(snap.Closures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(snap.Closures) == 0 {
		return nil, ErrNoSnapshot
	}

	return snap, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
