package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists sound records in the `sounds` table. The
// pipeline only ever reads due rows and writes one row at a time; record
// creation and deletion belong to external collaborators.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ ports.SoundStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a pgx connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Open builds a pgx pool from a DSN.
func Open(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}

// QueryDue returns records not refreshed since now-threshold, the
// never-refreshed ones first, then oldest first, capped to limit.
func (r *PostgresRepository) QueryDue(ctx context.Context, now time.Time, threshold time.Duration, limit int) ([]domain.SoundRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("query due: limit must be positive, got %d", limit)
	}

	cutoff := now.Add(-threshold)
	query, args, err := psql.
		Select(
			"id::text",
			"user_id",
			"url",
			"COALESCE(sound_name, '')",
			"COALESCE(creator_name, '')",
			"COALESCE(icon_url, '')",
			"COALESCE(video_count, 0)",
			"COALESCE(video_history, '{}')",
			"COALESCE(scrape_history, '{}')",
			"COALESCE(pct_change_1d, 0)",
			"COALESCE(pct_change_1w, 0)",
			"COALESCE(pct_change_1m, 0)",
			"last_scrape",
		).
		From("sounds").
		Where(sq.Or{
			sq.Eq{"last_scrape": nil},
			sq.LtOrEq{"last_scrape": cutoff},
		}).
		OrderBy("last_scrape ASC NULLS FIRST").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due: %w", err)
	}
	defer rows.Close()

	var records []domain.SoundRecord
	for rows.Next() {
		var (
			rec         domain.SoundRecord
			id          string
			lastRefresh *time.Time
		)
		err := rows.Scan(
			&id,
			&rec.OwnerID,
			&rec.URL,
			&rec.Name,
			&rec.CreatorName,
			&rec.IconURL,
			&rec.CurrentCount,
			&rec.CountHistory,
			&rec.SampleTimes,
			&rec.PctChange1D,
			&rec.PctChange1W,
			&rec.PctChange1M,
			&lastRefresh,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse record id %q: %w", id, err)
		}
		if lastRefresh != nil {
			rec.LastRefreshAt = *lastRefresh
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due records: %w", err)
	}

	return records, nil
}

// WriteRecord updates one row atomically. The write is conditional on the
// stored last_scrape still matching what the selector observed, so an
// overlapping cycle loses the race cleanly instead of double-appending
// history.
func (r *PostgresRepository) WriteRecord(ctx context.Context, rec domain.SoundRecord, lastSeen time.Time) error {
	query, args, err := psql.
		Update("sounds").
		Set("sound_name", nullableText(rec.Name)).
		Set("creator_name", nullableText(rec.CreatorName)).
		Set("icon_url", nullableText(rec.IconURL)).
		Set("video_count", rec.CurrentCount).
		Set("video_history", emptyWhenNil(rec.CountHistory)).
		Set("scrape_history", emptyTimesWhenNil(rec.SampleTimes)).
		Set("pct_change_1d", rec.PctChange1D).
		Set("pct_change_1w", rec.PctChange1W).
		Set("pct_change_1m", rec.PctChange1M).
		Set("last_scrape", rec.LastRefreshAt).
		Where(sq.Eq{"id": rec.ID.String()}).
		Where(sq.Expr("last_scrape IS NOT DISTINCT FROM ?", nullableTime(lastSeen))).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrConflict
		}
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return ports.ErrConflict
	}
	return nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func emptyWhenNil(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func emptyTimesWhenNil(v []time.Time) []time.Time {
	if v == nil {
		return []time.Time{}
	}
	return v
}
