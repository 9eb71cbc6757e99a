package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/settled/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Each market
// is one row holding its latest JSON snapshot.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Save inserts or replaces the snapshot of a market.
func (s *MarketStore) Save(ctx context.Context, rec domain.MarketRecord) error {
	const query = `
		INSERT INTO markets (id, creator, status, end_time, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			snapshot   = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(rec.ID), rec.Creator, string(rec.Status), rec.EndTime,
		rec.Payload, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market %d: %w", rec.ID, err)
	}
	return nil
}

const marketColumns = `id, creator, status, end_time, snapshot, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.MarketRecord, error) {
	var (
		rec    domain.MarketRecord
		id     int64
		status string
	)
	if err := row.Scan(&id, &rec.Creator, &status, &rec.EndTime, &rec.Payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.MarketRecord{}, err
	}
	rec.ID = uint64(id)
	rec.Status = domain.MarketStatus(status)
	return rec, nil
}

// Get loads the snapshot of one market.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.MarketRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, int64(id))
	rec, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MarketRecord{}, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MarketRecord{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return rec, nil
}

// List returns markets in id order, filtered on their last update.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketRecord, error) {
	query, args := listQuery(`SELECT `+marketColumns+` FROM markets`, "updated_at", "id", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketRecord
	for rows.Next() {
		rec, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
