package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxlens/internal/fhe"
	"taxlens/internal/jurisdiction/models"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
)

// PostgresStore keeps counters in the jurisdictions table. The name list is
// the name column ordered by position, so it cannot drift from the counters.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Counter, error) {
	c, err := scanCounter(tx.Conn(ctx, s.db).QueryRowContext(ctx, counterSelect+` WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find jurisdiction: %w", err)
	}
	return c, nil
}

// Create inserts with ON CONFLICT DO NOTHING so that losing a creation race
// reports ErrConflict without aborting the caller's transaction.
func (s *PostgresStore) Create(ctx context.Context, counter *models.Counter) error {
	var position int
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO jurisdictions (name, name_hash, counter, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING position
	`, counter.Name, counter.NameHash[:], counter.Handle[:], counter.CreatedAt, counter.UpdatedAt).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("jurisdiction %q: %w", counter.Name, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create jurisdiction: %w", err)
	}
	counter.Position = position
	return nil
}

// Execute locks the counter row until the transaction ends, so concurrent
// increments of one jurisdiction serialize instead of losing updates.
func (s *PostgresStore) Execute(ctx context.Context, name string, mutate func(*models.Counter) error) (*models.Counter, error) {
	var result *models.Counter
	err := tx.Do(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		c, err := scanCounter(q.QueryRowContext(ctx, counterSelect+` WHERE name = $1 FOR UPDATE`, name))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock jurisdiction: %w", err)
		}
		if err := mutate(c); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE jurisdictions SET counter = $2, updated_at = $3 WHERE name = $1`,
			name, c.Handle[:], c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update jurisdiction: %w", err)
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) ListNames(ctx context.Context) ([]string, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `SELECT name FROM jurisdictions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list jurisdiction names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan jurisdiction name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Counter, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, counterSelect+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list jurisdictions: %w", err)
	}
	defer rows.Close()

	var counters []*models.Counter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan jurisdiction: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

const counterSelect = `
	SELECT position, name, name_hash, counter, created_at, updated_at
	FROM jurisdictions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounter(row rowScanner) (*models.Counter, error) {
	var c models.Counter
	var nameHash, handle []byte
	if err := row.Scan(&c.Position, &c.Name, &nameHash, &handle, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.NameHash, err = models.NameHashFromBytes(nameHash); err != nil {
		return nil, err
	}
	if c.Handle, err = fhe.HandleFromBytes(handle); err != nil {
		return nil, err
	}
	return &c, nil
}
