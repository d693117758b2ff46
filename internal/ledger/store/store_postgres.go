package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"taxlens/internal/fhe"
	jurisdictionmodels "taxlens/internal/jurisdiction/models"
	"taxlens/internal/ledger/models"
	"taxlens/internal/platform/postgres"
	profilemodels "taxlens/internal/profile/models"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
)

// PostgresStore keeps the ledger in the decryption_requests table. It joins
// the caller's transaction when one is open.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Register(ctx context.Context, req *models.PendingRequest) error {
	var profileID sql.NullInt64
	var nameHash []byte
	switch req.Target.Kind {
	case models.TargetProfile:
		profileID = sql.NullInt64{Int64: int64(req.Target.ProfileID), Valid: true}
	case models.TargetJurisdictionStats:
		nameHash = req.Target.NameHash[:]
	}
	handles := make(pq.ByteaArray, len(req.Handles))
	for i := range req.Handles {
		handles[i] = req.Handles[i][:]
	}

	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO decryption_requests (request_id, target_kind, profile_id, name_hash, handles, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.RequestID[:], string(req.Target.Kind), profileID, nameHash, handles, req.RequestedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("request %s: %w", req.RequestID, sentinel.ErrConflict)
		}
		return fmt.Errorf("register decryption request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, rid fhe.RequestID) (*models.PendingRequest, error) {
	req, err := scanRequest(tx.Conn(ctx, s.db).QueryRowContext(ctx, requestSelect+` WHERE request_id = $1`, rid[:]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find decryption request: %w", err)
	}
	return req, nil
}

// Consume resolves the request with a conditional update, so two callbacks
// racing on one id cannot both succeed.
func (s *PostgresStore) Consume(ctx context.Context, rid fhe.RequestID, now time.Time) (*models.PendingRequest, error) {
	q := tx.Conn(ctx, s.db)
	req, err := scanRequest(q.QueryRowContext(ctx, `
		UPDATE decryption_requests SET resolved_at = $2
		WHERE request_id = $1 AND resolved_at IS NULL
		RETURNING request_id, target_kind, profile_id, name_hash, handles, requested_at, resolved_at
	`, rid[:], now))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume decryption request: %w", err)
	}
	if _, findErr := s.Find(ctx, rid); findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("request %s already resolved: %w", rid, sentinel.ErrAlreadyUsed)
}

const requestSelect = `
	SELECT request_id, target_kind, profile_id, name_hash, handles, requested_at, resolved_at
	FROM decryption_requests`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.PendingRequest, error) {
	var (
		rawID      []byte
		kind       string
		profileID  sql.NullInt64
		nameHash   []byte
		handles    pq.ByteaArray
		req        models.PendingRequest
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&rawID, &kind, &profileID, &nameHash, &handles, &req.RequestedAt, &resolvedAt); err != nil {
		return nil, err
	}
	rid, err := fhe.RequestIDFromBytes(rawID)
	if err != nil {
		return nil, err
	}
	req.RequestID = rid
	req.Target.Kind = models.TargetKind(kind)
	switch req.Target.Kind {
	case models.TargetProfile:
		req.Target = models.ProfileTarget(profileIDFrom(profileID))
	case models.TargetJurisdictionStats:
		h, err := jurisdictionmodels.NameHashFromBytes(nameHash)
		if err != nil {
			return nil, err
		}
		req.Target = models.JurisdictionStatsTarget(h)
	}
	for _, raw := range handles {
		h, err := fhe.HandleFromBytes(raw)
		if err != nil {
			return nil, err
		}
		req.Handles = append(req.Handles, h)
	}
	if resolvedAt.Valid {
		req.ResolvedAt = &resolvedAt.Time
	}
	return &req, nil
}

func profileIDFrom(v sql.NullInt64) profilemodels.ProfileID {
	if !v.Valid || v.Int64 < 0 {
		return 0
	}
	return profilemodels.ProfileID(v.Int64)
}
