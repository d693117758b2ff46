package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxlens/internal/fhe"
	"taxlens/internal/profile/models"
	"taxlens/pkg/platform/sentinel"
	"taxlens/pkg/platform/tx"
)

// PostgresStore persists profiles and shadows in PostgreSQL. Ids come from a
// single-row counter updated inside the creating transaction, so a rolled
// back creation does not leave a gap.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed Ciphertext Store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, profile *models.EncryptedProfile) (models.ProfileID, error) {
	var id models.ProfileID
	err := tx.Do(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		if err := q.QueryRowContext(ctx,
			`UPDATE profile_sequence SET last_id = last_id + 1 RETURNING last_id`,
		).Scan(&id); err != nil {
			return fmt.Errorf("allocate profile id: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO profiles (id, assets, family_structure, tax_jurisdiction, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, profile.Assets[:], profile.FamilyStructure[:], profile.TaxJurisdiction[:], profile.CreatedAt); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO profile_shadows (profile_id) VALUES ($1)`, id,
		); err != nil {
			return fmt.Errorf("insert profile shadow: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	profile.ID = id
	return id, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.ProfileID) (*models.EncryptedProfile, error) {
	if id == 0 {
		return nil, sentinel.ErrNotFound
	}
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, assets, family_structure, tax_jurisdiction, created_at
		FROM profiles
		WHERE id = $1
	`, id)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile by id: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) FindShadow(ctx context.Context, id models.ProfileID) (*models.DecryptedShadow, error) {
	if id == 0 {
		return nil, sentinel.ErrNotFound
	}
	shadow, err := scanShadow(tx.Conn(ctx, s.db).QueryRowContext(ctx, shadowSelect+` WHERE profile_id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile shadow: %w", err)
	}
	return shadow, nil
}

// ExecuteShadow locks the shadow row for the rest of the transaction, runs
// validate, and writes the mutated shadow back.
func (s *PostgresStore) ExecuteShadow(ctx context.Context, id models.ProfileID, validate func(*models.DecryptedShadow) error, mutate func(*models.DecryptedShadow)) (*models.DecryptedShadow, error) {
	if id == 0 {
		return nil, sentinel.ErrNotFound
	}
	var result *models.DecryptedShadow
	err := tx.Do(ctx, s.db, func(ctx context.Context, q tx.Querier) error {
		shadow, err := scanShadow(q.QueryRowContext(ctx, shadowSelect+` WHERE profile_id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock profile shadow: %w", err)
		}
		if err := validate(shadow); err != nil {
			return err
		}
		mutate(shadow)
		if _, err := q.ExecContext(ctx, `
			UPDATE profile_shadows SET
				assets = $2,
				family_structure = $3,
				tax_jurisdiction = $4,
				analyzed = $5,
				analysis_requests = $6,
				last_requested_at = $7,
				analyzed_at = $8
			WHERE profile_id = $1
		`, id,
			shadow.Assets,
			shadow.FamilyStructure,
			shadow.TaxJurisdiction,
			shadow.Analyzed,
			shadow.AnalysisRequests,
			shadow.LastRequestedAt,
			shadow.AnalyzedAt,
		); err != nil {
			return fmt.Errorf("update profile shadow: %w", err)
		}
		result = shadow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

const shadowSelect = `
	SELECT profile_id, assets, family_structure, tax_jurisdiction, analyzed,
		analysis_requests, last_requested_at, analyzed_at
	FROM profile_shadows`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.EncryptedProfile, error) {
	var p models.EncryptedProfile
	var assets, family, jurisdiction []byte
	if err := row.Scan(&p.ID, &assets, &family, &jurisdiction, &p.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Assets, err = fhe.HandleFromBytes(assets); err != nil {
		return nil, fmt.Errorf("profile %d assets: %w", p.ID, err)
	}
	if p.FamilyStructure, err = fhe.HandleFromBytes(family); err != nil {
		return nil, fmt.Errorf("profile %d family structure: %w", p.ID, err)
	}
	if p.TaxJurisdiction, err = fhe.HandleFromBytes(jurisdiction); err != nil {
		return nil, fmt.Errorf("profile %d jurisdiction: %w", p.ID, err)
	}
	return &p, nil
}

func scanShadow(row rowScanner) (*models.DecryptedShadow, error) {
	var s models.DecryptedShadow
	var lastRequested, analyzedAt sql.NullTime
	if err := row.Scan(
		&s.ProfileID,
		&s.Assets,
		&s.FamilyStructure,
		&s.TaxJurisdiction,
		&s.Analyzed,
		&s.AnalysisRequests,
		&lastRequested,
		&analyzedAt,
	); err != nil {
		return nil, err
	}
	if lastRequested.Valid {
		s.LastRequestedAt = &lastRequested.Time
	}
	if analyzedAt.Valid {
		s.AnalyzedAt = &analyzedAt.Time
	}
	return &s, nil
}
