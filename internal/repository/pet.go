package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pet-arena/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

var ErrPetNotFound = errors.New("pet not found in cache")

// PetRepository is the token-id keyed cache of chain state joined with off-chain metadata.
type PetRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPetRepository(sqlDB *sql.DB, logger zerolog.Logger) *PetRepository {
	return &PetRepository{
		db:     sqlDB,
		logger: logger.With().Str("component", "pet_repository").Logger(),
	}
}

const petColumns = `token_id, token_index, owner, token_uri, name, image, creator, multiplier, level, happiness, power, points, fetched_at`

func (r *PetRepository) Get(ctx context.Context, tokenID uint64) (*domain.Pet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+petColumns+` FROM pets WHERE token_id = ?`, tokenID)
	pet, err := scanPet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPetNotFound
	}
	if err != nil {
		return nil, err
	}
	return pet, nil
}

func (r *PetRepository) List(ctx context.Context) ([]domain.Pet, error) {
	return r.query(ctx, `SELECT `+petColumns+` FROM pets ORDER BY token_index`)
}

func (r *PetRepository) Leaderboard(ctx context.Context, limit int) ([]domain.Pet, error) {
	if limit <= 0 {
		return r.query(ctx, `SELECT `+petColumns+` FROM pets ORDER BY points DESC, token_id`)
	}
	return r.query(ctx, `SELECT `+petColumns+` FROM pets ORDER BY points DESC, token_id LIMIT ?`, limit)
}

// NextIndex is the first enumeration index not yet cached.
func (r *PetRepository) NextIndex(ctx context.Context) (uint64, error) {
	var next uint64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(token_index) + 1, 0) FROM pets`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read next index: %w", err)
	}
	return next, nil
}

// Refreshable returns rows marked stale or fetched before now-ttl.
func (r *PetRepository) Refreshable(ctx context.Context, ttl time.Duration) ([]domain.Pet, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	return r.query(ctx, `SELECT `+petColumns+` FROM pets WHERE stale = 1 OR fetched_at < ? ORDER BY token_index`, cutoff)
}

func (r *PetRepository) Upsert(ctx context.Context, pet *domain.Pet) error {
	now := time.Now().UTC()
	fetchedAt := pet.FetchedAt.UTC()
	if pet.FetchedAt.IsZero() {
		fetchedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pets (token_id, token_index, owner, token_uri, name, image, creator, multiplier, level,
			happiness, power, points, stale, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			token_index = excluded.token_index,
			owner = excluded.owner,
			token_uri = excluded.token_uri,
			name = excluded.name,
			image = excluded.image,
			creator = excluded.creator,
			multiplier = excluded.multiplier,
			level = excluded.level,
			happiness = excluded.happiness,
			power = excluded.power,
			points = excluded.points,
			stale = 0,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at`,
		pet.TokenID, pet.Index, pet.Owner, pet.TokenURI, pet.Name, pet.Image, pet.Creator, pet.Multiplier, pet.Level,
		pet.Happiness, pet.Power, pet.Points, fetchedAt, now, now,
	)
	if err != nil {
		r.logger.Error().Err(err).Uint64("token_id", pet.TokenID).Msg("failed to upsert pet")
		return fmt.Errorf("failed to upsert pet %d: %w", pet.TokenID, err)
	}
	return nil
}

// Invalidate marks a single token for refresh on the next read.
func (r *PetRepository) Invalidate(ctx context.Context, tokenID uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pets SET stale = 1, updated_at = ? WHERE token_id = ?`, time.Now().UTC(), tokenID)
	if err != nil {
		return fmt.Errorf("failed to invalidate pet %d: %w", tokenID, err)
	}
	n, _ := res.RowsAffected()
	r.logger.Debug().Uint64("token_id", tokenID).Int64("rows", n).Msg("pet invalidated")
	return nil
}

// TruncateFrom drops rows whose enumeration index is no longer below supply.
func (r *PetRepository) TruncateFrom(ctx context.Context, supply uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pets WHERE token_index >= ?`, supply)
	if err != nil {
		return 0, fmt.Errorf("failed to truncate pets: %w", err)
	}
	return res.RowsAffected()
}

func (r *PetRepository) query(ctx context.Context, query string, args ...any) ([]domain.Pet, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pets: %w", err)
	}
	defer rows.Close()

	var pets []domain.Pet
	for rows.Next() {
		pet, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		pets = append(pets, *pet)
	}
	return pets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPet(s scanner) (*domain.Pet, error) {
	var p domain.Pet
	err := s.Scan(&p.TokenID, &p.Index, &p.Owner, &p.TokenURI, &p.Name, &p.Image, &p.Creator,
		&p.Multiplier, &p.Level, &p.Happiness, &p.Power, &p.Points, &p.FetchedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
