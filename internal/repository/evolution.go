package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pet-arena/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var ErrEvolutionNotFound = errors.New("evolution not found")

// EvolutionRepository journals chain actions and the metadata update owed for each.
type EvolutionRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewEvolutionRepository(sqlDB *sql.DB, logger zerolog.Logger) *EvolutionRepository {
	return &EvolutionRepository{
		db:     sqlDB,
		logger: logger.With().Str("component", "evolution_repository").Logger(),
	}
}

const evolutionColumns = `id, token_id, root_tx_id, action, changes, chain_tx_hash, status, evolved_tx_id, last_error, attempts, created_at, updated_at`

// Create inserts e as pending, assigning its id and timestamps.
func (r *EvolutionRepository) Create(ctx context.Context, e *domain.Evolution) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate evolution id: %w", err)
	}
	now := time.Now().UTC()
	e.ID = id
	e.Status = domain.EvolutionPending
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO evolutions (`+evolutionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TokenID, e.RootTxID, string(e.Action), string(e.Changes), e.ChainTxHash, string(e.Status),
		e.EvolvedTxID, e.LastError, e.Attempts, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Uint64("token_id", e.TokenID).Str("action", string(e.Action)).Msg("failed to journal evolution")
		return fmt.Errorf("failed to create evolution: %w", err)
	}
	return nil
}

func (r *EvolutionRepository) Get(ctx context.Context, id string) (*domain.Evolution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+evolutionColumns+` FROM evolutions WHERE id = ?`, id)
	e, err := scanEvolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEvolutionNotFound
	}
	return e, err
}

func (r *EvolutionRepository) MarkApplied(ctx context.Context, id, evolvedTxID string) error {
	return r.update(ctx, id, `UPDATE evolutions SET status = ?, evolved_tx_id = ?, last_error = '', updated_at = ? WHERE id = ?`,
		string(domain.EvolutionApplied), evolvedTxID, time.Now().UTC(), id)
}

// MarkFailed records cause and counts the attempt.
func (r *EvolutionRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.update(ctx, id, `UPDATE evolutions SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		string(domain.EvolutionFailed), msg, time.Now().UTC(), id)
}

// ListRetryable returns evolutions with attempts left, oldest first: failed
// rows, plus pending rows untouched since staleBefore whose request died
// before recording an outcome.
func (r *EvolutionRepository) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Evolution, error) {
	return r.query(ctx, `SELECT `+evolutionColumns+` FROM evolutions
		WHERE (status = ? OR (status = ? AND updated_at < ?)) AND attempts < ?
		ORDER BY created_at LIMIT ?`,
		string(domain.EvolutionFailed), string(domain.EvolutionPending), staleBefore.UTC(), maxAttempts, limit)
}

func (r *EvolutionRepository) ListByToken(ctx context.Context, tokenID uint64) ([]domain.Evolution, error) {
	return r.query(ctx, `SELECT `+evolutionColumns+` FROM evolutions WHERE token_id = ? ORDER BY created_at DESC`, tokenID)
}

func (r *EvolutionRepository) update(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update evolution %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEvolutionNotFound
	}
	return nil
}

func (r *EvolutionRepository) query(ctx context.Context, query string, args ...any) ([]domain.Evolution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evolutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Evolution
	for rows.Next() {
		e, err := scanEvolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEvolution(s scanner) (*domain.Evolution, error) {
	var (
		e       domain.Evolution
		action  string
		status  string
		changes string
	)
	err := s.Scan(&e.ID, &e.TokenID, &e.RootTxID, &action, &changes, &e.ChainTxHash, &status,
		&e.EvolvedTxID, &e.LastError, &e.Attempts, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Action = domain.EvolutionAction(action)
	e.Status = domain.EvolutionStatus(status)
	e.Changes = []byte(changes)
	return &e, nil
}
