package service

import (
	"context"
	"encoding/json"
	"fmt"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/repository"
	"time"

	"github.com/rs/zerolog"
)

const reconcileBatch = 50

// ReconcileService retries metadata updates whose chain action already
// succeeded, bringing off-chain traits back in line with the chain.
type ReconcileService struct {
	metadata    *MetadataService
	evolutions  *repository.EvolutionRepository
	pets        *repository.PetRepository
	maxAttempts int
	logger      zerolog.Logger
}

func NewReconcileService(
	metadata *MetadataService,
	evolutions *repository.EvolutionRepository,
	pets *repository.PetRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *ReconcileService {
	return &ReconcileService{
		metadata:    metadata,
		evolutions:  evolutions,
		pets:        pets,
		maxAttempts: cfg.ReconcileMaxAttempts,
		logger:      logger.With().Str("component", "reconcile_service").Logger(),
	}
}

type ReconcileStats struct {
	Attempted int
	Applied   int
	Failed    int
}

func (s *ReconcileService) Reconcile(ctx context.Context) (*ReconcileStats, error) {
	staleBefore := time.Now().UTC().Add(-constants.PendingEvolutionGrace)
	pending, err := s.evolutions.ListRetryable(ctx, s.maxAttempts, staleBefore, reconcileBatch)
	if err != nil {
		return nil, err
	}

	stats := &ReconcileStats{}
	for _, evo := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Attempted++
		log := s.logger.With().Str("evolution_id", evo.ID).Uint64("token_id", evo.TokenID).Int("attempt", evo.Attempts+1).Logger()

		var changes Changes
		if err := json.Unmarshal(evo.Changes, &changes); err != nil {
			// undecodable rows can never succeed
			if markErr := s.evolutions.MarkFailed(ctx, evo.ID, fmt.Errorf("corrupt changes: %w", err)); markErr != nil {
				log.Warn().Err(markErr).Msg("failed to record corrupt evolution")
			}
			stats.Failed++
			continue
		}

		res, err := s.metadata.Evolve(ctx, evo.RootTxID, changes)
		if err != nil {
			if markErr := s.evolutions.MarkFailed(ctx, evo.ID, err); markErr != nil {
				log.Error().Err(markErr).Msg("failed to record retry failure")
			}
			log.Warn().Err(err).Msg("reconcile attempt failed")
			stats.Failed++
			continue
		}

		if err := s.evolutions.MarkApplied(ctx, evo.ID, res.Receipt.ID); err != nil {
			log.Error().Err(err).Msg("failed to mark evolution applied")
		}
		if err := s.pets.Invalidate(ctx, evo.TokenID); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate cached pet")
		}
		log.Info().Str("evolved_tx", res.Receipt.ID).Msg("evolution reconciled")
		stats.Applied++
	}
	return stats, nil
}
