package service

import (
	"context"
	"fmt"
	"math/big"
	"pet-arena/internal/chain"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type BattleService struct {
	chain    ChainClient
	maxStake *big.Int
	logger   zerolog.Logger
}

func NewBattleService(chainClient ChainClient, logger zerolog.Logger) (*BattleService, error) {
	maxStake, err := chain.ParseEther(constants.MaxStake)
	if err != nil {
		return nil, err
	}
	return &BattleService{
		chain:    chainClient,
		maxStake: maxStake,
		logger:   logger.With().Str("component", "battle_service").Logger(),
	}, nil
}

// ListBattles returns every readable battle, newest first. Battles whose
// details cannot be read are skipped.
func (s *BattleService) ListBattles(ctx context.Context) ([]domain.Battle, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	count, err := s.chain.BattleCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read battle count: %w", err)
	}

	found := make([]*domain.Battle, count)
	var g errgroup.Group
	g.SetLimit(constants.EnumerationConcurrency)
	for i := uint64(0); i < count; i++ {
		g.Go(func() error {
			b, err := s.chain.BattleDetails(ctx, i)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn().Err(err).Uint64("battle_id", i).Msg("skipping unreadable battle")
				return nil
			}
			found[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list battles: %w", err)
	}

	battles := make([]domain.Battle, 0, count)
	for _, b := range found {
		if b != nil {
			battles = append(battles, *b)
		}
	}
	slices.Reverse(battles)
	return battles, nil
}

func (s *BattleService) GetBattle(ctx context.Context, battleID uint64) (*domain.Battle, error) {
	count, err := s.chain.BattleCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read battle count: %w", err)
	}
	if battleID >= count {
		return nil, ErrBattleNotFound
	}
	return s.chain.BattleDetails(ctx, battleID)
}

func (s *BattleService) CreateBattle(ctx context.Context, pet1, pet2 uint64) (string, error) {
	if pet1 == pet2 {
		return "", ErrSamePet
	}
	txHash, err := s.chain.CreateBattle(ctx, pet1, pet2)
	if err != nil {
		return "", fmt.Errorf("create battle failed: %w", err)
	}
	s.logger.Info().Uint64("pet1", pet1).Uint64("pet2", pet2).Str("tx", txHash).Msg("battle created")
	return txHash, nil
}

// Stake backs petID in an active battle with amount native tokens.
func (s *BattleService) Stake(ctx context.Context, battleID, petID uint64, amount string) (string, error) {
	wei, err := chain.ParseEther(amount)
	if err != nil || wei.Sign() <= 0 || wei.Cmp(s.maxStake) > 0 {
		return "", ErrInvalidStake
	}

	battle, err := s.GetBattle(ctx, battleID)
	if err != nil {
		return "", err
	}
	if !battle.Active {
		return "", ErrBattleInactive
	}
	if petID != battle.Pet1 && petID != battle.Pet2 {
		return "", ErrPetNotInBattle
	}

	txHash, err := s.chain.Stake(ctx, battleID, petID, wei)
	if err != nil {
		return "", fmt.Errorf("stake failed: %w", err)
	}
	s.logger.Info().Uint64("battle_id", battleID).Uint64("pet_id", petID).Str("amount", amount).Str("tx", txHash).Msg("stake placed")
	return txHash, nil
}

func (s *BattleService) ResolveBattle(ctx context.Context, battleID uint64) (*domain.Battle, string, error) {
	battle, err := s.GetBattle(ctx, battleID)
	if err != nil {
		return nil, "", err
	}
	if !battle.Active {
		return nil, "", ErrBattleInactive
	}
	txHash, err := s.chain.ResolveBattle(ctx, battleID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve battle failed: %w", err)
	}
	resolved, err := s.chain.BattleDetails(ctx, battleID)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("battle_id", battleID).Msg("resolved battle unreadable")
		return nil, txHash, nil
	}
	s.logger.Info().Uint64("battle_id", battleID).Uint64("winner", resolved.Winner).Str("tx", txHash).Msg("battle resolved")
	return resolved, txHash, nil
}
