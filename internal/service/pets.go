package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"pet-arena/internal/chain"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"pet-arena/internal/repository"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	feedChanges = Changes{Attributes: []AttributeDelta{
		{TraitType: domain.TraitHappiness, Value: 5},
		{TraitType: domain.TraitPower, Value: 1},
		{TraitType: domain.TraitMultiplier, Value: 0.1},
	}}
	trainChanges = Changes{Attributes: []AttributeDelta{
		{TraitType: domain.TraitHappiness, Value: 1},
		{TraitType: domain.TraitPower, Value: 5},
		{TraitType: domain.TraitMultiplier, Value: 0.15},
	}}
)

type PetService struct {
	chain      ChainClient
	fetcher    MetadataFetcher
	storage    Storage
	metadata   *MetadataService
	generation *GenerationService
	pets       *repository.PetRepository
	evolutions *repository.EvolutionRepository
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

func NewPetService(
	chainClient ChainClient,
	fetcher MetadataFetcher,
	storage Storage,
	metadata *MetadataService,
	generation *GenerationService,
	pets *repository.PetRepository,
	evolutions *repository.EvolutionRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) *PetService {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = constants.PetCacheTTL
	}
	return &PetService{
		chain:      chainClient,
		fetcher:    fetcher,
		storage:    storage,
		metadata:   metadata,
		generation: generation,
		pets:       pets,
		evolutions: evolutions,
		cacheTTL:   ttl,
		logger:     logger.With().Str("component", "pet_service").Logger(),
	}
}

type MintRequest struct {
	Image     string `json:"image"`
	Name      string `json:"name"`
	Backstory string `json:"backstory"`
	Creator   string `json:"creator"`
}

type MintResult struct {
	TokenID     uint64 `json:"tokenId"`
	TxHash      string `json:"txHash"`
	ImageURL    string `json:"imageUrl"`
	MetadataURL string `json:"metadataUrl"`
}

// ActionResult reports a chain action and the metadata version it produced.
// EvolvedTxID is empty when the metadata update was deferred.
type ActionResult struct {
	TokenID     uint64                 `json:"tokenId"`
	TxHash      string                 `json:"txHash"`
	EvolutionID string                 `json:"evolutionId"`
	Status      domain.EvolutionStatus `json:"status"`
	EvolvedTxID string                 `json:"evolvedTxId,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Metadata    *domain.Metadata       `json:"metadata,omitempty"`
}

// Mint uploads the image and a default metadata document, both as mutable
// roots, then mints a token pointing at the metadata.
func (s *PetService) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	image, ok := parseDataURI(req.Image)
	if !ok {
		return nil, ErrInvalidImage
	}

	upCtx, cancel := context.WithTimeout(ctx, constants.UploadTimeout)
	defer cancel()

	imgReceipt, err := s.storage.Upload(upCtx, image.Data, mutableTags(image.MIMEType))
	if err != nil {
		return nil, fmt.Errorf("image upload failed: %w", err)
	}
	imageURL := s.storage.MutableURL(imgReceipt.ID)

	doc := defaultMetadata(req.Name, req.Backstory, imageURL, req.Creator)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	metaReceipt, err := s.storage.Upload(upCtx, data, mutableTags("application/json"))
	if err != nil {
		return nil, fmt.Errorf("metadata upload failed: %w", err)
	}
	metadataURL := s.storage.MutableURL(metaReceipt.ID)

	tokenID, txHash, err := s.chain.Mint(ctx, metadataURL)
	if err != nil {
		return nil, fmt.Errorf("mint failed: %w", err)
	}

	s.logger.Info().
		Uint64("token_id", tokenID).
		Str("tx", txHash).
		Str("metadata", metadataURL).
		Msg("pet minted")

	return &MintResult{TokenID: tokenID, TxHash: txHash, ImageURL: imageURL, MetadataURL: metadataURL}, nil
}

func defaultMetadata(name, backstory, imageURL, creator string) *domain.Metadata {
	if strings.TrimSpace(name) == "" {
		name = constants.DefaultPetName
	}
	if strings.TrimSpace(backstory) == "" {
		backstory = constants.DefaultPetStory
	}
	return &domain.Metadata{
		Name:        name,
		Description: backstory,
		Image:       imageURL,
		Creator:     creator,
		Attributes: []domain.Attribute{
			domain.NumericAttribute(domain.TraitLevel, 1),
			domain.NumericAttribute(domain.TraitHappiness, 5),
			domain.NumericAttribute(domain.TraitPower, 5),
			domain.NumericAttribute(domain.TraitMultiplier, 1),
			domain.NumericAttribute(domain.TraitPoints, 0),
		},
	}
}

func (s *PetService) Feed(ctx context.Context, tokenID uint64) (*ActionResult, error) {
	fee, err := chain.ParseEther(constants.FeedFee)
	if err != nil {
		return nil, err
	}
	root, err := s.rootOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	txHash, err := s.chain.Feed(ctx, tokenID, fee)
	if err != nil {
		return nil, fmt.Errorf("feed failed: %w", err)
	}
	return s.applyEvolution(ctx, tokenID, root, domain.ActionFeed, txHash, feedChanges)
}

func (s *PetService) Train(ctx context.Context, tokenID uint64) (*ActionResult, error) {
	fee, err := chain.ParseEther(constants.TrainFee)
	if err != nil {
		return nil, err
	}
	root, err := s.rootOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	txHash, err := s.chain.Train(ctx, tokenID, fee)
	if err != nil {
		return nil, fmt.Errorf("train failed: %w", err)
	}
	return s.applyEvolution(ctx, tokenID, root, domain.ActionTrain, txHash, trainChanges)
}

// Evolve levels the pet up and, when prompt is set, evolves its backstory.
// The backstory is generated before the level-up so a generation failure
// leaves chain and metadata untouched.
func (s *PetService) Evolve(ctx context.Context, tokenID uint64, prompt string) (*ActionResult, error) {
	root, err := s.rootOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	current, err := s.metadata.Current(ctx, root)
	if err != nil {
		return nil, err
	}

	description := current.Description
	if strings.TrimSpace(prompt) != "" && strings.TrimSpace(description) != "" {
		description, err = s.generation.EvolveBackstory(ctx, current.Description, prompt)
		if err != nil {
			return nil, err
		}
	}

	txHash, err := s.chain.LevelUp(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("level up failed: %w", err)
	}
	return s.applyEvolution(ctx, tokenID, root, domain.ActionEvolve, txHash, Changes{
		Description: &description,
		Attributes:  []AttributeDelta{{TraitType: domain.TraitLevel, Value: 1}},
	})
}

// rootOf is the root transaction id of the token's mutable metadata.
func (s *PetService) rootOf(ctx context.Context, tokenID uint64) (string, error) {
	uri, err := s.chain.TokenURI(ctx, tokenID)
	if err != nil {
		return "", fmt.Errorf("failed to read token uri: %w", err)
	}
	root := rootFromURI(uri)
	if err := validateRootTxID(root); err != nil {
		return "", err
	}
	return root, nil
}

// applyEvolution journals and applies the metadata half of a chain action. A
// failed upload leaves the journal row failed for the reconcile job and
// returns ErrMetadataDeferred alongside the partial result. The result is
// never nil so callers always learn the mined tx hash.
func (s *PetService) applyEvolution(ctx context.Context, tokenID uint64, root string, action domain.EvolutionAction, txHash string, changes Changes) (*ActionResult, error) {
	log := s.logger.With().Uint64("token_id", tokenID).Str("action", string(action)).Str("tx", txHash).Logger()

	defer func() {
		if err := s.pets.Invalidate(context.WithoutCancel(ctx), tokenID); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate cached pet")
		}
	}()

	result := &ActionResult{TokenID: tokenID, TxHash: txHash, Status: domain.EvolutionPending}

	encoded, err := json.Marshal(changes)
	if err != nil {
		result.Status = domain.EvolutionFailed
		return result, fmt.Errorf("%w: %v", ErrMetadataDeferred, err)
	}
	evo := &domain.Evolution{
		TokenID:     tokenID,
		RootTxID:    root,
		Action:      action,
		Changes:     encoded,
		ChainTxHash: txHash,
	}
	// The chain action is already mined, so a journal failure must not stop
	// the metadata update.
	journaled := true
	if err := s.evolutions.Create(ctx, evo); err != nil {
		journaled = false
		log.Error().Err(err).Msg("failed to journal evolution, applying metadata anyway")
	}

	if journaled {
		result.EvolutionID = evo.ID
	}

	res, err := s.metadata.Evolve(ctx, evo.RootTxID, changes)
	if err != nil {
		result.Status = domain.EvolutionFailed
		log.Error().Err(err).Str("evolution_id", evo.ID).Msg("metadata update failed after chain action")
		if !journaled {
			if cerr := s.evolutions.Create(context.WithoutCancel(ctx), evo); cerr != nil {
				log.Error().Err(cerr).RawJSON("changes", encoded).Str("root_tx", root).Msg("evolution neither journaled nor applied")
				return result, fmt.Errorf("%w: %v", ErrMetadataDeferred, err)
			}
			result.EvolutionID = evo.ID
		}
		if markErr := s.evolutions.MarkFailed(context.WithoutCancel(ctx), evo.ID, err); markErr != nil {
			log.Error().Err(markErr).Msg("failed to record evolution failure")
		}
		return result, fmt.Errorf("%w: %v", ErrMetadataDeferred, err)
	}

	if journaled {
		if err := s.evolutions.MarkApplied(ctx, evo.ID, res.Receipt.ID); err != nil {
			log.Warn().Err(err).Msg("failed to mark evolution applied")
		}
	}

	result.Status = domain.EvolutionApplied
	result.EvolvedTxID = res.Receipt.ID
	result.URL = res.URL
	result.Metadata = res.Metadata
	log.Info().Str("evolved_tx", res.Receipt.ID).Msg("pet evolved")
	return result, nil
}

func (s *PetService) History(ctx context.Context, tokenID uint64) ([]domain.Evolution, error) {
	return s.evolutions.ListByToken(ctx, tokenID)
}

func (s *PetService) ListPets(ctx context.Context) ([]domain.Pet, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.pets.List(ctx)
}

func (s *PetService) GetPet(ctx context.Context, tokenID uint64) (*domain.Pet, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.pets.Get(ctx, tokenID)
}

func (s *PetService) Leaderboard(ctx context.Context, limit int) ([]domain.Pet, error) {
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s.pets.Leaderboard(ctx, limit)
}

// Sync enumerates only tokens past the cached prefix and refreshes rows that
// are stale or older than the cache TTL.
func (s *PetService) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	supply, err := s.chain.TotalSupply(ctx)
	if err != nil {
		return fmt.Errorf("failed to read total supply: %w", err)
	}
	if dropped, err := s.pets.TruncateFrom(ctx, supply); err != nil {
		return err
	} else if dropped > 0 {
		s.logger.Info().Int64("dropped", dropped).Uint64("supply", supply).Msg("cache shrunk to supply")
	}

	next, err := s.pets.NextIndex(ctx)
	if err != nil {
		return err
	}
	if next < supply {
		if err := s.enumerate(ctx, next, supply); err != nil {
			return err
		}
	}

	stale, err := s.pets.Refreshable(ctx, s.cacheTTL)
	if err != nil {
		return err
	}
	if err := s.refresh(ctx, stale); err != nil {
		return fmt.Errorf("cache refresh interrupted: %w", err)
	}
	return nil
}

// enumerate loads indexes [from, to). On failure the contiguous successful
// prefix is still cached so NextIndex stays gap free.
func (s *PetService) enumerate(ctx context.Context, from, to uint64) error {
	loaded := make([]*domain.Pet, to-from)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.EnumerationConcurrency)
	for i := from; i < to; i++ {
		g.Go(func() error {
			tokenID, err := s.chain.TokenByIndex(gctx, i)
			if err != nil {
				return fmt.Errorf("tokenByIndex(%d): %w", i, err)
			}
			pet, err := s.loadPet(gctx, i, tokenID)
			if err != nil {
				return err
			}
			loaded[i-from] = pet
			return nil
		})
	}
	waitErr := g.Wait()

	stored := 0
	for _, pet := range loaded {
		if pet == nil {
			break
		}
		if err := s.pets.Upsert(ctx, pet); err != nil {
			return err
		}
		stored++
	}
	s.logger.Debug().Uint64("from", from).Uint64("to", to).Int("stored", stored).Msg("enumerated tokens")
	return waitErr
}

// refresh reloads pets in place. Per-pet failures keep the cached row; only
// cancellation of ctx aborts the pass.
func (s *PetService) refresh(ctx context.Context, pets []domain.Pet) error {
	if len(pets) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.EnumerationConcurrency)
	for _, cached := range pets {
		g.Go(func() error {
			pet, err := s.loadPet(gctx, cached.Index, cached.TokenID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn().Err(err).Uint64("token_id", cached.TokenID).Msg("refresh failed, serving cached pet")
				return nil
			}
			if err := s.pets.Upsert(gctx, pet); err != nil {
				s.logger.Warn().Err(err).Uint64("token_id", cached.TokenID).Msg("failed to store refreshed pet")
			}
			return nil
		})
	}
	return g.Wait()
}

// loadPet joins chain state with the token's metadata. A metadata failure
// degrades the image to empty and the name to "Pet #<id>" instead of failing
// the pet; a document without a name reads as the default pet name.
func (s *PetService) loadPet(ctx context.Context, index, tokenID uint64) (*domain.Pet, error) {
	owner, err := s.chain.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("ownerOf(%d): %w", tokenID, err)
	}
	uri, err := s.chain.TokenURI(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("tokenURI(%d): %w", tokenID, err)
	}
	multiplier, err := s.chain.Multiplier(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("multiplier(%d): %w", tokenID, err)
	}
	level, err := s.chain.Level(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("level(%d): %w", tokenID, err)
	}

	pet := &domain.Pet{
		TokenID:    tokenID,
		Index:      index,
		Owner:      owner,
		TokenURI:   uri,
		Name:       fmt.Sprintf("Pet #%d", tokenID),
		Multiplier: chain.FormatFixed(multiplier, 2),
		Level:      chain.FormatFixed(level, 0),
		FetchedAt:  time.Now().UTC(),
	}

	mctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()
	meta, err := s.fetcher.FetchMetadata(mctx, uri)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("token_id", tokenID).Msg("metadata unavailable, image left empty")
	} else {
		pet.Image = meta.Image
		pet.Name = meta.Name
		if pet.Name == "" {
			pet.Name = constants.DefaultPetName
		}
		pet.Creator = meta.Creator
		pet.Happiness = meta.TraitNumber(domain.TraitHappiness, 0)
		pet.Power = meta.TraitNumber(domain.TraitPower, 0)
	}

	m, _ := strconv.ParseFloat(pet.Multiplier, 64)
	pet.Points = round2((pet.Happiness + pet.Power) * m)
	return pet, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrPetNotFound) ||
		errors.Is(err, repository.ErrEvolutionNotFound) ||
		errors.Is(err, ErrBattleNotFound)
}
