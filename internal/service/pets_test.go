package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"pet-arena/internal/repository"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type petFixture struct {
	svc        *PetService
	reconcile  *ReconcileService
	chain      *fakeChain
	storage    *fakeStorage
	fetcher    *storageFetcher
	gen        *fakeGenerator
	pets       *repository.PetRepository
	evolutions *repository.EvolutionRepository
	db         *sql.DB
}

func newPetFixture(t *testing.T) *petFixture {
	cfg := testConfig(t)
	db := testDB(t)
	storage := newFakeStorage()
	chain := &fakeChain{}
	fetcher := &storageFetcher{storage: storage, failing: map[string]bool{}}
	gen := &fakeGenerator{}
	pets := repository.NewPetRepository(db, zerolog.Nop())
	evolutions := repository.NewEvolutionRepository(db, zerolog.Nop())
	metadata := NewMetadataService(storage, zerolog.Nop())
	generation := NewGenerationService(gen, cfg, zerolog.Nop())

	return &petFixture{
		svc:        NewPetService(chain, fetcher, storage, metadata, generation, pets, evolutions, cfg, zerolog.Nop()),
		reconcile:  NewReconcileService(metadata, evolutions, pets, cfg, zerolog.Nop()),
		chain:      chain,
		storage:    storage,
		fetcher:    fetcher,
		gen:        gen,
		pets:       pets,
		evolutions: evolutions,
		db:         db,
	}
}

// mintPet seeds a pet whose metadata lives in the fake storage.
func (f *petFixture) mintPet(t *testing.T, name string) *MintResult {
	t.Helper()
	res, err := f.svc.Mint(context.Background(), MintRequest{Image: pngURI, Name: name, Backstory: name + " story", Creator: "0xcreator"})
	require.NoError(t, err)
	return res
}

func (f *petFixture) metadataFor(t *testing.T, tokenID uint64) *domain.Metadata {
	t.Helper()
	uri, err := f.chain.TokenURI(context.Background(), tokenID)
	require.NoError(t, err)
	raw, err := f.storage.FetchMutable(context.Background(), rootFromURI(uri))
	require.NoError(t, err)
	var m domain.Metadata
	require.NoError(t, json.Unmarshal(raw, &m))
	return &m
}

func TestMint(t *testing.T) {
	f := newPetFixture(t)
	res := f.mintPet(t, "Pip")

	assert.Equal(t, uint64(1), res.TokenID)
	assert.Equal(t, "0xmint", res.TxHash)
	assert.Equal(t, "https://gw.test/mutable/tx1", res.ImageURL)
	assert.Equal(t, "https://gw.test/mutable/tx2", res.MetadataURL)

	meta := f.metadataFor(t, 1)
	assert.Equal(t, "Pip", meta.Name)
	assert.Equal(t, "Pip story", meta.Description)
	assert.Equal(t, res.ImageURL, meta.Image)
	assert.Equal(t, "0xcreator", meta.Creator)
	assert.Equal(t, 1.0, meta.TraitNumber(domain.TraitLevel, -1))
	assert.Equal(t, 5.0, meta.TraitNumber(domain.TraitHappiness, -1))
	assert.Equal(t, 0.0, meta.TraitNumber(domain.TraitPoints, -1))

	img := f.storage.uploads[0]
	assert.True(t, hasTag(img.tags, "Variant", "T"))
	assert.True(t, hasTag(img.tags, "Content-Type", "image/png"))
}

func TestMintDefaults(t *testing.T) {
	f := newPetFixture(t)
	_, err := f.svc.Mint(context.Background(), MintRequest{Image: pngURI})
	require.NoError(t, err)

	meta := f.metadataFor(t, 1)
	assert.Equal(t, "Unnamed Pet", meta.Name)
	assert.Equal(t, "An enigmatic creature.", meta.Description)
}

func TestMintRejectsBadImage(t *testing.T) {
	f := newPetFixture(t)
	_, err := f.svc.Mint(context.Background(), MintRequest{Image: "https://example.com/cat.png"})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Zero(t, f.storage.uploadCount())
}

func TestFeedAppliesDeltas(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")

	res, err := f.svc.Feed(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "0xfeed", res.TxHash)
	assert.Equal(t, domain.EvolutionApplied, res.Status)
	assert.Equal(t, "10000000000000000", f.chain.feeds[0].String())

	meta := f.metadataFor(t, 1)
	assert.Equal(t, 10.0, meta.TraitNumber(domain.TraitHappiness, 0))
	assert.Equal(t, 6.0, meta.TraitNumber(domain.TraitPower, 0))
	assert.Equal(t, 1.1, meta.TraitNumber(domain.TraitMultiplier, 0))
	assert.Equal(t, 17.6, meta.TraitNumber(domain.TraitPoints, 0))

	evo, err := f.evolutions.Get(context.Background(), res.EvolutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.EvolutionApplied, evo.Status)
	assert.Equal(t, res.EvolvedTxID, evo.EvolvedTxID)
}

func TestTrainChargesTrainFee(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")

	_, err := f.svc.Train(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "20000000000000000", f.chain.feeds[0].String())
	assert.Equal(t, 18.4, f.metadataFor(t, 1).TraitNumber(domain.TraitPoints, 0))
}

func TestFeedChainFailureLeavesMetadata(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	uploads := f.storage.uploadCount()
	f.chain.writeErr = errors.New("execution reverted")

	_, err := f.svc.Feed(context.Background(), 1)
	assert.ErrorContains(t, err, "execution reverted")
	assert.Equal(t, uploads, f.storage.uploadCount())

	history, err := f.svc.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFeedUploadFailureIsReconciled(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")

	f.storage.uploadErr = errors.New("bundler unavailable")
	res, err := f.svc.Feed(context.Background(), 1)
	require.ErrorIs(t, err, ErrMetadataDeferred)
	require.NotNil(t, res)
	assert.Equal(t, domain.EvolutionFailed, res.Status)
	assert.Equal(t, 5.0, f.metadataFor(t, 1).TraitNumber(domain.TraitHappiness, 0))

	stats, err := f.reconcile.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	f.storage.uploadErr = nil
	stats, err = f.reconcile.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 17.6, f.metadataFor(t, 1).TraitNumber(domain.TraitPoints, 0))

	evo, err := f.evolutions.Get(context.Background(), res.EvolutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.EvolutionApplied, evo.Status)
	assert.Equal(t, 2, evo.Attempts)

	stats, err = f.reconcile.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
}

func TestFeedAppliesMetadataWhenJournalUnavailable(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	_, err := f.db.Exec(`DROP TABLE evolutions`)
	require.NoError(t, err)

	res, err := f.svc.Feed(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "0xfeed", res.TxHash)
	assert.Equal(t, domain.EvolutionApplied, res.Status)
	assert.Empty(t, res.EvolutionID)
	assert.Equal(t, 10.0, f.metadataFor(t, 1).TraitNumber(domain.TraitHappiness, 0))
}

func TestFeedReportsTxHashWhenJournalAndUploadFail(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	_, err := f.db.Exec(`DROP TABLE evolutions`)
	require.NoError(t, err)
	f.storage.uploadErr = errors.New("bundler unavailable")

	res, err := f.svc.Feed(context.Background(), 1)
	require.ErrorIs(t, err, ErrMetadataDeferred)
	require.NotNil(t, res)
	assert.Equal(t, "0xfeed", res.TxHash)
	assert.Equal(t, domain.EvolutionFailed, res.Status)
}

func TestReconcileRetriesStalePendingEvolution(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	ctx := context.Background()

	changes, err := json.Marshal(feedChanges)
	require.NoError(t, err)
	evo := &domain.Evolution{
		TokenID:     1,
		RootTxID:    rootFromURI(f.chain.tokens[0].uri),
		Action:      domain.ActionFeed,
		Changes:     changes,
		ChainTxHash: "0xfeed",
	}
	require.NoError(t, f.evolutions.Create(ctx, evo))

	stats, err := f.reconcile.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted, "fresh pending rows belong to their request")

	_, err = f.db.Exec(`UPDATE evolutions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-2*constants.PendingEvolutionGrace), evo.ID)
	require.NoError(t, err)

	stats, err = f.reconcile.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 10.0, f.metadataFor(t, 1).TraitNumber(domain.TraitHappiness, 0))

	got, err := f.evolutions.Get(ctx, evo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EvolutionApplied, got.Status)
}

func TestReconcileFailsCorruptChanges(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	ctx := context.Background()

	f.storage.uploadErr = errors.New("bundler unavailable")
	res, err := f.svc.Feed(ctx, 1)
	require.ErrorIs(t, err, ErrMetadataDeferred)
	f.storage.uploadErr = nil

	_, err = f.db.Exec(`UPDATE evolutions SET changes = ? WHERE id = ?`, "{not json", res.EvolutionID)
	require.NoError(t, err)

	stats, err := f.reconcile.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Applied)
	assert.Equal(t, 5.0, f.metadataFor(t, 1).TraitNumber(domain.TraitHappiness, 0))
}

func TestRefreshKeepsCachedPetOnReadFailure(t *testing.T) {
	f := newPetFixture(t)
	err := f.svc.refresh(context.Background(), []domain.Pet{{TokenID: 99, Index: 0}})
	assert.NoError(t, err)
}

func TestRefreshStopsOnCancellation(t *testing.T) {
	f := newPetFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.refresh(ctx, []domain.Pet{{TokenID: 99, Index: 0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvolveWithPrompt(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	f.gen.texts = []string{"Pip found a portal."}

	res, err := f.svc.Evolve(context.Background(), 1, "a portal appears")
	require.NoError(t, err)
	assert.Equal(t, "0xlevel", res.TxHash)
	assert.Equal(t, 1, f.chain.levelUps)

	meta := f.metadataFor(t, 1)
	assert.Equal(t, 2.0, meta.TraitNumber(domain.TraitLevel, 0))
	assert.Equal(t, "Pip found a portal.", meta.Description)
	assert.Contains(t, f.gen.textCalls[0].Turns[0].Parts[0].Text, "Original Backstory: Pip story")
}

func TestEvolveWithoutPromptKeepsDescription(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")

	_, err := f.svc.Evolve(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Zero(t, f.gen.calls())

	meta := f.metadataFor(t, 1)
	assert.Equal(t, 2.0, meta.TraitNumber(domain.TraitLevel, 0))
	assert.Equal(t, "Pip story", meta.Description)
}

func TestEvolveGenerationFailureSkipsChain(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	f.gen.textErr = errors.New("model offline")

	_, err := f.svc.Evolve(context.Background(), 1, "grow")
	assert.Error(t, err)
	assert.Zero(t, f.chain.levelUps)
}

func TestListPetsEnumeratesIncrementally(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	f.mintPet(t, "Bo")

	pets, err := f.svc.ListPets(context.Background())
	require.NoError(t, err)
	require.Len(t, pets, 2)
	assert.Equal(t, "Pip", pets[0].Name)
	assert.Equal(t, "1.00", pets[0].Multiplier)
	assert.Equal(t, "1", pets[0].Level)
	assert.Equal(t, 10.0, pets[0].Points)
	assert.Equal(t, 2, f.chain.byIndexCalls)

	f.mintPet(t, "Cy")
	pets, err = f.svc.ListPets(context.Background())
	require.NoError(t, err)
	require.Len(t, pets, 3)
	assert.Equal(t, 3, f.chain.byIndexCalls, "only the new token is enumerated")
}

func TestListPetsDegradesMissingMetadata(t *testing.T) {
	f := newPetFixture(t)
	res := f.mintPet(t, "Pip")
	f.fetcher.failing[res.MetadataURL] = true

	pets, err := f.svc.ListPets(context.Background())
	require.NoError(t, err)
	require.Len(t, pets, 1)
	assert.Empty(t, pets[0].Image)
	assert.Equal(t, "Pet #1", pets[0].Name)
	assert.Equal(t, "0xowner", pets[0].Owner)
}

func TestFeedInvalidatesOnlyThatPet(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	f.mintPet(t, "Bo")
	_, err := f.svc.ListPets(context.Background())
	require.NoError(t, err)

	_, err = f.svc.Feed(context.Background(), 2)
	require.NoError(t, err)

	stale, err := f.pets.Refreshable(context.Background(), f.svc.cacheTTL)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, uint64(2), stale[0].TokenID)

	pet, err := f.svc.GetPet(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 16.0, pet.Happiness+pet.Power)
}

func TestLeaderboardUsesChainMultiplier(t *testing.T) {
	f := newPetFixture(t)
	f.mintPet(t, "Pip")
	f.mintPet(t, "Bo")
	f.chain.tokens[1].multiplier = ether(3)

	board, err := f.svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "Bo", board[0].Name)
	assert.Equal(t, 30.0, board[0].Points)
	assert.Equal(t, 10.0, board[1].Points)
}

func TestGetPetUnknown(t *testing.T) {
	f := newPetFixture(t)
	_, err := f.svc.GetPet(context.Background(), 42)
	assert.True(t, IsNotFound(err))
}
