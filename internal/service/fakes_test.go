package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"pet-arena/internal/api"
	"pet-arena/internal/config"
	"pet-arena/internal/database"
	"pet-arena/internal/domain"
	"pet-arena/internal/irys"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	mu         sync.Mutex
	texts      []string
	textErr    error
	image      *domain.Blob
	imageErr   error
	textCalls  []api.TextRequest
	imageCalls []api.ImageRequest
}

func (f *fakeGenerator) GenerateText(_ context.Context, req api.TextRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls = append(f.textCalls, req)
	if f.textErr != nil {
		return "", f.textErr
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	next := f.texts[0]
	f.texts = f.texts[1:]
	return next, nil
}

func (f *fakeGenerator) GenerateImage(_ context.Context, req api.ImageRequest) (*domain.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls = append(f.imageCalls, req)
	return f.image, f.imageErr
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.textCalls) + len(f.imageCalls)
}

type upload struct {
	data []byte
	tags []domain.Tag
	path string
}

// fakeStorage keeps mutable streams in memory: an upload tagged Root-TX
// replaces the latest version of that root.
type fakeStorage struct {
	mu        sync.Mutex
	seq       int
	latest    map[string][]byte
	uploads   []upload
	uploadErr error
	fetchErr  error
	funded    *big.Int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{latest: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(_ context.Context, data []byte, tags []domain.Tag) (*domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.store(data, tags, ""), nil
}

func (f *fakeStorage) UploadFile(_ context.Context, path string, tags []domain.Tag) (*domain.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.store(data, tags, path), nil
}

func (f *fakeStorage) store(data []byte, tags []domain.Tag, path string) *domain.Receipt {
	f.seq++
	id := fmt.Sprintf("tx%d", f.seq)
	f.uploads = append(f.uploads, upload{data: append([]byte(nil), data...), tags: tags, path: path})
	root := id
	for _, t := range tags {
		if t.Name == "Root-TX" {
			root = t.Value
		}
	}
	f.latest[root] = append([]byte(nil), data...)
	return &domain.Receipt{ID: id, Size: int64(len(data))}
}

func (f *fakeStorage) FetchMutable(_ context.Context, rootID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.latest[rootID]
	if !ok {
		return nil, errors.New("irys error: 404")
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStorage) GatewayURL(id string) string { return "https://gw.test/" + id }

func (f *fakeStorage) MutableURL(rootID string) string { return "https://gw.test/mutable/" + rootID }

func (f *fakeStorage) Fund(_ context.Context, amount *big.Int) (*irys.FundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funded = amount
	return &irys.FundResult{TxID: "0xfund", Quantity: amount, Token: "base-eth"}, nil
}

func (f *fakeStorage) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeStorage) lastUpload() upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[len(f.uploads)-1]
}

type fakeToken struct {
	id         uint64
	owner      string
	uri        string
	multiplier *big.Int
	level      *big.Int
}

type fakeChain struct {
	mu           sync.Mutex
	tokens       []fakeToken
	battles      []*domain.Battle
	brokenBattle map[uint64]bool
	byIndexCalls int
	feeds        []*big.Int
	levelUps     int
	stakes       []*big.Int
	created      [][2]uint64
	resolved     []uint64
	writeErr     error
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func (f *fakeChain) addToken(id uint64, uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, fakeToken{id: id, owner: "0xowner", uri: uri, multiplier: ether(1), level: ether(1)})
}

func (f *fakeChain) token(id uint64) (*fakeToken, error) {
	for i := range f.tokens {
		if f.tokens[i].id == id {
			return &f.tokens[i], nil
		}
	}
	return nil, fmt.Errorf("nonexistent token %d", id)
}

func (f *fakeChain) TotalSupply(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.tokens)), nil
}

func (f *fakeChain) TokenByIndex(_ context.Context, index uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIndexCalls++
	if index >= uint64(len(f.tokens)) {
		return 0, errors.New("index out of bounds")
	}
	return f.tokens[index].id, nil
}

func (f *fakeChain) OwnerOf(_ context.Context, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.token(id)
	if err != nil {
		return "", err
	}
	return t.owner, nil
}

func (f *fakeChain) TokenURI(_ context.Context, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.token(id)
	if err != nil {
		return "", err
	}
	return t.uri, nil
}

func (f *fakeChain) Multiplier(_ context.Context, id uint64) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.token(id)
	if err != nil {
		return nil, err
	}
	return t.multiplier, nil
}

func (f *fakeChain) Level(_ context.Context, id uint64) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.token(id)
	if err != nil {
		return nil, err
	}
	return t.level, nil
}

func (f *fakeChain) Mint(_ context.Context, uri string) (uint64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, "", f.writeErr
	}
	id := uint64(len(f.tokens) + 1)
	f.tokens = append(f.tokens, fakeToken{id: id, owner: "0xowner", uri: uri, multiplier: ether(1), level: ether(1)})
	return id, "0xmint", nil
}

func (f *fakeChain) Feed(_ context.Context, id uint64, value *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.feeds = append(f.feeds, value)
	return "0xfeed", nil
}

func (f *fakeChain) Train(_ context.Context, id uint64, value *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.feeds = append(f.feeds, value)
	return "0xtrain", nil
}

func (f *fakeChain) LevelUp(_ context.Context, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.levelUps++
	return "0xlevel", nil
}

func (f *fakeChain) CreateBattle(_ context.Context, pet1, pet2 uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, [2]uint64{pet1, pet2})
	return "0xbattle", nil
}

func (f *fakeChain) Stake(_ context.Context, battleID, petID uint64, value *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakes = append(f.stakes, value)
	return "0xstake", nil
}

func (f *fakeChain) ResolveBattle(_ context.Context, battleID uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, battleID)
	f.battles[battleID].Active = false
	f.battles[battleID].Winner = f.battles[battleID].Pet1
	return "0xresolve", nil
}

func (f *fakeChain) BattleCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.battles)), nil
}

func (f *fakeChain) BattleDetails(_ context.Context, battleID uint64) (*domain.Battle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.brokenBattle[battleID] || battleID >= uint64(len(f.battles)) {
		return nil, errors.New("execution reverted")
	}
	b := *f.battles[battleID]
	return &b, nil
}

// storageFetcher reads token metadata through the fake storage's mutable streams.
type storageFetcher struct {
	storage *fakeStorage
	failing map[string]bool
}

func (f *storageFetcher) FetchMetadata(ctx context.Context, uri string) (*domain.Metadata, error) {
	if f.failing[uri] {
		return nil, errors.New("gateway error: 504")
	}
	raw, err := f.storage.FetchMutable(ctx, rootFromURI(uri))
	if err != nil {
		return nil, err
	}
	var m domain.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		GeminiImageModel:     "image-model",
		GeminiTextModel:      "text-model",
		UploadDir:            t.TempDir(),
		FundAmount:           "0.0008",
		ReconcileMaxAttempts: 3,
	}
}

func testDB(t *testing.T) *sql.DB {
	db, err := database.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func hasTag(tags []domain.Tag, name, value string) bool {
	for _, t := range tags {
		if t.Name == name && t.Value == value {
			return true
		}
	}
	return false
}

func promptText(turn domain.Turn) string {
	var b strings.Builder
	for _, p := range turn.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
