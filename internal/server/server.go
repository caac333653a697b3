package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"pet-arena/internal/chain"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"pet-arena/internal/service"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type generator interface {
	Generate(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	EvolveBackstory(ctx context.Context, original, guidance string) (string, error)
}

type storage interface {
	UploadData(ctx context.Context, payload json.RawMessage) (string, error)
	UploadFile(ctx context.Context, f *service.FileUpload) (*service.UploadResult, error)
	EvolveFile(ctx context.Context, rootTxID string, f *service.FileUpload) (*service.EvolveFileResult, error)
	Fund(ctx context.Context) (string, error)
}

type metadata interface {
	Read(ctx context.Context, rootTxID string) ([]byte, error)
	Evolve(ctx context.Context, rootTxID string, changes service.Changes) (*service.EvolveResult, error)
}

type pets interface {
	Mint(ctx context.Context, req service.MintRequest) (*service.MintResult, error)
	Feed(ctx context.Context, tokenID uint64) (*service.ActionResult, error)
	Train(ctx context.Context, tokenID uint64) (*service.ActionResult, error)
	Evolve(ctx context.Context, tokenID uint64, prompt string) (*service.ActionResult, error)
	History(ctx context.Context, tokenID uint64) ([]domain.Evolution, error)
	ListPets(ctx context.Context) ([]domain.Pet, error)
	GetPet(ctx context.Context, tokenID uint64) (*domain.Pet, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.Pet, error)
}

type battles interface {
	ListBattles(ctx context.Context) ([]domain.Battle, error)
	GetBattle(ctx context.Context, battleID uint64) (*domain.Battle, error)
	CreateBattle(ctx context.Context, pet1, pet2 uint64) (string, error)
	Stake(ctx context.Context, battleID, petID uint64, amount string) (string, error)
	ResolveBattle(ctx context.Context, battleID uint64) (*domain.Battle, string, error)
}

var (
	errInvalidBody = errors.New("invalid request body")
	errInvalidID   = errors.New("invalid id")
)

// PetServer hosts the JSON API used by the browser front end.
type PetServer struct {
	gen      generator
	storage  storage
	metadata metadata
	pets     pets
	battles  battles
	logger   zerolog.Logger
}

func NewPetServer(
	gen *service.GenerationService,
	storageSvc *service.StorageService,
	metadataSvc *service.MetadataService,
	petSvc *service.PetService,
	battleSvc *service.BattleService,
	logger zerolog.Logger,
) *PetServer {
	return &PetServer{
		gen:      gen,
		storage:  storageSvc,
		metadata: metadataSvc,
		pets:     petSvc,
		battles:  battleSvc,
		logger:   logger.With().Str("component", "pet_server").Logger(),
	}
}

func (s *PetServer) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/image", s.handleImage)
		r.Post("/generate-backstory", s.handleGenerateBackstory)

		r.Route("/irys", func(r chi.Router) {
			r.Post("/fund", s.handleFund)
			r.Post("/upload", s.handleUpload)
			r.Post("/upload-file", s.handleUploadFile)
			r.Post("/evolve-file", s.handleEvolveFile)
		})

		r.Route("/metadata/{rootTxId}", func(r chi.Router) {
			r.Get("/", s.handleGetMetadata)
			r.Post("/evolve", s.handleEvolveMetadata)
		})

		r.Route("/pets", func(r chi.Router) {
			r.Get("/", s.handleListPets)
			r.Post("/", s.handleMint)
			r.Route("/{tokenId}", func(r chi.Router) {
				r.Get("/", s.handleGetPet)
				r.Get("/history", s.handleHistory)
				r.Post("/feed", s.handleFeed)
				r.Post("/train", s.handleTrain)
				r.Post("/evolve", s.handleEvolvePet)
			})
		})
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Route("/battles", func(r chi.Router) {
			r.Get("/", s.handleListBattles)
			r.Post("/", s.handleCreateBattle)
			r.Route("/{battleId}", func(r chi.Router) {
				r.Get("/", s.handleGetBattle)
				r.Post("/stake", s.handleStake)
				r.Post("/resolve", s.handleResolve)
			})
		})
	})
}

func (s *PetServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var validationErrors = []error{
	errInvalidBody,
	errInvalidID,
	service.ErrPromptRequired,
	service.ErrBackstoryRequired,
	service.ErrInvalidImage,
	service.ErrNoFile,
	service.ErrMissingRootTx,
	service.ErrNoData,
	service.ErrUnknownTrait,
	service.ErrDerivedTrait,
	service.ErrNonNumericTrait,
	service.ErrSamePet,
	service.ErrInvalidStake,
	service.ErrPetNotInBattle,
	service.ErrInvalidRootTx,
	chain.ErrInvalidAmount,
}

// publicMessages keeps the wording browser clients already match on.
var publicMessages = map[error]string{
	service.ErrPromptRequired:    "Prompt is required",
	service.ErrBackstoryRequired: "Original backstory is required",
	service.ErrNoFile:            "No file provided",
	service.ErrMissingRootTx:     "Missing file or rootTxId",
}

func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, service.ErrBattleInactive):
		return http.StatusConflict
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	for target, msg := range publicMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// fail answers with the status err maps to. Server errors are logged with
// the request-scoped logger.
func (s *PetServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeError(w, status, messageOf(err))
}

func (s *PetServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *PetServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads an optional JSON body; an empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errInvalidID, name)
	}
	return v, nil
}
