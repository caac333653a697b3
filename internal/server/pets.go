package server

import (
	"context"
	"errors"
	"net/http"
	"pet-arena/internal/domain"
	"pet-arena/internal/service"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultLeaderboardSize = 10

// GET /api/metadata/{rootTxId}
func (s *PetServer) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	data, err := s.metadata.Read(r.Context(), chi.URLParam(r, "rootTxId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type evolveMetadataResponse struct {
	Message     string           `json:"message"`
	URL         string           `json:"url"`
	EvolvedTxID string           `json:"evolvedTxId"`
	Metadata    *domain.Metadata `json:"metadata"`
}

// POST /api/metadata/{rootTxId}/evolve
func (s *PetServer) handleEvolveMetadata(w http.ResponseWriter, r *http.Request) {
	var changes service.Changes
	if err := decodeJSON(w, r, &changes); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.metadata.Evolve(r.Context(), chi.URLParam(r, "rootTxId"), changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, evolveMetadataResponse{
		Message:     "Evolved successfully",
		URL:         res.URL,
		EvolvedTxID: res.Receipt.ID,
		Metadata:    res.Metadata,
	})
}

// GET /api/pets
func (s *PetServer) handleListPets(w http.ResponseWriter, r *http.Request) {
	list, err := s.pets.ListPets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Pet{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// POST /api/pets
func (s *PetServer) handleMint(w http.ResponseWriter, r *http.Request) {
	var req service.MintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pets.Mint(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

// GET /api/pets/{tokenId}
func (s *PetServer) handleGetPet(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uintParam(r, "tokenId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pet, err := s.pets.GetPet(r.Context(), tokenID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pet)
}

type evolutionView struct {
	ID          string                 `json:"id"`
	Action      domain.EvolutionAction `json:"action"`
	Status      domain.EvolutionStatus `json:"status"`
	TxHash      string                 `json:"txHash"`
	EvolvedTxID string                 `json:"evolvedTxId,omitempty"`
	LastError   string                 `json:"lastError,omitempty"`
	Attempts    int                    `json:"attempts"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// GET /api/pets/{tokenId}/history
func (s *PetServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uintParam(r, "tokenId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := s.pets.History(r.Context(), tokenID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]evolutionView, 0, len(history))
	for _, e := range history {
		out = append(out, evolutionView{
			ID:          e.ID,
			Action:      e.Action,
			Status:      e.Status,
			TxHash:      e.ChainTxHash,
			EvolvedTxID: e.EvolvedTxID,
			LastError:   e.LastError,
			Attempts:    e.Attempts,
			CreatedAt:   e.CreatedAt,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// POST /api/pets/{tokenId}/feed
func (s *PetServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	s.petAction(w, r, s.pets.Feed)
}

// POST /api/pets/{tokenId}/train
func (s *PetServer) handleTrain(w http.ResponseWriter, r *http.Request) {
	s.petAction(w, r, s.pets.Train)
}

type evolvePetRequest struct {
	Prompt string `json:"prompt"`
}

// POST /api/pets/{tokenId}/evolve
func (s *PetServer) handleEvolvePet(w http.ResponseWriter, r *http.Request) {
	var req evolvePetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.petAction(w, r, func(ctx context.Context, tokenID uint64) (*service.ActionResult, error) {
		return s.pets.Evolve(ctx, tokenID, req.Prompt)
	})
}

// petAction runs a chain-backed action. When the chain step succeeded but
// the metadata update was deferred, the journal entry is returned with 202.
func (s *PetServer) petAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uint64) (*service.ActionResult, error)) {
	tokenID, err := uintParam(r, "tokenId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := action(r.Context(), tokenID)
	if errors.Is(err, service.ErrMetadataDeferred) && res != nil {
		s.writeJSON(w, http.StatusAccepted, res)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// GET /api/leaderboard?limit=N
func (s *PetServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			limit = parsed
		}
	}
	list, err := s.pets.Leaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Pet{}
	}
	s.writeJSON(w, http.StatusOK, list)
}
