package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"pet-arena/internal/domain"
)

// GET /api/battles
func (s *PetServer) handleListBattles(w http.ResponseWriter, r *http.Request) {
	list, err := s.battles.ListBattles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Battle{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// GET /api/battles/{battleId}
func (s *PetServer) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	battleID, err := uintParam(r, "battleId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	battle, err := s.battles.GetBattle(r.Context(), battleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, battle)
}

type createBattleRequest struct {
	Pet1 uint64 `json:"pet1"`
	Pet2 uint64 `json:"pet2"`
}

// POST /api/battles
func (s *PetServer) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req createBattleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	txHash, err := s.battles.CreateBattle(r.Context(), req.Pet1, req.Pet2)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"txHash": txHash})
}

// stakeRequest accepts the amount as a decimal string or a JSON number.
type stakeRequest struct {
	PetID  uint64      `json:"petId"`
	Amount json.Number `json:"amount"`
}

// POST /api/battles/{battleId}/stake
func (s *PetServer) handleStake(w http.ResponseWriter, r *http.Request) {
	battleID, err := uintParam(r, "battleId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	txHash, err := s.battles.Stake(r.Context(), battleID, req.PetID, req.Amount.String())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"txHash": txHash})
}

type resolveResponse struct {
	TxHash string         `json:"txHash"`
	Battle *domain.Battle `json:"battle,omitempty"`
}

// POST /api/battles/{battleId}/resolve
func (s *PetServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	battleID, err := uintParam(r, "battleId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	battle, txHash, err := s.battles.ResolveBattle(r.Context(), battleID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("battle %d: %w", battleID, err))
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{TxHash: txHash, Battle: battle})
}
