package server

import (
	"net/http"
	"pet-arena/internal/domain"
	"pet-arena/internal/service"

	"github.com/rs/zerolog"
)

type imageRequest struct {
	Prompt    string               `json:"prompt"`
	Image     string               `json:"image,omitempty"`
	History   []domain.HistoryItem `json:"history,omitempty"`
	Backstory string               `json:"backstory,omitempty"`
	ArtStyle  string               `json:"artStyle,omitempty"`
}

type imageResponse struct {
	Image     *string `json:"image"`
	Backstory string  `json:"backstory"`
	PetName   string  `json:"petName"`
}

// POST /api/image
func (s *PetServer) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.gen.Generate(r.Context(), service.GenerateRequest{
		Prompt:    req.Prompt,
		Image:     req.Image,
		Backstory: req.Backstory,
		ArtStyle:  req.ArtStyle,
		History:   req.History,
	})
	if err != nil {
		if status := statusOf(err); status < http.StatusInternalServerError {
			s.writeError(w, status, messageOf(err))
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("pet generation failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to generate NFT pet",
			"details": err.Error(),
		})
		return
	}

	resp := imageResponse{Backstory: res.Backstory, PetName: res.PetName}
	if uri := res.ImageDataURI(); uri != "" {
		resp.Image = &uri
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type backstoryRequest struct {
	Prompt            string `json:"prompt"`
	OriginalBackstory string `json:"originalBackstory"`
}

// POST /api/generate-backstory
func (s *PetServer) handleGenerateBackstory(w http.ResponseWriter, r *http.Request) {
	var req backstoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	modified, err := s.gen.EvolveBackstory(r.Context(), req.OriginalBackstory, req.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"originalBackstory": req.OriginalBackstory,
		"modifiedBackstory": modified,
	})
}
