package service

import (
	"context"
	"fmt"
	"pet-arena/internal/api"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"

	"github.com/rs/zerolog"
)

type GenerationService struct {
	gen        Generator
	imageModel string
	textModel  string
	logger     zerolog.Logger
}

func NewGenerationService(gen Generator, cfg *config.Config, logger zerolog.Logger) *GenerationService {
	return &GenerationService{
		gen:        gen,
		imageModel: cfg.GeminiImageModel,
		textModel:  cfg.GeminiTextModel,
		logger:     logger.With().Str("component", "generation_service").Logger(),
	}
}

type GenerateRequest struct {
	Prompt    string
	Image     string // optional data URI
	Backstory string
	ArtStyle  string
	History   []domain.HistoryItem
}

// GenerateResult carries a nil Image when the model returned no picture; the
// backstory and name are still usable.
type GenerateResult struct {
	Image     *domain.Blob
	Backstory string
	PetName   string
}

func (r *GenerateResult) ImageDataURI() string {
	if r.Image == nil {
		return ""
	}
	return encodeDataURI(r.Image)
}

// Generate runs backstory, name and image synthesis in that order.
func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrPromptRequired
	}

	var reference *domain.Blob
	if req.Image != "" {
		blob, ok := parseDataURI(req.Image)
		if !ok {
			return nil, ErrInvalidImage
		}
		reference = blob
	}

	ctx, cancel := context.WithTimeout(ctx, constants.GenerationTimeout)
	defer cancel()

	log := s.logger.With().Str("art_style", req.ArtStyle).Int("history", len(req.History)).Logger()

	backstory, err := s.backstory(ctx, req.Prompt, strings.TrimSpace(req.Backstory), reference)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("backstory_len", len(backstory)).Msg("backstory ready")

	name, err := s.name(ctx, backstory)
	if err != nil {
		return nil, err
	}

	turns := FormatHistory(req.History)
	current := domain.Turn{Role: domain.RoleUser, Parts: []domain.Part{
		{Text: "Backstory: " + backstory},
		{Text: imageInstructions(req.Prompt, req.ArtStyle)},
	}}
	if reference != nil {
		current.Parts = append(current.Parts, domain.Part{InlineData: reference})
	}
	turns = append(turns, current)

	image, err := s.gen.GenerateImage(ctx, api.ImageRequest{
		Model:       s.imageModel,
		Turns:       turns,
		Temperature: constants.ImageTemperature,
		TopP:        constants.ImageTopP,
		TopK:        constants.ImageTopK,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if image == nil {
		log.Warn().Str("pet_name", name).Msg("model returned no image")
	}

	log.Info().Str("pet_name", name).Bool("has_image", image != nil).Msg("pet generated")
	return &GenerateResult{Image: image, Backstory: backstory, PetName: name}, nil
}

func (s *GenerationService) backstory(ctx context.Context, prompt, existing string, reference *domain.Blob) (string, error) {
	parts := []domain.Part{{Text: backstoryPrompt(prompt, existing)}}
	if reference != nil {
		parts = append(parts, domain.Part{InlineData: reference})
	}
	text, err := s.gen.GenerateText(ctx, api.TextRequest{
		Model:       s.imageModel,
		Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: parts}},
		Temperature: constants.TextTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("backstory generation: %w", err)
	}
	return text, nil
}

func (s *GenerationService) name(ctx context.Context, backstory string) (string, error) {
	text, err := s.gen.GenerateText(ctx, api.TextRequest{
		Model:       s.imageModel,
		Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: []domain.Part{{Text: namePrompt(backstory)}}}},
		Temperature: constants.TextTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("name generation: %w", err)
	}
	if name := sanitizeName(text); name != "" {
		return name, nil
	}
	return constants.DefaultPetName, nil
}

// EvolveBackstory returns a subtly evolved backstory. With no guidance a
// default nudge is used; an empty model answer leaves the original intact.
func (s *GenerationService) EvolveBackstory(ctx context.Context, original, guidance string) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", ErrBackstoryRequired
	}

	ctx, cancel := context.WithTimeout(ctx, constants.GenerationTimeout)
	defer cancel()

	text, err := s.gen.GenerateText(ctx, api.TextRequest{
		Model:       s.textModel,
		Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: []domain.Part{{Text: evolvePrompt(original, strings.TrimSpace(guidance))}}}},
		Temperature: constants.TextTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("backstory evolution: %w", err)
	}
	if text == "" {
		s.logger.Warn().Msg("model returned empty backstory, keeping original")
		return original, nil
	}
	return text, nil
}
