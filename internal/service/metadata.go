package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"

	"github.com/rs/zerolog"
)

// AttributeDelta is a signed change to one trait.
type AttributeDelta struct {
	TraitType domain.TraitType `json:"trait_type"`
	Value     float64          `json:"value"`
}

// Changes is a sparse metadata update. Nil fields are left alone.
type Changes struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Attributes  []AttributeDelta `json:"attributes"`
}

type EvolveResult struct {
	Metadata *domain.Metadata
	Receipt  *domain.Receipt
	URL      string
}

type MetadataService struct {
	storage Storage
	logger  zerolog.Logger
}

func NewMetadataService(storage Storage, logger zerolog.Logger) *MetadataService {
	return &MetadataService{
		storage: storage,
		logger:  logger.With().Str("component", "metadata_service").Logger(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApplyChanges returns a new document with deltas added to their traits and
// Points recomputed as (Happiness + Power) * Multiplier. doc is not modified.
func ApplyChanges(doc *domain.Metadata, changes Changes) (*domain.Metadata, error) {
	order := make([]domain.TraitType, 0, len(changes.Attributes))
	deltas := make(map[domain.TraitType]float64, len(changes.Attributes))
	for _, d := range changes.Attributes {
		if d.TraitType == domain.TraitPoints {
			return nil, ErrDerivedTrait
		}
		if !domain.IsKnownTrait(d.TraitType) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTrait, d.TraitType)
		}
		if _, seen := deltas[d.TraitType]; !seen {
			order = append(order, d.TraitType)
		}
		deltas[d.TraitType] += d.Value
	}

	out := *doc
	out.Attributes = make([]domain.Attribute, 0, len(doc.Attributes)+len(order)+1)
	applied := make(map[domain.TraitType]bool, len(deltas))
	for _, a := range doc.Attributes {
		delta, ok := deltas[a.TraitType]
		if !ok || applied[a.TraitType] {
			out.Attributes = append(out.Attributes, a)
			continue
		}
		current, ok := a.Number()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNonNumericTrait, a.TraitType)
		}
		out.Attributes = append(out.Attributes, domain.NumericAttribute(a.TraitType, round2(current+delta)))
		applied[a.TraitType] = true
	}
	for _, t := range order {
		if !applied[t] {
			out.Attributes = append(out.Attributes, domain.NumericAttribute(t, round2(deltas[t])))
		}
	}

	happiness := out.TraitNumber(domain.TraitHappiness, 0)
	power := out.TraitNumber(domain.TraitPower, 0)
	multiplier := out.TraitNumber(domain.TraitMultiplier, 1)
	points := domain.NumericAttribute(domain.TraitPoints, round2((happiness+power)*multiplier))

	replaced := false
	for i, a := range out.Attributes {
		if a.TraitType == domain.TraitPoints {
			out.Attributes[i] = points
			replaced = true
		}
	}
	if !replaced {
		out.Attributes = append(out.Attributes, points)
	}

	if changes.Name != nil {
		out.Name = *changes.Name
	}
	if changes.Description != nil {
		out.Description = *changes.Description
	}
	return &out, nil
}

// Current fetches and decodes the latest version of a mutable document.
func (s *MetadataService) Current(ctx context.Context, rootTxID string) (*domain.Metadata, error) {
	raw, err := s.Read(ctx, rootTxID)
	if err != nil {
		return nil, err
	}
	var doc domain.Metadata
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata %s: %w", rootTxID, err)
	}
	return &doc, nil
}

// Read returns the latest version's bytes unchanged.
func (s *MetadataService) Read(ctx context.Context, rootTxID string) ([]byte, error) {
	if err := validateRootTxID(rootTxID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	raw, err := s.storage.FetchMutable(ctx, rootTxID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata %s: %w", rootTxID, err)
	}
	return raw, nil
}

// Evolve fetches the latest document, applies changes and uploads the result
// as a new version of the same mutable stream.
func (s *MetadataService) Evolve(ctx context.Context, rootTxID string, changes Changes) (*EvolveResult, error) {
	current, err := s.Current(ctx, rootTxID)
	if err != nil {
		return nil, err
	}
	next, err := ApplyChanges(current, changes)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.UploadTimeout)
	defer cancel()

	receipt, err := s.storage.Upload(ctx, data, []domain.Tag{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "Root-TX", Value: rootTxID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload evolved metadata: %w", err)
	}

	s.logger.Info().
		Str("root_tx", rootTxID).
		Str("evolved_tx", receipt.ID).
		Float64("points", next.TraitNumber(domain.TraitPoints, 0)).
		Msg("metadata evolved")

	return &EvolveResult{Metadata: next, Receipt: receipt, URL: s.storage.MutableURL(rootTxID)}, nil
}

func validateRootTxID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?# ") {
		return fmt.Errorf("%w: %q", ErrInvalidRootTx, id)
	}
	return nil
}

// rootFromURI extracts the root transaction id from a mutable gateway URL.
func rootFromURI(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
