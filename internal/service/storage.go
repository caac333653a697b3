package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"pet-arena/internal/chain"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type StorageService struct {
	storage    Storage
	uploadDir  string
	fundAmount string
	logger     zerolog.Logger
}

func NewStorageService(storage Storage, cfg *config.Config, logger zerolog.Logger) *StorageService {
	return &StorageService{
		storage:    storage,
		uploadDir:  cfg.UploadDir,
		fundAmount: cfg.FundAmount,
		logger:     logger.With().Str("component", "storage_service").Logger(),
	}
}

type FileUpload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type UploadResult struct {
	URL  string `json:"url"`
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

type EvolveFileResult struct {
	Message     string `json:"message"`
	URL         string `json:"url"`
	EvolvedTxID string `json:"evolvedTxId"`
}

// mutableTags marks an upload as the root of a mutable stream.
func mutableTags(contentType string) []domain.Tag {
	return []domain.Tag{
		{Name: "application-id", Value: constants.ApplicationID},
		{Name: "Variant", Value: "T"},
		{Name: "Content-Type", Value: contentType},
	}
}

// UploadData stores a JSON payload. A JSON string is stored as its text, any
// other value as its encoded form.
func (s *StorageService) UploadData(ctx context.Context, payload json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return "", ErrNoData
	}
	data := []byte(trimmed)
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		if text == "" {
			return "", ErrNoData
		}
		data = []byte(text)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.UploadTimeout)
	defer cancel()

	receipt, err := s.storage.Upload(ctx, data, nil)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("id", receipt.ID).Int("bytes", len(data)).Msg("data uploaded")
	return s.storage.GatewayURL(receipt.ID), nil
}

// UploadFile stores a file as the root of a new mutable stream.
func (s *StorageService) UploadFile(ctx context.Context, f *FileUpload) (*UploadResult, error) {
	if f == nil || f.Body == nil {
		return nil, ErrNoFile
	}
	receipt, err := s.uploadSpooled(ctx, f, mutableTags(contentTypeOf(f)))
	if err != nil {
		return nil, err
	}
	return &UploadResult{URL: s.storage.MutableURL(receipt.ID), ID: receipt.ID, Size: receipt.Size}, nil
}

// EvolveFile stores a file as the next version of rootTxID.
func (s *StorageService) EvolveFile(ctx context.Context, rootTxID string, f *FileUpload) (*EvolveFileResult, error) {
	if f == nil || f.Body == nil || rootTxID == "" {
		return nil, ErrMissingRootTx
	}
	if err := validateRootTxID(rootTxID); err != nil {
		return nil, err
	}
	receipt, err := s.uploadSpooled(ctx, f, []domain.Tag{{Name: "Root-TX", Value: rootTxID}})
	if err != nil {
		return nil, err
	}
	return &EvolveFileResult{
		Message:     "Evolved successfully",
		URL:         s.storage.MutableURL(rootTxID),
		EvolvedTxID: receipt.ID,
	}, nil
}

// Fund deposits the configured amount with the bundler.
func (s *StorageService) Fund(ctx context.Context) (string, error) {
	amount, err := chain.ParseEther(s.fundAmount)
	if err != nil {
		return "", fmt.Errorf("invalid FUND_AMOUNT: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.ChainTxTimeout)
	defer cancel()

	res, err := s.storage.Fund(ctx, amount)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("tx", res.TxID).Str("amount", res.Quantity.String()).Msg("storage account funded")
	return fmt.Sprintf("Successfully funded %s %s", chain.FormatEther(res.Quantity), res.Token), nil
}

// uploadSpooled writes the body to UPLOAD_DIR, uploads it from disk and
// removes the copy.
func (s *StorageService) uploadSpooled(ctx context.Context, f *FileUpload, tags []domain.Tag) (*domain.Receipt, error) {
	path, err := s.spool(f)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove spooled upload")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, constants.UploadTimeout)
	defer cancel()

	receipt, err := s.storage.UploadFile(ctx, path, tags)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("id", receipt.ID).Int64("size", receipt.Size).Str("name", f.Name).Msg("file uploaded")
	return receipt, nil
}

func (s *StorageService) spool(f *FileUpload) (string, error) {
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+"-"+name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(f.Body, constants.MaxUploadBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > constants.MaxUploadBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrFileTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to spool upload: %w", err)
	}
	return path, nil
}

func contentTypeOf(f *FileUpload) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if t := mime.TypeByExtension(filepath.Ext(f.Name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
