package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"pet-arena/internal/constants"
	"pet-arena/internal/service"
	"strings"
)

const (
	// largest file held in memory while waiting for the fields that name its target
	formMemory    = 8 << 20
	maxFieldBytes = 4 << 10
)

// POST /api/irys/fund
func (s *PetServer) handleFund(w http.ResponseWriter, r *http.Request) {
	msg, err := s.storage.Fund(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type uploadRequest struct {
	DataToUpload json.RawMessage `json:"dataToUpload"`
}

// POST /api/irys/upload
func (s *PetServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	url, err := s.storage.UploadData(r.Context(), req.DataToUpload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// POST /api/irys/upload-file
func (s *PetServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	mr, err := multipartBody(w, r)
	if err != nil {
		s.fail(w, r, service.ErrNoFile)
		return
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			s.fail(w, r, bodyErr(err, service.ErrNoFile))
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}
		res, err := s.storage.UploadFile(r.Context(), partUpload(part, part))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
		return
	}
}

// POST /api/irys/evolve-file
//
// The file streams to storage only once rootTxId has been read. A file sent
// ahead of rootTxId is held in memory, up to formMemory, until it arrives.
func (s *PetServer) handleEvolveFile(w http.ResponseWriter, r *http.Request) {
	mr, err := multipartBody(w, r)
	if err != nil {
		s.fail(w, r, service.ErrMissingRootTx)
		return
	}

	var (
		rootTxID string
		held     *service.FileUpload
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(w, r, bodyErr(err, service.ErrMissingRootTx))
			return
		}

		switch {
		case part.FormName() == "rootTxId" && rootTxID == "":
			rootTxID, err = fieldValue(part)
			if err != nil {
				s.fail(w, r, bodyErr(err, service.ErrMissingRootTx))
				return
			}
		case part.FormName() == "file" && part.FileName() != "" && held == nil:
			if rootTxID != "" {
				s.evolveFile(w, r, rootTxID, partUpload(part, part))
				return
			}
			held, err = holdPart(part)
			if err != nil {
				s.fail(w, r, bodyErr(err, service.ErrMissingRootTx))
				return
			}
		}
		part.Close()
	}

	if held == nil || rootTxID == "" {
		s.fail(w, r, service.ErrMissingRootTx)
		return
	}
	s.evolveFile(w, r, rootTxID, held)
}

func (s *PetServer) evolveFile(w http.ResponseWriter, r *http.Request, rootTxID string, upload *service.FileUpload) {
	res, err := s.storage.EvolveFile(r.Context(), rootTxID, upload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// multipartBody caps the request body at the upload limit and opens it as a
// part stream, so nothing touches disk before the handler decides to spool.
func multipartBody(w http.ResponseWriter, r *http.Request) (*multipart.Reader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes+formMemory)
	return r.MultipartReader()
}

// bodyErr keeps an oversized body distinct from a malformed or incomplete one.
func bodyErr(err, fallback error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fallback
}

func fieldValue(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func holdPart(part *multipart.Part) (*service.FileUpload, error) {
	data, err := io.ReadAll(io.LimitReader(part, formMemory+1))
	if err != nil {
		return nil, err
	}
	if len(data) > formMemory {
		return nil, service.ErrFileTooLarge
	}
	return partUpload(part, bytes.NewReader(data)), nil
}

func partUpload(part *multipart.Part, body io.Reader) *service.FileUpload {
	return &service.FileUpload{
		Name:        part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Body:        body,
	}
}
