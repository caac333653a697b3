package service

import "errors"

// Validation errors; the HTTP layer maps these to 400.
var (
	ErrPromptRequired    = errors.New("prompt is required")
	ErrBackstoryRequired = errors.New("original backstory is required")
	ErrInvalidImage      = errors.New("image must be a base64 data URI")
	ErrNoFile            = errors.New("no file provided")
	ErrMissingRootTx     = errors.New("missing file or rootTxId")
	ErrNoData            = errors.New("dataToUpload is required")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnknownTrait      = errors.New("unknown trait")
	ErrDerivedTrait      = errors.New("points are derived and cannot be set")
	ErrNonNumericTrait   = errors.New("trait value is not numeric")
	ErrSamePet           = errors.New("a pet cannot battle itself")
	ErrInvalidStake      = errors.New("stake must be greater than 0 and at most 1")
	ErrPetNotInBattle    = errors.New("pet is not part of this battle")
	ErrInvalidRootTx     = errors.New("invalid root transaction id")
)

var (
	ErrBattleInactive = errors.New("battle is no longer active")
	ErrBattleNotFound = errors.New("battle not found")

	// ErrMetadataDeferred means the chain transaction succeeded but the
	// metadata update did not; it stays journaled for reconciliation.
	ErrMetadataDeferred = errors.New("metadata update deferred")
)
