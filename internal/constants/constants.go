package constants

import "time"

const (
	PetCacheTTL = 5 * time.Minute
	// PendingEvolutionGrace is how long a pending evolution may sit before
	// reconcile treats its request as lost.
	PendingEvolutionGrace = 2 * GenerationTimeout
)

const (
	MaxRedirects = 5
)

const (
	ExternalAPITimeout = 10 * time.Second
	GenerationTimeout  = 2 * time.Minute
	UploadTimeout      = 2 * time.Minute
	ChainTxTimeout     = 3 * time.Minute
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// EnumerationConcurrency bounds parallel per-token chain reads while refilling the cache.
	EnumerationConcurrency = 4
	MaxUploadBytes         = 32 << 20
)

// Native token amounts charged by the pet contract.
const (
	FeedFee  = "0.01"
	TrainFee = "0.02"
	MaxStake = "1"
)

const (
	TextTemperature  = 0.7
	ImageTemperature = 1.0
	ImageTopP        = 0.95
	ImageTopK        = 40
)

const (
	ApplicationID   = "MyNFTDrop"
	DefaultPetName  = "Unnamed Pet"
	DefaultPetStory = "An enigmatic creature."
)
