package scheduler

import (
	"context"
	"pet-arena/internal/constants"
	"pet-arena/internal/service"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const reconcileTimeout = 5 * time.Minute

// ReconcileJob retries metadata updates left behind by failed uploads.
type ReconcileJob struct {
	reconcile *service.ReconcileService
	mu        sync.Mutex
	log       zerolog.Logger
}

func NewReconcileJob(reconcile *service.ReconcileService, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconcile: reconcile,
		log:       log.With().Str("job", "reconcile_evolutions").Logger(),
	}
}

func (j *ReconcileJob) Name() string {
	return "reconcile_evolutions"
}

func (j *ReconcileJob) Run() error {
	if !j.mu.TryLock() {
		j.log.Warn().Msg("previous run still in progress, skipping")
		return nil
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	start := time.Now()
	stats, err := j.reconcile.Reconcile(ctx)
	if err != nil {
		return err
	}
	if stats.Attempted > 0 {
		j.log.Info().
			Int("attempted", stats.Attempted).
			Int("applied", stats.Applied).
			Int("failed", stats.Failed).
			Dur("duration", time.Since(start)).
			Msg("reconcile pass finished")
	}
	return nil
}

// syncer is the part of the pet service the cache job drives.
type syncer interface {
	Sync(ctx context.Context) error
}

// CacheSyncJob keeps the pet cache warm so reads rarely hit the chain.
type CacheSyncJob struct {
	pets syncer
	mu   sync.Mutex
	log  zerolog.Logger
}

func NewCacheSyncJob(pets *service.PetService, log zerolog.Logger) *CacheSyncJob {
	return &CacheSyncJob{
		pets: pets,
		log:  log.With().Str("job", "pet_cache_sync").Logger(),
	}
}

func (j *CacheSyncJob) Name() string {
	return "pet_cache_sync"
}

func (j *CacheSyncJob) Run() error {
	if !j.mu.TryLock() {
		return nil
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
	defer cancel()
	return j.pets.Sync(ctx)
}
