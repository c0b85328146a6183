package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"medialib/internal/config"
	"medialib/internal/models"
	"medialib/internal/repository"
	"medialib/internal/storage"
)

type ReservationStore interface {
	ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]models.Asset, error)
	DeleteReservation(ctx context.Context, id string) error
}

type ObjectRemover interface {
	Remove(ctx context.Context, bucket, key string) error
}

// Scheduler runs periodic housekeeping. Today that is the sweep of upload
// reservations whose bytes never arrived.
type Scheduler struct {
	cron         *cron.Cron
	reservations ReservationStore
	objects      ObjectRemover
	cfg          config.JobsConfig
	log          zerolog.Logger
	now          func() time.Time
}

func NewScheduler(reservations ReservationStore, objects ObjectRemover, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		reservations: reservations,
		objects:      objects,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.reservations == nil || s.cfg.SweepSchedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	removed, err := s.SweepStaleReservations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reservation sweep failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("stale reservations swept")
	}
}

// SweepStaleReservations deletes reserved records older than the configured
// age together with any partial object. A record confirmed meanwhile is left
// alone.
func (s *Scheduler) SweepStaleReservations(ctx context.Context) (int, error) {
	age := s.cfg.StaleReservation
	if age <= 0 {
		age = time.Hour
	}
	limit := s.cfg.SweepBatchSize
	if limit <= 0 {
		limit = 100
	}

	stale, err := s.reservations.ListStaleReservations(ctx, s.now().Add(-age), limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, asset := range stale {
		if err := s.reservations.DeleteReservation(ctx, asset.ID); err != nil {
			if errors.Is(err, repository.ErrAssetNotFound) {
				continue
			}
			return removed, err
		}
		removed++

		if s.objects == nil {
			continue
		}
		if err := s.objects.Remove(ctx, asset.Bucket, asset.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Warn().Err(err).
				Str("asset_id", asset.ID).
				Str("object_key", asset.ObjectKey).
				Msg("remove partial object failed")
		}
	}
	return removed, nil
}
