package jobs

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/storage"
)

const (
	sweepTimeout     = 2 * time.Minute
	sessionRetention = 90 * 24 * time.Hour
)

// Scheduler runs the periodic maintenance sweeps: expired reset tokens,
// stale session audit rows, and processed files no image row references
// anymore.
type Scheduler struct {
	cron     *cron.Cron
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	images   *repository.ImageRepository
	layout   *storage.Layout
	log      zerolog.Logger
}

func NewScheduler(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	images *repository.ImageRepository,
	layout *storage.Layout,
	log zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		users:    users,
		sessions: sessions,
		images:   images,
		layout:   layout,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 * * * *", s.sweepResetTokens); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 30 3 * * *", s.sweepSessions); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 4 * * *", s.sweepOrphanedFiles); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for any running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepResetTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	purged, err := s.users.PurgeExpiredResetTokens(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reset token sweep failed")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("expired reset tokens cleared")
	}
}

func (s *Scheduler) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := s.sessions.DeleteOlderThan(ctx, time.Now().Add(-sessionRetention))
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("stale sessions cleared")
	}
}

// sweepOrphanedFiles walks the processed/ subdirectories and removes any
// file no image row points at. A failed reprocess or an interrupted
// delete can leave such files behind.
func (s *Scheduler) sweepOrphanedFiles() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	referenced, err := s.images.ListProcessedPaths(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("orphan sweep failed")
		return
	}
	keep := make(map[string]struct{}, len(referenced))
	for _, rel := range referenced {
		keep[rel] = struct{}{}
	}

	uploadsRoot := s.layout.UploadsRoot()
	var orphans []string
	err = filepath.WalkDir(uploadsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Base(filepath.Dir(path)) != "processed" {
			return nil
		}
		rel, err := filepath.Rel(uploadsRoot, path)
		if err != nil {
			return err
		}
		rel = "uploads/" + filepath.ToSlash(rel)
		if _, ok := keep[rel]; !ok {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("orphan sweep walk failed")
		return
	}

	if len(orphans) == 0 {
		return
	}
	failed := s.layout.DeletePhysical(orphans)
	s.log.Info().
		Int("orphans", len(orphans)).
		Int("failed", len(failed)).
		Msg("orphaned processed files removed")
}
