// internal/services/backup_scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const scheduledBackupTimeout = 30 * time.Minute

// BackupScheduler runs backups on a cron schedule and prunes old ones.
type BackupScheduler struct {
	cron    *cron.Cron
	backups *BackupService
}

func NewBackupScheduler(backups *BackupService) *BackupScheduler {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &BackupScheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		backups: backups,
	}
}

// Start schedules RunOnce with a standard five field cron expression.
func (s *BackupScheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	logrus.WithField("schedule", schedule).Info("Backup scheduler started")
	return nil
}

func (s *BackupScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledBackupTimeout)
	defer cancel()

	if _, err := s.backups.Create(ctx, SystemActor); err != nil {
		logrus.WithError(err).Error("Scheduled backup failed")
		return
	}
	if _, err := s.backups.Prune(); err != nil {
		logrus.WithError(err).Warn("Backup pruning failed")
	}
}

// Stop waits for a running backup to finish or ctx to expire.
func (s *BackupScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Backup scheduler stop timed out")
	}
}
