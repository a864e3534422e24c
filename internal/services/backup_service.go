// internal/services/backup_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/database"
	"github.com/javajoker/storefront-backend/internal/metrics"
	"github.com/javajoker/storefront-backend/internal/models"
	"github.com/javajoker/storefront-backend/internal/utils"
)

type BackupService struct {
	db            *gorm.DB
	cfg           *config.Config
	storage       *StorageService
	settings      *SettingsService
	audit         *AuditService
	notifications *NotificationService
	lookPath      func(string) (string, error)
	now           func() time.Time
}

func NewBackupService(db *gorm.DB, cfg *config.Config, storage *StorageService, settings *SettingsService, audit *AuditService, notifications *NotificationService) *BackupService {
	return &BackupService{
		db:            db,
		cfg:           cfg,
		storage:       storage,
		settings:      settings,
		audit:         audit,
		notifications: notifications,
		lookPath:      exec.LookPath,
		now:           time.Now,
	}
}

// method picks pg_dump when talking to PostgreSQL with the tool installed.
func (s *BackupService) method() (models.BackupMethod, string) {
	if !database.IsPostgres(s.db) {
		return models.BackupMethodJSONSnapshot, ""
	}
	bin, err := s.lookPath(s.cfg.Backup.PgDumpPath)
	if err != nil {
		return models.BackupMethodJSONSnapshot, ""
	}
	return models.BackupMethodPgDump, bin
}

func (s *BackupService) filePath(name string) string {
	return filepath.Join(s.cfg.Backup.Directory, name)
}

func (s *BackupService) pgEnv() []string {
	db := s.cfg.Database
	return append(os.Environ(), "PGPASSWORD="+db.Password, "PGSSLMODE="+db.SSLMode)
}

func (s *BackupService) pgArgs() []string {
	db := s.cfg.Database
	return []string{"--host", db.Host, "--port", db.Port, "--username", db.User, "--no-owner", "--no-privileges"}
}

// Create writes a backup file, records it and uploads it when configured.
// A failed attempt is recorded with status failed and returned with the error.
func (s *BackupService) Create(ctx context.Context, actor Actor) (*models.Backup, error) {
	if err := os.MkdirAll(s.cfg.Backup.Directory, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	method, bin := s.method()
	started := s.now()
	ext := ".json"
	if method == models.BackupMethodPgDump {
		ext = ".dump"
	}
	backup := &models.Backup{
		Filename:  fmt.Sprintf("backup-%s-%s%s", started.UTC().Format("20060102-150405"), uuid.NewString()[:8], ext),
		Method:    method,
		CreatedBy: actor.UserID,
	}
	path := s.filePath(backup.Filename)

	err := s.write(ctx, method, bin, path)
	if err == nil {
		err = s.finish(backup, path)
	}
	elapsed := s.now().Sub(started)

	if err != nil {
		metrics.RecordBackup(string(method), string(models.BackupStatusFailed), elapsed)
		_ = os.Remove(path)
		backup.Status = models.BackupStatusFailed
		backup.ErrorMessage = err.Error()
		if createErr := s.db.Create(backup).Error; createErr != nil {
			logrus.WithError(createErr).Error("Failed to record failed backup")
		}
		if notifyErr := s.notifications.NotifyStaff(nil, NotificationBackupFailed, "Backup failed", err.Error(), "backup", &backup.ID); notifyErr != nil {
			logrus.WithError(notifyErr).Warn("Failed to notify staff of backup failure")
		}
		logrus.WithError(err).WithField("method", method).Error("Backup failed")
		return backup, utils.NewAppError(http.StatusInternalServerError, "BACKUP_FAILED", "backup failed", err)
	}

	backup.Status = models.BackupStatusCompleted
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(backup).Error; err != nil {
			return fmt.Errorf("failed to record backup: %w", err)
		}
		return s.audit.RecordTx(tx, actor, AuditEntry{
			Action:       "backup.created",
			ResourceType: "backup",
			ResourceID:   &backup.ID,
			NewValues:    map[string]interface{}{"filename": backup.Filename, "method": method, "size_bytes": backup.SizeBytes},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordBackup(string(method), string(models.BackupStatusCompleted), elapsed)
	logrus.WithFields(logrus.Fields{
		"filename": backup.Filename,
		"method":   method,
		"size":     backup.SizeBytes,
		"duration": elapsed.String(),
	}).Info("Backup completed")
	return backup, nil
}

func (s *BackupService) write(ctx context.Context, method models.BackupMethod, bin, path string) error {
	if method == models.BackupMethodPgDump {
		args := append(s.pgArgs(), "--format=custom", "--file", path, s.cfg.Database.Database)
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Env = s.pgEnv()
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("pg_dump failed: %w: %s", err, truncate(string(out), 2000))
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if err := database.WriteSnapshot(ctx, s.db, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// finish computes the checksum and uploads the file.
func (s *BackupService) finish(backup *models.Backup, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	sum, size, err := utils.HashReader(f)
	if err != nil {
		return fmt.Errorf("failed to checksum backup: %w", err)
	}
	backup.Checksum = sum
	backup.SizeBytes = size

	if s.cfg.Backup.UploadToS3 && s.storage != nil && s.storage.RemoteEnabled() {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind backup file: %w", err)
		}
		key := "backups/" + backup.Filename
		if err := s.storage.PutObject(key, f, "application/octet-stream", false); err != nil {
			return err
		}
		backup.StorageKey = key
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (s *BackupService) List(params utils.PaginationParams) ([]models.Backup, int64, error) {
	query := s.db.Model(&models.Backup{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count backups: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "size_bytes"})
	query = utils.ApplyPagination(query, params)

	var backups []models.Backup
	if err := query.Find(&backups).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch backups: %w", err)
	}
	return backups, total, nil
}

func (s *BackupService) Get(id uuid.UUID) (*models.Backup, error) {
	var backup models.Backup
	if err := s.db.First(&backup, "id = ?", id).Error; err != nil {
		return nil, findOrNotFound(err, "Backup")
	}
	return &backup, nil
}

// Open returns the backup file, fetching it from object storage when the
// local copy is gone. The caller closes the reader.
func (s *BackupService) Open(id uuid.UUID) (*models.Backup, io.ReadCloser, error) {
	backup, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if backup.Status != models.BackupStatusCompleted {
		return nil, nil, utils.NewValidationError("backup did not complete", nil)
	}

	f, err := os.Open(s.filePath(backup.Filename))
	if err == nil {
		return backup, f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	if backup.StorageKey == "" || s.storage == nil {
		return nil, nil, utils.NewNotFoundError("Backup file")
	}
	body, err := s.storage.GetObject(backup.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return backup, body, nil
}

// localCopy makes sure the backup file exists on disk and returns its path.
func (s *BackupService) localCopy(backup *models.Backup) (string, error) {
	path := s.filePath(backup.Filename)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	_, body, err := s.Open(backup.ID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(s.cfg.Backup.Directory, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("failed to download backup: %w", err)
	}
	return path, nil
}

func verifyChecksum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()
	got, _, err := utils.HashReader(f)
	if err != nil {
		return fmt.Errorf("failed to checksum backup: %w", err)
	}
	if got != want {
		return utils.NewConflictError("backup checksum mismatch, file is corrupt")
	}
	return nil
}

// Restore replaces the database contents with the backup. JSON snapshots
// restore in one transaction; pg_dump archives via pg_restore
// --single-transaction.
func (s *BackupService) Restore(ctx context.Context, actor Actor, id uuid.UUID) (*models.Backup, error) {
	backup, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if backup.Status != models.BackupStatusCompleted {
		return nil, utils.NewValidationError("only completed backups can be restored", nil)
	}

	path, err := s.localCopy(backup)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(path, backup.Checksum); err != nil {
		return nil, err
	}

	started := s.now()
	switch backup.Method {
	case models.BackupMethodPgDump:
		err = s.pgRestore(ctx, path)
	default:
		err = s.restoreSnapshot(ctx, path)
	}
	if err != nil {
		logrus.WithError(err).WithField("backup_id", backup.ID).Error("Restore failed")
		return nil, err
	}
	metrics.RecordRestore(s.now().Sub(started))

	now := s.now()
	if err := s.db.Model(backup).Update("restored_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to record restore: %w", err)
	}
	backup.RestoredAt = &now
	s.audit.Record(actor, AuditEntry{
		Action:       "backup.restored",
		ResourceType: "backup",
		ResourceID:   &backup.ID,
		NewValues:    map[string]interface{}{"filename": backup.Filename, "method": backup.Method},
	})

	logrus.WithField("backup_id", backup.ID).Info("Backup restored")
	return backup, nil
}

func (s *BackupService) restoreSnapshot(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	snap, err := database.ReadSnapshot(f)
	if err != nil {
		return utils.NewValidationError(err.Error(), nil)
	}
	return database.RestoreSnapshot(ctx, s.db, snap)
}

func (s *BackupService) pgRestore(ctx context.Context, path string) error {
	if !database.IsPostgres(s.db) {
		return utils.NewValidationError("pg_dump archives can only be restored into PostgreSQL", nil)
	}
	bin := "pg_restore"
	if dir := filepath.Dir(s.cfg.Backup.PgDumpPath); dir != "." {
		bin = filepath.Join(dir, "pg_restore")
	}
	resolved, err := s.lookPath(bin)
	if err != nil {
		return utils.NewValidationError("pg_restore is not installed", nil)
	}

	args := append(s.pgArgs(), "--clean", "--if-exists", "--single-transaction", "--dbname", s.cfg.Database.Database, path)
	cmd := exec.CommandContext(ctx, resolved, args...)
	cmd.Env = s.pgEnv()
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_restore failed: %w: %s", err, truncate(string(out), 2000))
	}
	return nil
}

// Delete removes the file, the stored object and the record.
func (s *BackupService) Delete(actor Actor, id uuid.UUID) error {
	backup, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.remove(backup); err != nil {
		return err
	}
	s.audit.Record(actor, AuditEntry{
		Action:       "backup.deleted",
		ResourceType: "backup",
		ResourceID:   &backup.ID,
		OldValues:    map[string]interface{}{"filename": backup.Filename},
	})
	return nil
}

func (s *BackupService) remove(backup *models.Backup) error {
	if err := os.Remove(s.filePath(backup.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	if backup.StorageKey != "" && s.storage != nil {
		if err := s.storage.DeleteFile(backup.StorageKey); err != nil {
			logrus.WithError(err).WithField("key", backup.StorageKey).Warn("Failed to delete stored backup")
		}
	}
	if err := s.db.Unscoped().Delete(backup).Error; err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

// Prune keeps the newest completed backups up to the backup_retention
// setting and deletes the rest. It returns how many were removed.
func (s *BackupService) Prune() (int, error) {
	settings, err := s.settings.StoreSettings(nil)
	if err != nil {
		return 0, err
	}
	keep := settings.BackupRetention
	if keep <= 0 {
		return 0, nil
	}

	var completed []models.Backup
	if err := s.db.Where("status = ?", models.BackupStatusCompleted).
		Order("created_at desc").Find(&completed).Error; err != nil {
		return 0, fmt.Errorf("failed to list old backups: %w", err)
	}
	if len(completed) <= keep {
		return 0, nil
	}
	stale := completed[keep:]

	removed := 0
	for i := range stale {
		if err := s.remove(&stale[i]); err != nil {
			logrus.WithError(err).WithField("backup_id", stale[i].ID).Warn("Failed to prune backup")
			continue
		}
		removed++
	}
	if removed > 0 {
		logrus.WithField("removed", removed).Info("Old backups pruned")
	}
	return removed, nil
}
