package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix          = "morada_"
	defaultBackupInterval = 24 * time.Hour
)

// BackupService snapshots the reservation database on a fixed interval and
// prunes snapshots past the retention.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{db: db, config: cfg, logger: logger}
}

// Start snapshots once right away and then on every tick until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Debug().Msg("backups off")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("every", every).Str("dir", s.config.StoragePath).Msg("backups scheduled")

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		s.cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *BackupService) interval() time.Duration {
	if s.config.Schedule == "" {
		return defaultBackupInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Dur("every", defaultBackupInterval).Msg("bad backup schedule")
		return defaultBackupInterval
	}
	return d
}

func (s *BackupService) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	path, err := s.PerformBackup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("backup failed")
		return
	}
	removed := s.CleanupOldBackups()
	s.logger.Info().Str("path", path).Int("pruned", removed).Msg("backup written")
}

// PerformBackup writes a consistent copy with VACUUM INTO and returns its path.
// When the engine refuses, the file is copied instead.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + time.Now().UTC().Format("20060102T150405.000") + ".db"
	path := filepath.Join(s.config.StoragePath, name)

	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO '"+quoted+"'"); err != nil {
		s.logger.Warn().Err(err).Msg("vacuum into refused, copying the file")
		if err := s.copyDatabase(path); err != nil {
			return "", err
		}
	}
	return path, nil
}

// copyDatabase copies the live file through a temp name so a partial copy is
// never left under a backup name. Concurrent writes may still be missed.
func (s *BackupService) copyDatabase(dst string) error {
	src, err := os.Open(s.db.Path())
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to finalize backup file: %w", err)
	}
	return nil
}

// CleanupOldBackups deletes snapshots older than RetentionDays and reports how
// many went. Files without the backup prefix are never touched.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.config.StoragePath).Msg("backup dir unreadable")
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, e.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("stale backup not removed")
			continue
		}
		removed++
	}
	return removed
}
