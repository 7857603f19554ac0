package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/config"
)

const (
	backupPrefix          = "reda_backup_"
	defaultBackupInterval = 24 * time.Hour
)

// BackupService snapshots the database into StoragePath on a fixed interval
// and prunes snapshots older than RetentionDays.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := logger.With().Str("component", "backup").Logger()
	return &BackupService{db: db, config: cfg, logger: &l, now: time.Now}
}

// backupInterval reads Schedule as a Go duration.
func (s *BackupService) backupInterval() time.Duration {
	if s.config.Schedule == "" {
		return defaultBackupInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Invalid backup schedule, using 24h")
		return defaultBackupInterval
	}
	return d
}

// Start backs up once right away, then on every interval, until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}
	interval := s.backupInterval()
	s.logger.Info().Dur("interval", interval).Str("dir", s.config.StoragePath).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Backup failed")
		}
		s.CleanupOldBackups()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PerformBackup writes a consistent snapshot with VACUUM INTO and returns
// its path. File databases fall back to a plain copy when VACUUM fails.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	target := filepath.Join(s.config.StoragePath, backupPrefix+s.now().Format("20060102_150405.000")+".db")

	_, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, target)
	switch {
	case err == nil:
	case s.db.Path() == ":memory:":
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	default:
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying database file")
		if err := copyDatabaseFile(s.db.Path(), target); err != nil {
			return "", err
		}
	}

	s.logger.Info().Str("path", target).Msg("Database backup written")
	return target, nil
}

// copyDatabaseFile goes through a temp file so a partial copy never carries
// the backup prefix. The copy itself may still catch a write mid-flight.
func copyDatabaseFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), ".tmp-"+filepath.Base(dst))
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy database: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}
	return os.Rename(tmp, dst)
}

func (s *BackupService) backupEntries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(entries, func(e os.DirEntry) bool {
		return e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix)
	}), nil
}

// ListBackups returns backup file names, newest first.
func (s *BackupService) ListBackups() ([]string, error) {
	entries, err := s.backupEntries()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

// CleanupOldBackups removes backups older than RetentionDays. Zero keeps everything.
func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}
	entries, err := s.backupEntries()
	if err != nil {
		s.logger.Error().Err(err).Msg("Cannot read backup directory")
		return
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.config.StoragePath, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("Failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", e.Name()).Msg("Deleted old backup")
	}
}
