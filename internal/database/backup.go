package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"practiceapi/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "practiceapi_"

// BackupService periodically snapshots the sqlite file into StoragePath.
type BackupService struct {
	db     *DB
	dbPath string
	config config.BackupConfig
	logger zerolog.Logger
}

func NewBackupService(db *DB, dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "backup").Logger()
	}
	return &BackupService{
		db:     db,
		dbPath: dbPath,
		config: cfg,
		logger: l,
	}
}

// Interval parses the configured schedule, falling back to a day.
func (s *BackupService) Interval() time.Duration {
	if s.config.Schedule == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("failed to parse backup schedule, using default 24h")
		return 24 * time.Hour
	}
	return d
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}

	interval := s.Interval()
	s.logger.Info().Dur("interval", interval).Msg("backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes a consistent copy of the database and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102_150405.000"))
	backupPath := filepath.Join(s.config.StoragePath, name)

	s.logger.Info().Str("path", backupPath).Msg("performing database backup")

	escaped := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := s.copyFile(backupPath); err != nil {
			return "", err
		}
	}

	s.logger.Info().Str("path", backupPath).Msg("backup completed")
	return backupPath, nil
}

// copyFile is not atomic and may capture a torn write.
func (s *BackupService) copyFile(backupPath string) error {
	source, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("failed to copy database file: %w", err)
	}
	return nil
}

// ListBackups returns backup file names, newest first.
func (s *BackupService) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("failed to delete backup")
			}
		}
	}
}
