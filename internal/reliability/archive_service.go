package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/riskpilot/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix     = "riskpilot-ledger-"
	archiveSuffix     = ".db.gz"
	archiveStamp      = "2006-01-02-150405"
	minArchivesToKeep = 3
)

// ArchiveInfo describes one uploaded ledger archive
type ArchiveInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// ArchiveResult is returned by a successful archive run
type ArchiveResult struct {
	Key       string `json:"key"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// ArchiveService ships gzipped ledger snapshots to object storage
type ArchiveService struct {
	store         ObjectStore
	db            *database.DB
	stagingDir    string
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

// NewArchiveService creates an archive service. Snapshots are staged
// under stagingDir before upload.
func NewArchiveService(store ObjectStore, db *database.DB, stagingDir string, retentionDays int, log zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		store:         store,
		db:            db,
		stagingDir:    stagingDir,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "ledger_archive").Logger(),
		now:           time.Now,
	}
}

// Archive snapshots the ledger, compresses it and uploads it
func (s *ArchiveService) Archive(ctx context.Context) (*ArchiveResult, error) {
	start := s.now()
	s.log.Info().Msg("Starting ledger archive")

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	tmpDir, err := os.MkdirTemp(s.stagingDir, "archive-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshotPath := filepath.Join(tmpDir, "ledger.db")
	if err := s.db.SnapshotTo(ctx, snapshotPath); err != nil {
		return nil, err
	}

	gzPath := snapshotPath + ".gz"
	checksum, err := compressFile(snapshotPath, gzPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	key := ArchiveKey(start)
	if err := s.store.Upload(ctx, key, f); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", key).
		Str("checksum", checksum).
		Int64("size_bytes", info.Size()).
		Dur("duration", s.now().Sub(start)).
		Msg("Ledger archive uploaded")

	return &ArchiveResult{Key: key, Checksum: checksum, SizeBytes: info.Size()}, nil
}

// ArchiveKey returns the object key for an archive taken at t
func ArchiveKey(t time.Time) string {
	return archivePrefix + t.UTC().Format(archiveStamp) + archiveSuffix
}

// ListArchives returns uploaded archives, newest first. Objects whose
// key does not follow the archive naming are ignored.
func (s *ArchiveService) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	now := s.now()
	archives := make([]ArchiveInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, archivePrefix) || !strings.HasSuffix(obj.Key, archiveSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, archivePrefix), archiveSuffix)
		ts, err := time.Parse(archiveStamp, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Failed to parse timestamp from archive key")
			continue
		}
		archives = append(archives, ArchiveInfo{
			Timestamp: ts,
			Key:       obj.Key,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// Rotate deletes archives older than the retention period. The newest
// three are always kept, and a retention of 0 keeps everything.
func (s *ArchiveService) Rotate(ctx context.Context) (int, error) {
	archives, err := s.ListArchives(ctx)
	if err != nil {
		return 0, err
	}
	if s.retentionDays <= 0 || len(archives) <= minArchivesToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for _, a := range archives[minArchivesToKeep:] {
		if !a.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, a.Key); err != nil {
			s.log.Error().Err(err).Str("key", a.Key).Msg("Failed to delete old archive")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Archive rotation completed")
	return deleted, nil
}

// compressFile gzips src into dst and returns the sha256 of the
// compressed output
func compressFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	hash := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hash))
	_, err = io.Copy(gz, in)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}
