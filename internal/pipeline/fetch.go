package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"zilazol/internal"
	"zilazol/internal/logger"
	"zilazol/internal/portal"
	"zilazol/internal/storage"
)

type FetchService struct {
	db      *storage.DB
	fetcher portal.Fetcher
	rawDir  string
	log     *logrus.Entry
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, rawDir string, fetcher portal.Fetcher) *FetchService {
	return &FetchService{db: db, fetcher: fetcher, rawDir: rawDir, log: logger.WithModule("fetch")}
}

// FetchAndStore downloads up to max files and records each one. Stored counts
// files that are new or whose content changed since the last fetch.
func (s *FetchService) FetchAndStore(ctx context.Context, chain internal.Chain, category internal.Category, max int) (FetchResult, error) {
	files, err := s.fetcher.Fetch(ctx, chain, category, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, f := range files {
		row, err := s.Store(f)
		if err != nil {
			return FetchResult{}, err
		}
		if row.Status == internal.FileFetched {
			stored++
		}
	}

	s.log.WithFields(logrus.Fields{"chain": chain.Name, "category": category, "fetched": len(files), "stored": stored}).Info("fetch done")
	return FetchResult{Fetched: len(files), Stored: stored}, nil
}

// Store writes the file content under its sha256 and upserts its files row.
func (s *FetchService) Store(f portal.File) (internal.FileRow, error) {
	hashBytes := sha256.Sum256(f.Content)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		return internal.FileRow{}, err
	}

	rawPath := filepath.Join(s.rawDir, hash+".xml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, f.Content, 0o644); err != nil {
			return internal.FileRow{}, err
		}
	}

	return s.db.UpsertFile(internal.FileRow{
		Chain:    f.Chain.Name,
		ChainID:  f.Chain.ID,
		Dialect:  f.Dialect,
		Category: f.Category,
		Name:     f.Name,
		Hash:     hash,
		RawRef:   rawPath,
		Status:   internal.FileFetched,
	})
}
