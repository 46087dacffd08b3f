package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"zilazol/internal"
	"zilazol/internal/canon"
	"zilazol/internal/config"
	"zilazol/internal/entity"
	"zilazol/internal/logger"
	"zilazol/internal/parser"
	"zilazol/internal/portal"
	"zilazol/internal/registry"
	"zilazol/internal/storage"
)

type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	extractor *parser.Extractor
	canon     *canon.Canonicalizer
	log       *logrus.Entry
}

func NewProcessingService(db *storage.DB, cfg config.Config) (*ProcessingService, error) {
	reg := registry.Default()
	if cfg.RegistryFile != "" {
		loaded, err := registry.LoadFile(cfg.RegistryFile)
		if err != nil {
			return nil, err
		}
		reg = loaded
	}
	return &ProcessingService{
		db:        db,
		cfg:       cfg,
		extractor: parser.NewExtractor(entity.NewBuilder(reg, entity.DefaultTables()), cfg.ExtractWorkers),
		canon:     canon.New(cfg.CanonOptions()),
		log:       logger.WithModule("pipeline"),
	}, nil
}

type ProcessSummary struct {
	TraceID   string
	Files     int
	Processed int
	Failed    int
	Entities  int
	Rejected  int
}

func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) (ProcessSummary, error) {
	pending, err := s.db.ListFilesByStatus(internal.FileFetched, limit)
	if err != nil {
		return ProcessSummary{}, err
	}
	return s.process(ctx, pending, 0)
}

func (s *ProcessingService) ProcessFile(ctx context.Context, fileID int) (ProcessSummary, error) {
	file, err := s.db.GetFileByID(fileID)
	if err != nil {
		return ProcessSummary{}, err
	}
	if file == nil {
		return ProcessSummary{}, fmt.Errorf("file not found: id=%d", fileID)
	}
	return s.process(ctx, []internal.FileRow{*file}, file.ID)
}

// process extracts files in parallel and stores their entities. A file that
// cannot be read or extracted is marked failed; the others carry on.
func (s *ProcessingService) process(ctx context.Context, files []internal.FileRow, runFileID int) (ProcessSummary, error) {
	summary := ProcessSummary{TraceID: uuid.NewString(), Files: len(files)}
	if len(files) == 0 {
		return summary, nil
	}
	start := time.Now()

	docs := make([]parser.Document, 0, len(files))
	byName := map[string]internal.FileRow{}
	for _, f := range files {
		raw, err := readRaw(f.RawRef)
		if err != nil {
			s.fail(f, err)
			summary.Failed++
			continue
		}
		key := strconv.Itoa(f.ID)
		byName[key] = f
		docs = append(docs, parser.Document{Name: key, Raw: raw, Dialect: f.Dialect, Category: f.Category, ChainID: f.ChainID})
	}
	readDone := time.Now()

	outcomes := s.extractor.ExtractAll(ctx, docs)
	extractDone := time.Now()

	for _, out := range outcomes {
		f := byName[out.Document.Name]
		if out.Err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			s.fail(f, out.Err)
			summary.Failed++
			continue
		}

		batch := append(append([]entity.Entity{}, out.Result.Subchains...), out.Result.Entities...)
		n, err := s.db.InsertEntities(ctx, batch)
		if err != nil {
			return summary, fmt.Errorf("store %s: %w", f.Name, err)
		}
		if err := s.db.UpdateFileStatus(f.ID, internal.FileProcessed, ""); err != nil {
			return summary, err
		}
		s.recordMetadata(ingestKey(f.ChainID, f.Category))

		summary.Processed++
		summary.Entities += n
		summary.Rejected += len(out.Result.Rejected)
		s.log.WithFields(logrus.Fields{
			"trace":    summary.TraceID,
			"file":     f.Name,
			"chain":    f.Chain,
			"category": f.Category,
			"entities": n,
			"rejected": len(out.Result.Rejected),
		}).Info("file processed")
	}

	timings := map[string]float64{
		"readMs":    float64(readDone.Sub(start).Milliseconds()),
		"extractMs": float64(extractDone.Sub(readDone).Milliseconds()),
		"insertMs":  float64(time.Since(extractDone).Milliseconds()),
		"totalMs":   float64(time.Since(start).Milliseconds()),
	}
	counts := map[string]int{
		"files":     summary.Files,
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"entities":  summary.Entities,
		"rejected":  summary.Rejected,
	}
	if err := s.db.InsertRun(summary.TraceID, runFileID, timings, counts); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *ProcessingService) fail(f internal.FileRow, err error) {
	s.log.WithError(err).WithFields(logrus.Fields{"file": f.Name, "chain": f.Chain, "category": f.Category}).Warn("file failed")
	if uerr := s.db.UpdateFileStatus(f.ID, internal.FileFailed, err.Error()); uerr != nil {
		s.log.WithError(uerr).Error("cannot mark file failed")
	}
}

// CanonicalizeNames derives one name per item code from every name stored for
// it and persists the result. It returns the number of names written.
func (s *ProcessingService) CanonicalizeNames(ctx context.Context) (int, error) {
	groups, err := s.db.ItemNameGroups(ctx, 1)
	if err != nil {
		return 0, err
	}
	names, err := s.canon.CanonicalizeNames(ctx, groups)
	if err != nil {
		return 0, err
	}

	rows := make([]internal.CanonicalNameRow, 0, len(names))
	for code, name := range names {
		if name == "" {
			continue
		}
		rows = append(rows, internal.CanonicalNameRow{Code: code, Name: name, Variants: len(groups[code])})
	}
	if err := s.db.UpsertCanonicalNames(ctx, rows); err != nil {
		return 0, err
	}
	s.recordMetadata("names.last_canonicalize")
	s.log.WithFields(logrus.Fields{"codes": len(groups), "names": len(rows)}).Info("names canonicalized")
	return len(rows), nil
}

// recordMetadata stamps key with the current time. A failure is logged and
// does not fail the caller.
func (s *ProcessingService) recordMetadata(key string) {
	if err := s.db.SetMetadata(key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cannot record metadata")
	}
}

func ingestKey(chainID string, category internal.Category) string {
	return "ingest.last." + chainID + "." + string(category)
}

// LastIngest reports when files of category were last stored for chainID.
func (s *ProcessingService) LastIngest(chainID string, category internal.Category) (*time.Time, error) {
	v, err := s.db.GetMetadata(ingestKey(chainID, category))
	if err != nil || v == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func readRaw(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return portal.Decompress(blob)
}
