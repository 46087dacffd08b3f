package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"zilazol/internal"
	"zilazol/internal/config"
	"zilazol/internal/logger"
	"zilazol/internal/pipeline"
	"zilazol/internal/portal"
	"zilazol/internal/storage"
)

type Service struct {
	db         *storage.DB
	cfg        config.Config
	chains     *internal.ChainCatalog
	newFetcher func(internal.Dialect) (portal.Fetcher, error)
	log        *logrus.Entry
}

func NewService(db *storage.DB, cfg config.Config, chains *internal.ChainCatalog) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		chains: chains,
		newFetcher: func(d internal.Dialect) (portal.Fetcher, error) {
			return portal.New(d, cfg)
		},
		log: logger.WithModule("listener"),
	}
}

// WithFetcherFactory replaces how a dialect's portal client is built.
func (s *Service) WithFetcherFactory(fn func(internal.Dialect) (portal.Fetcher, error)) *Service {
	s.newFetcher = fn
	return s
}

// Run repeats ingestion cycles until ctx is cancelled. A failed cycle is
// logged and the next one runs on schedule.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(s.cfg.ListenerIntervalSec, 1)) * time.Second
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Error("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Failed    int
	Names     int
}

// RunCycle fetches every configured chain and category, processes what was
// stored, then refreshes canonical names and exports when enabled.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	chains, err := s.selectedChains()
	if err != nil {
		return res, err
	}

	for _, chain := range chains {
		fetcher, err := s.newFetcher(chain.Dialect)
		if err != nil {
			s.log.WithError(err).WithField("chain", chain.Name).Warn("no portal client")
			continue
		}
		fetch := pipeline.NewFetchService(s.db, s.cfg.RawDir, fetcher)
		for _, category := range s.cfg.ListenerCategories {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			r, err := fetch.FetchAndStore(ctx, chain, category, s.cfg.ListenerFetchMax)
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"chain": chain.Name, "category": category}).Warn("fetch failed")
				continue
			}
			res.Fetched += r.Fetched
			res.Stored += r.Stored
		}
	}

	processor, err := pipeline.NewProcessingService(s.db, s.cfg)
	if err != nil {
		return res, err
	}
	summary, err := processor.ProcessPending(ctx, s.cfg.ListenerProcessBatch)
	if err != nil {
		return res, err
	}
	res.Processed, res.Failed = summary.Processed, summary.Failed

	if s.cfg.ListenerCanonicalize && summary.Processed > 0 {
		n, err := processor.CanonicalizeNames(ctx)
		if err != nil {
			return res, err
		}
		res.Names = n
	}

	if s.cfg.ListenerAutoExport && summary.Processed > 0 {
		if err := s.export(ctx); err != nil {
			return res, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"chains":    len(chains),
		"fetched":   res.Fetched,
		"stored":    res.Stored,
		"processed": res.Processed,
		"failed":    res.Failed,
		"names":     res.Names,
	}).Info("listener cycle done")
	return res, nil
}

func (s *Service) selectedChains() ([]internal.Chain, error) {
	if len(s.cfg.ListenerChains) == 0 {
		return s.chains.All(), nil
	}
	out := make([]internal.Chain, 0, len(s.cfg.ListenerChains))
	for _, name := range s.cfg.ListenerChains {
		chain, err := s.chains.ByName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, chain)
	}
	return out, nil
}

func (s *Service) export(ctx context.Context) error {
	dir := filepath.Join(s.cfg.OutputDir, "listener")

	names, err := s.db.ListCanonicalNames(ctx)
	if err != nil {
		return err
	}
	if err := pipeline.ExportCanonicalNamesToXLSX(names, filepath.Join(dir, "canonical_names.xlsx")); err != nil {
		return fmt.Errorf("export names: %w", err)
	}

	stores, err := s.db.ListStores()
	if err != nil {
		return err
	}
	if err := pipeline.ExportStoresToXLSX(stores, filepath.Join(dir, "stores.xlsx")); err != nil {
		return fmt.Errorf("export stores: %w", err)
	}
	return nil
}
