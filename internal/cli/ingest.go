package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zilazol/internal"
	"zilazol/internal/pipeline"
	"zilazol/internal/portal"
)

type fetchFlags struct {
	chain    string
	category string
	max      int
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.chain, "chain", "", "chain name (see `zilazol chains`)")
	cmd.Flags().StringVar(&f.category, "category", "", "prices|prices_full|promotions|promotions_full|stores|all")
	cmd.Flags().IntVar(&f.max, "max", 1, "max files to download")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("category")
}

func (f *fetchFlags) run(ctx context.Context, opts *RootOptions) (pipeline.FetchResult, internal.Chain, error) {
	catalog, err := opts.Chains()
	if err != nil {
		return pipeline.FetchResult{}, internal.Chain{}, err
	}
	chain, err := catalog.ByName(f.chain)
	if err != nil {
		return pipeline.FetchResult{}, internal.Chain{}, err
	}
	category, err := internal.ParseCategory(strings.TrimSpace(f.category))
	if err != nil {
		return pipeline.FetchResult{}, chain, err
	}
	fetcher, err := portal.New(chain.Dialect, opts.cfg)
	if err != nil {
		return pipeline.FetchResult{}, chain, err
	}
	db, err := opts.DB()
	if err != nil {
		return pipeline.FetchResult{}, chain, err
	}
	res, err := pipeline.NewFetchService(db, opts.cfg.RawDir, fetcher).FetchAndStore(ctx, chain, category, f.max)
	if err != nil {
		return res, chain, fmt.Errorf("fetch %s %s: %w", chain.Name, category, err)
	}
	return res, chain, nil
}

func NewFetchCommand(opts *RootOptions) *cobra.Command {
	flags := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download feed files from a chain's portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, chain, err := flags.run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), res, "fetch done chain=%s fetched=%d stored=%d", chain.Name, res.Fetched, res.Stored)
		},
	}
	flags.register(cmd)
	return cmd
}

func NewProcessCommand(opts *RootOptions) *cobra.Command {
	var batch, fileID int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract fetched files into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := process(cmd.Context(), opts, batch, fileID)
			if err != nil {
				return err
			}
			return printSummary(cmd, opts, summary)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "max files to process")
	cmd.Flags().IntVar(&fileID, "file-id", 0, "process one stored file")
	return cmd
}

func NewIngestCommand(opts *RootOptions) *cobra.Command {
	flags := &fetchFlags{}
	var batch int
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch and process in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, chain, err := flags.run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if opts.Format == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "fetch done chain=%s fetched=%d stored=%d\n", chain.Name, res.Fetched, res.Stored)
			}
			summary, err := process(cmd.Context(), opts, batch, 0)
			if err != nil {
				return err
			}
			return printSummary(cmd, opts, summary)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&batch, "batch", 100, "max files to process")
	return cmd
}

func process(ctx context.Context, opts *RootOptions, batch, fileID int) (pipeline.ProcessSummary, error) {
	db, err := opts.DB()
	if err != nil {
		return pipeline.ProcessSummary{}, err
	}
	processor, err := pipeline.NewProcessingService(db, opts.cfg)
	if err != nil {
		return pipeline.ProcessSummary{}, err
	}
	if fileID > 0 {
		return processor.ProcessFile(ctx, fileID)
	}
	return processor.ProcessPending(ctx, batch)
}

func printSummary(cmd *cobra.Command, opts *RootOptions, s pipeline.ProcessSummary) error {
	return opts.print(cmd.OutOrStdout(), s, "processed trace=%s files=%d processed=%d failed=%d entities=%d rejected=%d",
		s.TraceID, s.Files, s.Processed, s.Failed, s.Entities, s.Rejected)
}
