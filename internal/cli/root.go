// Package cli wires the zilazol commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"zilazol/internal"
	"zilazol/internal/config"
	"zilazol/internal/logger"
	"zilazol/internal/storage"
)

// RootOptions holds global flags and the state shared by subcommands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	cfg config.Config
	db  *storage.DB
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "zilazol",
		Short:         "Israeli retail price feed ingestion",
		Long:          "Fetches price, promotion and store feeds from the chains' transparency portals and normalizes them into one schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.LogLevel = "debug"
			}
			logger.Init(cfg.LoggerOptions())
			opts.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.db == nil {
				return nil
			}
			err := opts.db.Close()
			opts.db = nil
			return err
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewChainsCommand(opts))
	cmd.AddCommand(NewChainsPopulateCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewCanonicalizeCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))

	return cmd
}

// DB opens the configured database on first use.
func (o *RootOptions) DB() (*storage.DB, error) {
	if o.db != nil {
		return o.db, nil
	}
	db, err := storage.Open(o.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", o.cfg.DBPath, err)
	}
	o.db = db
	return db, nil
}

func (o *RootOptions) Chains() (*internal.ChainCatalog, error) {
	return internal.LoadChainCatalog(o.cfg.ChainsFile)
}

// print writes v as JSON when --format=json and the text line otherwise.
func (o *RootOptions) print(w io.Writer, v any, format string, args ...any) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}
