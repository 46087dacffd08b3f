package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"zilazol/internal/listener"
	"zilazol/internal/pipeline"
)

func NewCanonicalizeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "names:canonicalize",
		Short: "Derive one canonical name per item code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.DB()
			if err != nil {
				return err
			}
			processor, err := pipeline.NewProcessingService(db, opts.cfg)
			if err != nil {
				return err
			}
			n, err := processor.CanonicalizeNames(cmd.Context())
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]int{"names": n}, "canonical names written: %d", n)
		},
	}
}

func NewExportCommand(opts *RootOptions) *cobra.Command {
	var what, out string
	cmd := &cobra.Command{
		Use:   "export:xlsx",
		Short: "Export canonical names or stores to an xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if what != "names" && what != "stores" {
				return fmt.Errorf("--what must be names or stores, got %q", what)
			}
			db, err := opts.DB()
			if err != nil {
				return err
			}
			if strings.TrimSpace(out) == "" {
				out = filepath.Join(opts.cfg.OutputDir, what+".xlsx")
			}

			var rows int
			switch what {
			case "names":
				names, err := db.ListCanonicalNames(cmd.Context())
				if err != nil {
					return err
				}
				rows = len(names)
				if err := pipeline.ExportCanonicalNamesToXLSX(names, out); err != nil {
					return err
				}
			default:
				stores, err := db.ListStores()
				if err != nil {
					return err
				}
				rows = len(stores)
				if err := pipeline.ExportStoresToXLSX(stores, out); err != nil {
					return err
				}
			}
			return opts.print(cmd.OutOrStdout(), map[string]any{"rows": rows, "out": out}, "exported %d rows to %s", rows, out)
		},
	}
	cmd.Flags().StringVar(&what, "what", "names", "names|stores")
	cmd.Flags().StringVar(&out, "out", "", "output xlsx path (default OUTPUT_DIR/<what>.xlsx)")
	return cmd
}

func NewListenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run ingestion cycles until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.Chains()
			if err != nil {
				return err
			}
			db, err := opts.DB()
			if err != nil {
				return err
			}
			return listener.NewService(db, opts.cfg, catalog).Run(cmd.Context())
		},
	}
}
