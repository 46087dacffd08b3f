package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"zilazol/internal"
	"zilazol/internal/pipeline"
)

func NewExtractCommand(opts *RootOptions) *cobra.Command {
	var file, dialect, category, chainID string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract a feed file from disk and print a JSON summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := internal.ParseDialect(dialect)
			if err != nil {
				return err
			}
			c, err := internal.ParseCategory(category)
			if err != nil {
				return err
			}
			res, err := pipeline.ExtractLocalFile(file, d, c, chainID)
			if err != nil {
				return fmt.Errorf("extract %s: %w", file, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pipeline.Summarize(file, res))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to an xml, gz or zip feed file")
	cmd.Flags().StringVar(&dialect, "dialect", "", "cerberus|shufersal|superpharm|nibit|binaprojects")
	cmd.Flags().StringVar(&category, "category", "", "prices|prices_full|promotions|promotions_full|stores")
	cmd.Flags().StringVar(&chainID, "chain", "", "chain id overriding the one in the file")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("dialect")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
