package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewChainsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the known chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.Chains()
			if err != nil {
				return err
			}
			chains := catalog.All()
			if opts.Format == "json" {
				return opts.print(cmd.OutOrStdout(), chains, "")
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID\tDIALECT")
			for _, c := range chains {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.ID, c.Dialect)
			}
			return tw.Flush()
		},
	}
}

func NewChainsPopulateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chains:populate",
		Short: "Write the known chains into the database",
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
			chains := catalog.All()
			if err := db.UpsertChains(chains); err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), map[string]int{"chains": len(chains)}, "chains populated: %d", len(chains))
		},
	}
}
