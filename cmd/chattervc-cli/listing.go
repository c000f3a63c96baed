package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHealthCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("server %s not reachable: %w", c.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", c.BaseURL())
			return nil
		},
	}
}

func newModelsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the synthesis engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			models, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newVoicesCmd(g *globalOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voice catalog",
		Long: `Lists the voices the server knows about.

Examples:
  chattervc-cli voices             # current catalog
  chattervc-cli voices --refresh   # rescan the voices directory first`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			list := c.Voices
			if refresh {
				list = c.RefreshVoices
			}
			voices, err := list(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\n", v.ID, v.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "rescan the voices directory before listing")
	return cmd
}
