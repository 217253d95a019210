package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/keywords"
)

func newKeywordsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keywords",
		Short: "Inspect interest groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Parse a rule file and print its groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.LoadRoot(flags.configPath)
				if err != nil {
					return err
				}
				path = cfg.App.KeywordsFile
			}

			groups, err := keywords.LoadFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range groups {
				alts := make([]string, 0, len(g.Alternatives))
				for _, a := range g.Alternatives {
					alts = append(alts, strings.Join(a, "+"))
				}
				fmt.Fprintf(out, "%s: %s", g.Name, strings.Join(alts, " | "))
				if len(g.Exclude) > 0 {
					fmt.Fprintf(out, " (exclude: %s)", strings.Join(g.Exclude, ", "))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d groups OK\n", len(groups))
			return nil
		},
	})
	return cmd
}
