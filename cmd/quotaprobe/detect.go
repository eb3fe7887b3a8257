package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/quotaprobe/internal/detect"
)

func newDetectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Show the tools and accounts found on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			s := newStyles(out)
			res := detect.Run(cmd.Context(), rt)
			if len(res.Tools) == 0 {
				fmt.Fprintln(out, s.dim.Render("nothing found"))
				return nil
			}
			for _, t := range res.Tools {
				fmt.Fprintf(out, "%s %s\n", s.title.Render(fmt.Sprintf("%-8s", t.Provider)), t.Name)
				if t.BinaryPath != "" {
					fmt.Fprintf(out, "  binary %s\n", t.BinaryPath)
				}
				if t.ConfigPath != "" {
					fmt.Fprintf(out, "  found  %s\n", s.dim.Render(t.ConfigPath))
				}
			}
			fmt.Fprintf(out, "\n%d accounts detected\n", len(res.Accounts))
			return nil
		},
	}
}
