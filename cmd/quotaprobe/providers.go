package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers"
)

func newProvidersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers, whether they are enabled and the source each would use now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			s := newStyles(out)
			all := providers.NewRegistry(rt)
			for _, acct := range providers.Accounts(all, a.settings.Accounts, func(string) bool { return true }) {
				p, ok := providers.ProviderByID(all, acct.Provider)
				if !ok {
					continue
				}
				state := "enabled"
				if !a.settings.Provider(p.ID()).IsEnabled() {
					state = "disabled"
				}
				info := p.Describe()
				fmt.Fprintf(out, "%s %s\n", s.title.Render(fmt.Sprintf("%-8s", acct.ID)), s.dim.Render(info.Name+" · "+state))
				fmt.Fprintf(out, "  source   %s\n", p.SourceLabel(cmd.Context(), acct))
				if keys := settingKeys(p.SettingsContributions()); keys != "" {
					fmt.Fprintf(out, "  settings %s\n", keys)
				}
				if info.DocURL != "" {
					fmt.Fprintf(out, "  docs     %s\n", s.dim.Render(info.DocURL))
				}
			}
			return nil
		},
	}
}

func settingKeys(contribs []core.SettingsContribution) string {
	keys := make([]string, 0, len(contribs))
	for _, c := range contribs {
		k := c.Key
		if len(c.Choices) > 0 {
			k += "=" + strings.Join(c.Choices, "|")
		}
		keys = append(keys, k)
	}
	return strings.Join(keys, ", ")
}
