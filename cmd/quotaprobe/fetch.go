package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/detect"
	"github.com/janekbaraniewski/quotaprobe/internal/providers"
)

type fetchOptions struct {
	source   string
	json     bool
	noDetect bool
}

func newFetchCommand(a *app) *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch [provider...]",
		Short: "Fetch usage for the given providers, or every enabled one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fetch(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "force a source (auto, oauth, web, cli, api, localstorage); implies --debug")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print snapshots as JSON")
	cmd.Flags().BoolVar(&opts.noDetect, "no-detect", false, "only use accounts from settings and provider defaults")
	return cmd
}

type jsonResult struct {
	Account   string              `json:"account"`
	Provider  string              `json:"provider"`
	Snapshot  *core.UsageSnapshot `json:"snapshot,omitempty"`
	Error     string              `json:"error,omitempty"`
	Kind      core.ErrorKind      `json:"kind,omitempty"`
	ElapsedMS int64               `json:"elapsed_ms"`
}

func (a *app) fetch(cmd *cobra.Command, args []string, opts fetchOptions) error {
	if opts.source != "" {
		src, ok := core.ParseSource(strings.ToLower(opts.source))
		if !ok {
			return fmt.Errorf("unknown source %q", opts.source)
		}
		if len(args) == 0 {
			return fmt.Errorf("--source needs at least one provider")
		}
		a.settings.Debug = true
		for _, id := range args {
			ps := a.settings.Provider(id)
			ps.Source = string(src)
			a.settings.Providers[id] = ps
		}
	}

	rt, err := a.runtime()
	if err != nil {
		return err
	}
	defer rt.Close()

	all := providers.NewRegistry(rt)
	for _, id := range args {
		if _, ok := providers.ProviderByID(all, id); !ok {
			return fmt.Errorf("unknown provider %q (known: %s)", id, strings.Join(providerIDs(all), ", "))
		}
	}

	configured := a.settings.Accounts
	if !opts.noDetect {
		configured = detect.Merge(configured, detect.Run(cmd.Context(), rt).Accounts)
	}
	accounts := providers.Accounts(all, configured, selector(a.settings, args))
	if len(accounts) == 0 {
		return fmt.Errorf("no enabled providers")
	}

	engine := core.NewEngine(a.settings.FetchTimeout, a.log)
	engine.SetConcurrency(a.settings.Concurrency)
	for _, p := range all {
		engine.RegisterProvider(p)
	}
	results := engine.FetchAll(cmd.Context(), accounts)

	out := cmd.OutOrStdout()
	if opts.json {
		err = writeJSON(out, accounts, results)
	} else {
		renderResults(out, newStyles(out), accounts, results, rt.Now())
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(accounts))
	}
	return nil
}

// selector picks the providers named on the command line, or every
// provider enabled in settings when none are named.
func selector(settings config.Settings, ids []string) func(string) bool {
	if len(ids) > 0 {
		return func(id string) bool { return slices.Contains(ids, id) }
	}
	return func(id string) bool { return settings.Provider(id).IsEnabled() }
}

func providerIDs(all []core.Provider) []string {
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID())
	}
	return ids
}

func renderResults(out io.Writer, s styles, accounts []core.AccountConfig, results map[string]core.Result, now time.Time) {
	for i, acct := range accounts {
		if i > 0 {
			fmt.Fprintln(out)
		}
		res := results[acct.ID]
		if res.Err != nil {
			renderError(out, s, res.Err)
			continue
		}
		renderSnapshot(out, s, *res.Snapshot, now)
	}
}

func writeJSON(out io.Writer, accounts []core.AccountConfig, results map[string]core.Result) error {
	rows := make([]jsonResult, 0, len(accounts))
	for _, acct := range accounts {
		res := results[acct.ID]
		row := jsonResult{
			Account:   acct.ID,
			Provider:  acct.Provider,
			Snapshot:  res.Snapshot,
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		if res.Err != nil {
			row.Error = core.UserMessage(res.Err)
			row.Kind = core.KindOf(res.Err)
		}
		rows = append(rows, row)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
