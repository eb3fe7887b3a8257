package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
)

// sessionReader is a provider that reads a browser session cookie.
type sessionReader interface {
	core.Provider
	SessionExtractor() session.Extractor
}

func newSessionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show which browser stores hold a usable session for each provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			s := newStyles(out)
			stores := rt.CookieStores()
			if len(stores) == 0 {
				fmt.Fprintln(out, s.dim.Render("no browser cookie stores found"))
			}
			for _, p := range providers.NewRegistry(rt) {
				sr, ok := p.(sessionReader)
				if !ok {
					continue
				}
				ex := sr.SessionExtractor()
				fmt.Fprintf(out, "%s %s\n", s.title.Render(p.ID()), s.dim.Render(ex.CookieName))
				for _, store := range stores {
					reportStore(cmd, out, s, store, ex)
				}
			}

			dirs := rt.LocalStorageDirs()
			fmt.Fprintf(out, "%s %s\n", s.title.Render("local storage"), s.dim.Render(fmt.Sprintf("%d profile(s)", len(dirs))))
			for _, d := range dirs {
				fmt.Fprintf(out, "  %-28s %s\n", d.Label, s.dim.Render(d.Path))
			}
			return nil
		},
	}
}

func reportStore(cmd *cobra.Command, out io.Writer, s styles, store cookies.Store, ex session.Extractor) {
	records, err := store.Read(cmd.Context(), ex.Domains)
	switch {
	case err != nil && cookies.IsMissing(err):
		return
	case err != nil:
		fmt.Fprintf(out, "  %-28s %s\n", store.Label(), s.err.Render(err.Error()))
		return
	}
	key, ok := ex.FindKey(records)
	if !ok {
		fmt.Fprintf(out, "  %-28s %s\n", store.Label(), s.dim.Render(fmt.Sprintf("no session (%d cookies)", len(records))))
		return
	}
	fmt.Fprintf(out, "  %-28s %s %s\n", store.Label(), redact(key), s.dim.Render(fmt.Sprintf("(%d cookies)", len(records))))
}

// redact keeps a short prefix so stores can be told apart without printing
// the secret.
func redact(v string) string {
	const keep = 6
	if len(v) <= keep*2 {
		return fmt.Sprintf("***(%d chars)", len(v))
	}
	return fmt.Sprintf("%s…(%d chars)", v[:keep], len(v))
}
