// Package sharedtest builds provider runtimes for tests: a fixed clock,
// in-memory cookie stores and fake CLIs written as shell scripts.
package sharedtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
	"github.com/janekbaraniewski/quotaprobe/internal/toolpath"
)

// Now is the clock of every runtime built here.
var Now = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

// Store is an in-memory cookie store.
type Store struct {
	Name    string
	Records []cookies.Record
	Err     error
}

func (s Store) Label() string { return s.Name }

func (s Store) Read(_ context.Context, domains []string) ([]cookies.Record, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var out []cookies.Record
	for _, r := range s.Records {
		for _, d := range domains {
			if cookies.MatchesDomain(r.Domain, d) {
				r.Source = s.Name
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

// NewRuntime returns a runtime rooted at a temporary home with no cookie
// stores or local storage, no login shell and a fixed clock. opts are applied last.
func NewRuntime(t testing.TB, settings config.Settings, opts ...shared.RuntimeOption) *shared.Runtime {
	t.Helper()
	home := t.TempDir()
	loc, err := toolpath.New(zerolog.Nop(), toolpath.WithHome(home), toolpath.WithLoginShell("", nil), toolpath.WithCommonDirs())
	require.NoError(t, err)

	base := []shared.RuntimeOption{
		shared.WithHome(home),
		shared.WithLocator(loc),
		shared.WithCookieStores(),
		shared.WithLocalStorageDirs(),
		shared.WithClock(func() time.Time { return Now }),
	}
	rt, err := shared.NewRuntime(settings, zerolog.Nop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// Settings returns defaults with short PTY timeouts.
func Settings() config.Settings {
	s := config.DefaultSettings()
	s.PTYTimeout = 3 * time.Second
	return s
}

// WriteScript writes an executable /bin/sh script and returns its path.
func WriteScript(t testing.TB, name, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}
