// Package detect finds locally installed AI coding tools and the accounts
// their on-disk state implies.
package detect

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/cursor"
	"github.com/janekbaraniewski/quotaprobe/internal/providers/shared"
)

// Tool is something found on the workstation.
type Tool struct {
	Provider   string
	Name       string
	BinaryPath string // resolved binary, if any
	ConfigPath string // credentials or state file that was found
}

type Result struct {
	Tools    []Tool
	Accounts []core.AccountConfig
}

type detector struct {
	rt  *shared.Runtime
	log zerolog.Logger
	res Result
}

// Run scans the runtime's home directory and PATH. It never fails; anything
// it cannot read is skipped.
func Run(ctx context.Context, rt *shared.Runtime) Result {
	d := &detector{rt: rt, log: rt.Log.With().Str("component", "detect").Logger()}
	d.claude(ctx)
	d.codex(ctx)
	d.cursor()
	d.zai()
	d.localStorage()
	return d.res
}

// Merge adds each detected account whose provider has no configured one.
func Merge(configured, detected []core.AccountConfig) []core.AccountConfig {
	has := map[string]bool{}
	for _, acct := range configured {
		has[acct.Provider] = true
	}
	out := append([]core.AccountConfig{}, configured...)
	for _, acct := range detected {
		if !has[acct.Provider] {
			out = append(out, acct)
			has[acct.Provider] = true
		}
	}
	return out
}

func (d *detector) binary(ctx context.Context, name string) string {
	path, err := d.rt.Tools.Lookup(ctx, name)
	if err != nil {
		return ""
	}
	return path
}

func (d *detector) add(t Tool, acct *core.AccountConfig) {
	d.res.Tools = append(d.res.Tools, t)
	d.log.Debug().Str("provider", t.Provider).Str("binary", t.BinaryPath).Str("config", t.ConfigPath).Msg("found")
	if acct != nil {
		d.res.Accounts = append(d.res.Accounts, *acct)
	}
}

func (d *detector) claude(ctx context.Context) {
	bin := d.binary(ctx, "claude")
	creds := filepath.Join(d.rt.Home, ".claude", ".credentials.json")
	if !fileExists(creds) {
		creds = ""
	}
	if bin == "" && creds == "" {
		return
	}
	d.add(Tool{Provider: "claude", Name: "Claude Code CLI", BinaryPath: bin, ConfigPath: creds},
		&core.AccountConfig{ID: "claude", Provider: "claude", Binary: bin})
}

func (d *detector) codex(ctx context.Context) {
	bin := d.binary(ctx, "codex")
	dir := strings.TrimSpace(os.Getenv("CODEX_HOME"))
	if dir == "" {
		dir = filepath.Join(d.rt.Home, ".codex")
	}
	auth := filepath.Join(dir, "auth.json")
	if !fileExists(auth) {
		auth = ""
	}
	if bin == "" && auth == "" {
		return
	}
	d.add(Tool{Provider: "codex", Name: "OpenAI Codex CLI", BinaryPath: bin, ConfigPath: auth},
		&core.AccountConfig{ID: "codex", Provider: "codex", Binary: bin, ExtraData: map[string]string{"codex_home": dir}})
}

func (d *detector) cursor() {
	db := cursor.StateDBPath(d.rt.Home)
	if !fileExists(db) {
		return
	}
	d.add(Tool{Provider: "cursor", Name: "Cursor IDE", ConfigPath: db},
		&core.AccountConfig{ID: "cursor", Provider: "cursor", ExtraData: map[string]string{"state_db": db}})
}

// localStorage reports Chromium profiles that can hold a Factory refresh token.
func (d *detector) localStorage() {
	for _, dir := range d.rt.LocalStorageDirs() {
		d.add(Tool{Provider: "factory", Name: "Chromium local storage (" + dir.Label + ")", ConfigPath: dir.Path}, nil)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
