// Package toolpath resolves CLI binaries the way an interactive shell would,
// including directories only a login shell puts on PATH.
package toolpath

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

const (
	defaultCacheSize  = 32
	loginShellTimeout = 5 * time.Second
)

type shellRunner func(ctx context.Context, shell string) (string, error)

// Locator finds binaries and remembers where it found them.
type Locator struct {
	cache  *lru.Cache[string, string]
	home   string
	shell  string
	run    shellRunner
	common []string
	log    zerolog.Logger

	shellOnce sync.Once
	shellPath []string
}

type Option func(*Locator)

func WithHome(home string) Option {
	return func(l *Locator) { l.home = home }
}

// WithLoginShell overrides $SHELL and how the login PATH is read.
func WithLoginShell(shell string, run func(ctx context.Context, shell string) (string, error)) Option {
	return func(l *Locator) {
		l.shell = shell
		if run != nil {
			l.run = run
		}
	}
}

// WithCommonDirs replaces the fallback directories searched last.
func WithCommonDirs(dirs ...string) Option {
	return func(l *Locator) { l.common = append([]string{}, dirs...) }
}

func New(log zerolog.Logger, opts ...Option) (*Locator, error) {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating binary cache: %w", err)
	}
	home, _ := os.UserHomeDir()
	l := &Locator{
		cache: cache,
		home:  home,
		shell: os.Getenv("SHELL"),
		run:   loginShellPATH,
		log:   log.With().Str("component", "toolpath").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.common == nil {
		l.common = commonDirs(l.home)
	}
	return l, nil
}

func commonDirs(home string) []string {
	dirs := []string{"/opt/homebrew/bin", "/usr/local/bin"}
	if home != "" {
		dirs = append([]string{
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".claude", "local"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".bun", "bin"),
			filepath.Join(home, ".volta", "bin"),
		}, dirs...)
	}
	return dirs
}

// Lookup resolves name to an executable path: explicit paths as given, then
// the process PATH, then the login-shell PATH, then common install dirs.
func (l *Locator) Lookup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.Errorf(core.KindToolMissing, "no binary configured")
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		path := expandHome(name, l.home)
		if isExecutable(path) {
			return path, nil
		}
		return "", missing(name)
	}

	if path, ok := l.cache.Get(name); ok {
		if isExecutable(path) {
			return path, nil
		}
		l.cache.Remove(name)
	}

	if path, err := exec.LookPath(name); err == nil {
		l.cache.Add(name, path)
		return path, nil
	}

	dirs := append(append([]string{}, l.ShellPATH(ctx)...), l.common...)
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if isExecutable(path) {
			l.log.Debug().Str("binary", name).Str("path", path).Msg("resolved outside process PATH")
			l.cache.Add(name, path)
			return path, nil
		}
	}
	return "", missing(name)
}

// ShellPATH returns the PATH entries of a login shell. The shell is asked
// once per Locator; failures yield an empty list.
func (l *Locator) ShellPATH(ctx context.Context) []string {
	l.shellOnce.Do(func() {
		if l.shell == "" {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, loginShellTimeout)
		defer cancel()
		out, err := l.run(ctx, l.shell)
		if err != nil {
			l.log.Debug().Str("shell", l.shell).Err(err).Msg("login shell PATH unavailable")
			return
		}
		l.shellPath = splitPATH(out)
	})
	return l.shellPath
}

// Env returns environment additions for child processes: PATH extended with
// the login-shell entries that the current process lacks.
func (l *Locator) Env(ctx context.Context) []string {
	current := splitPATH(os.Getenv("PATH"))
	extra := lo.Filter(l.ShellPATH(ctx), func(dir string, _ int) bool { return !lo.Contains(current, dir) })
	if len(extra) == 0 {
		return nil
	}
	return []string{"PATH=" + strings.Join(append(current, extra...), string(os.PathListSeparator))}
}

func splitPATH(s string) []string {
	parts := strings.Split(strings.TrimSpace(s), string(os.PathListSeparator))
	return lo.Uniq(lo.Compact(lo.Map(parts, func(p string, _ int) string { return strings.TrimSpace(p) })))
}

func loginShellPATH(ctx context.Context, shell string) (string, error) {
	out, err := exec.CommandContext(ctx, shell, "-l", "-c", `printf %s "$PATH"`).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func missing(name string) error {
	e := core.Errorf(core.KindToolMissing, "%s not found", name)
	e.Hint = fmt.Sprintf("install %s or set its path in settings.yaml", name)
	return e
}

func expandHome(path, home string) string {
	if home != "" && strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
