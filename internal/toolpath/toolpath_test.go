package toolpath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestLookupUsesLoginShellPATHOnce(t *testing.T) {
	shellDir := t.TempDir()
	want := writeExecutable(t, shellDir, "quotaprobe-test-cli")

	var calls atomic.Int32
	l, err := New(zerolog.Nop(),
		WithHome(t.TempDir()),
		WithCommonDirs(),
		WithLoginShell("/bin/zsh", func(_ context.Context, shell string) (string, error) {
			calls.Add(1)
			assert.Equal(t, "/bin/zsh", shell)
			return "/nonexistent:" + shellDir + "\n", nil
		}),
	)
	require.NoError(t, err)

	got, err := l.Lookup(context.Background(), "quotaprobe-test-cli")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = l.Lookup(context.Background(), "quotaprobe-other-cli")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupCommonDirsAndCache(t *testing.T) {
	home := t.TempDir()
	bin := writeExecutable(t, filepath.Join(home, ".local", "bin"), "quotaprobe-local-cli")

	l, err := New(zerolog.Nop(), WithHome(home), WithLoginShell("", nil))
	require.NoError(t, err)

	got, err := l.Lookup(context.Background(), "quotaprobe-local-cli")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	cached, ok := l.cache.Get("quotaprobe-local-cli")
	require.True(t, ok)
	assert.Equal(t, bin, cached)

	require.NoError(t, os.Remove(bin))
	_, err = l.Lookup(context.Background(), "quotaprobe-local-cli")
	assert.True(t, errors.Is(err, core.ErrToolMissing))
	_, ok = l.cache.Get("quotaprobe-local-cli")
	assert.False(t, ok)
}

func TestLookupExplicitPath(t *testing.T) {
	home := t.TempDir()
	bin := writeExecutable(t, filepath.Join(home, "tools"), "codex")

	l, err := New(zerolog.Nop(), WithHome(home), WithLoginShell("", nil))
	require.NoError(t, err)

	got, err := l.Lookup(context.Background(), "~/tools/codex")
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = l.Lookup(context.Background(), filepath.Join(home, "tools", "claude"))
	require.Error(t, err)
	var fe *core.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.KindToolMissing, fe.Kind)
	assert.Contains(t, fe.Hint, "settings.yaml")

	_, err = l.Lookup(context.Background(), "  ")
	assert.True(t, errors.Is(err, core.ErrToolMissing))
}

func TestEnvAddsMissingShellEntries(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	l, err := New(zerolog.Nop(), WithLoginShell("/bin/bash", func(context.Context, string) (string, error) {
		return "/opt/homebrew/bin:/usr/bin:/opt/homebrew/bin", nil
	}))
	require.NoError(t, err)

	env := l.Env(context.Background())
	require.Len(t, env, 1)
	assert.Equal(t, "PATH=/usr/bin:/bin:/opt/homebrew/bin", env[0])

	quiet, err := New(zerolog.Nop(), WithLoginShell("/bin/bash", func(context.Context, string) (string, error) {
		return "", errors.New("exit status 1")
	}))
	require.NoError(t, err)
	assert.Empty(t, quiet.Env(context.Background()))
	assert.Empty(t, quiet.ShellPATH(context.Background()))
}

func TestSplitPATH(t *testing.T) {
	got := splitPATH(" /a: :/b:/a\n")
	assert.Equal(t, []string{"/a", "/b"}, got)
	assert.False(t, strings.Contains(strings.Join(got, ""), " "))
}
