package cookies

import (
	"context"
	"crypto/sha1"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	chromiumSalt       = "saltysalt"
	chromiumKeyLen     = 16
	darwinIterations   = 1003
	linuxIterations    = 1
	linuxDefaultSecret = "peanuts"
	linuxV10Prefix     = "v10"
)

// KeyProvider supplies the Safe Storage password of a Chromium browser.
// On macOS this may prompt the user for keychain access.
type KeyProvider interface {
	Password(ctx context.Context, b ChromiumBrowser) (string, error)
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// SystemKeys reads the password from the macOS keychain via `security`, or
// from the Secret Service via `secret-tool` on Linux.
type SystemKeys struct {
	OS  string
	run commandRunner
}

func NewSystemKeys(goos string) SystemKeys {
	return SystemKeys{OS: goos, run: runCommand}
}

func (k SystemKeys) Password(ctx context.Context, b ChromiumBrowser) (string, error) {
	run := k.run
	if run == nil {
		run = runCommand
	}
	switch k.OS {
	case "darwin":
		out, err := run(ctx, "security", "find-generic-password", "-w", "-s", b.SafeStorage, "-a", b.Account)
		if err != nil {
			return "", fmt.Errorf("keychain lookup for %q failed: %w", b.SafeStorage, err)
		}
		return strings.TrimSpace(string(out)), nil
	case "linux":
		if b.LinuxApp == "" {
			return linuxDefaultSecret, nil
		}
		out, err := run(ctx, "secret-tool", "lookup", "application", b.LinuxApp)
		if err != nil || strings.TrimSpace(string(out)) == "" {
			return linuxDefaultSecret, nil
		}
		return strings.TrimSpace(string(out)), nil
	}
	return "", fmt.Errorf("cookie decryption not supported on %s", k.OS)
}

// StaticKeys returns the same password for every browser. Used in tests and
// for headless Linux setups without a keyring.
type StaticKeys string

func (s StaticKeys) Password(context.Context, ChromiumBrowser) (string, error) {
	return string(s), nil
}

func deriveKey(password string, iterations int) []byte {
	return pbkdf2.Key([]byte(password), []byte(chromiumSalt), iterations, chromiumKeyLen, sha1.New)
}

type keyEntry struct {
	key []byte
	err error
}

// keyCache derives each browser's key once per process so the keychain is
// asked at most once, including when the lookup failed.
type keyCache struct {
	mu       sync.Mutex
	os       string
	provider KeyProvider
	entries  map[string]keyEntry
}

func newKeyCache(goos string, provider KeyProvider) *keyCache {
	return &keyCache{os: goos, provider: provider, entries: make(map[string]keyEntry)}
}

func (c *keyCache) key(ctx context.Context, b ChromiumBrowser, prefix string) ([]byte, error) {
	if c.os == "linux" && prefix == linuxV10Prefix {
		return deriveKey(linuxDefaultSecret, linuxIterations), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := b.Name + "/" + prefix
	if e, ok := c.entries[id]; ok {
		return e.key, e.err
	}

	iterations := darwinIterations
	if c.os == "linux" {
		iterations = linuxIterations
	}
	var e keyEntry
	password, err := c.provider.Password(ctx, b)
	if err != nil {
		e.err = err
	} else {
		e.key = deriveKey(password, iterations)
	}
	c.entries[id] = e
	return e.key, e.err
}
