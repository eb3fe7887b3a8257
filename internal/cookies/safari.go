package cookies

import (
	"context"
	"os"
	"path/filepath"

	"github.com/browserutils/kooky"
	"github.com/browserutils/kooky/browser/firefox"
	"github.com/browserutils/kooky/browser/safari"
)

type kookyReader func(ctx context.Context, filename string, filters ...kooky.Filter) ([]*kooky.Cookie, error)

// SafariStore reads Safari's binary cookie container. No keychain prompt is
// involved, which is why it is tried first.
type SafariStore struct {
	Paths []string
	read  kookyReader
}

func safariCookiePaths(home string) []string {
	return []string{
		filepath.Join(home, "Library", "Containers", "com.apple.Safari", "Data", "Library", "Cookies", "Cookies.binarycookies"),
		filepath.Join(home, "Library", "Cookies", "Cookies.binarycookies"),
	}
}

func (s *SafariStore) Label() string { return "Safari" }

func (s *SafariStore) Read(ctx context.Context, domains []string) ([]Record, error) {
	read := s.read
	if read == nil {
		read = safari.ReadCookies
	}
	return readKooky(ctx, s.Label(), s.Paths, domains, read)
}

// FirefoxStore reads one Firefox profile's cookies.sqlite.
type FirefoxStore struct {
	Profile string
	Path    string
	read    kookyReader
}

func (s *FirefoxStore) Label() string { return "Firefox (" + s.Profile + ")" }

func (s *FirefoxStore) Read(ctx context.Context, domains []string) ([]Record, error) {
	read := s.read
	if read == nil {
		read = firefox.ReadCookies
	}
	return readKooky(ctx, s.Label(), []string{s.Path}, domains, read)
}

func readKooky(ctx context.Context, label string, paths, domains []string, read kookyReader) ([]Record, error) {
	path := ""
	for _, p := range paths {
		if fileExists(p) {
			path = p
			break
		}
	}
	if path == "" {
		return nil, &StoreError{Store: label, Reason: ReasonMissing, Err: os.ErrNotExist}
	}

	cookies, err := read(ctx, path)
	if err != nil {
		return nil, classify(label, err)
	}

	var records []Record
	for _, c := range cookies {
		if c == nil || !matchesAny(c.Domain, domains) {
			continue
		}
		records = append(records, Record{Name: c.Name, Value: c.Value, Domain: c.Domain, Source: label})
	}
	return records, nil
}
