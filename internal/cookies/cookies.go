// Package cookies reads browser cookie stores and local storage read-only.
// Nothing read here is ever written back to disk.
package cookies

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Record is one cookie as read from a browser store.
type Record struct {
	Name   string
	Value  string
	Domain string
	Source string // human-readable store label, e.g. "Chrome (Profile 1)"
}

// Store is one browser profile's cookie jar.
type Store interface {
	Label() string
	Read(ctx context.Context, domains []string) ([]Record, error)
}

type Reason string

const (
	ReasonMissing      Reason = "missing"
	ReasonLocked       Reason = "locked"
	ReasonInaccessible Reason = "inaccessible"
	ReasonDecrypt      Reason = "decrypt"
)

// StoreError is a recoverable failure of a single store. Callers move on to
// the next store.
type StoreError struct {
	Store  string
	Reason Reason
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Store, e.Reason, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func classify(store string, err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	reason := ReasonInaccessible
	switch {
	case errors.Is(err, fs.ErrNotExist):
		reason = ReasonMissing
	case errors.Is(err, fs.ErrPermission):
		reason = ReasonInaccessible
	case strings.Contains(strings.ToLower(err.Error()), "locked"):
		reason = ReasonLocked
	}
	return &StoreError{Store: store, Reason: reason, Err: err}
}

// IsMissing reports whether err means the store simply does not exist.
func IsMissing(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Reason == ReasonMissing
}

// MatchesDomain reports whether a cookie host (".claude.ai", "claude.ai",
// "www.claude.ai") belongs to domain.
func MatchesDomain(host, domain string) bool {
	host = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(host), "."))
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if MatchesDomain(host, d) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
