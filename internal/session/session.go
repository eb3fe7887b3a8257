// Package session finds a provider's browser session secret among cookie records.
package session

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

type Validator func(value string) bool

func PrefixValidator(prefix string) Validator {
	return func(v string) bool { return strings.HasPrefix(v, prefix) && len(v) > len(prefix) }
}

func ShapeValidator(re *regexp.Regexp) Validator {
	return func(v string) bool { return re.MatchString(v) }
}

// Info is a validated session secret and where it came from. It lives for
// one fetch attempt.
type Info struct {
	Key         string
	CookieCount int
	Source      string
	Header      string // Cookie header built from every matching record of the store
}

type Extractor struct {
	CookieName string
	Domains    []string
	Validate   Validator
	Log        zerolog.Logger
}

// FindKey returns the validated value of the session cookie. An absent or
// invalid cookie is not an error.
func (e Extractor) FindKey(records []cookies.Record) (string, bool) {
	for _, r := range records {
		if r.Name != e.CookieName {
			continue
		}
		v := strings.TrimSpace(r.Value)
		if v == "" {
			continue
		}
		if e.Validate != nil && !e.Validate(v) {
			continue
		}
		return v, true
	}
	return "", false
}

// Extract tries stores in order and returns the first validated session.
// Store failures are logged and skipped.
func (e Extractor) Extract(ctx context.Context, stores []cookies.Store) (Info, error) {
	log := e.Log.With().Str("component", "session").Str("cookie", e.CookieName).Logger()
	tried := make([]string, 0, len(stores))

	for _, store := range stores {
		if err := ctx.Err(); err != nil {
			return Info{}, core.WrapError(core.KindTimeout, err)
		}
		tried = append(tried, store.Label())

		records, err := store.Read(ctx, e.Domains)
		if err != nil {
			if cookies.IsMissing(err) {
				log.Debug().Str("store", store.Label()).Msg("store not present")
			} else {
				log.Warn().Str("store", store.Label()).Err(err).Msg("skipping cookie store")
			}
			continue
		}

		key, ok := e.FindKey(records)
		if !ok {
			log.Debug().Str("store", store.Label()).Int("records", len(records)).Msg("no session cookie")
			continue
		}
		log.Debug().Str("store", store.Label()).Int("key_len", len(key)).Msg("session found")
		return Info{
			Key:         key,
			CookieCount: len(records),
			Source:      store.Label(),
			Header:      CookieHeader(records),
		}, nil
	}

	if len(tried) == 0 {
		return Info{}, core.Errorf(core.KindNoCredentials, "no browser cookie stores found")
	}
	return Info{}, core.Errorf(core.KindNoCredentials, "no %s cookie found in %s", e.CookieName, strings.Join(tried, ", "))
}

// Available reports whether Extract would succeed right now.
func (e Extractor) Available(ctx context.Context, stores []cookies.Store) bool {
	quiet := e
	quiet.Log = zerolog.Nop()
	_, err := quiet.Extract(ctx, stores)
	return err == nil
}

// CookieHeader joins records as "name=value; ..." keeping the first value per name.
func CookieHeader(records []cookies.Record) string {
	unique := lo.UniqBy(records, func(r cookies.Record) string { return r.Name })
	parts := lo.FilterMap(unique, func(r cookies.Record, _ int) (string, bool) {
		v := strings.TrimSpace(r.Value)
		return r.Name + "=" + v, r.Name != "" && v != ""
	})
	return strings.Join(parts, "; ")
}
