package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/quotaprobe/internal/config"
	"github.com/janekbaraniewski/quotaprobe/internal/cookies"
	"github.com/janekbaraniewski/quotaprobe/internal/ptyrun"
	"github.com/janekbaraniewski/quotaprobe/internal/session"
	"github.com/janekbaraniewski/quotaprobe/internal/toolpath"
)

// Runtime is the process-wide context handed to every provider: logging,
// HTTP, binary lookup, cookie stores and persistent CLI sessions. Close
// releases the sessions.
type Runtime struct {
	Log         zerolog.Logger
	HTTP        *http.Client
	Settings    config.Settings
	Credentials config.Credentials
	Tools       *toolpath.Locator
	Cookies     *cookies.Importer
	Sessions    *ptyrun.Pool
	Home        string
	Now         func() time.Time

	stores   []cookies.Store
	levelDBs []cookies.LevelDBDir
}

type RuntimeOption func(*Runtime)

func WithHTTPClient(c *http.Client) RuntimeOption {
	return func(rt *Runtime) { rt.HTTP = c }
}

func WithCookieImporter(im *cookies.Importer) RuntimeOption {
	return func(rt *Runtime) { rt.Cookies = im }
}

// WithCookieStores replaces the importer's store discovery with a fixed list.
func WithCookieStores(stores ...cookies.Store) RuntimeOption {
	return func(rt *Runtime) { rt.stores = append([]cookies.Store{}, stores...) }
}

// WithLocalStorageDirs replaces Chromium local-storage discovery with a fixed list.
func WithLocalStorageDirs(dirs ...cookies.LevelDBDir) RuntimeOption {
	return func(rt *Runtime) { rt.levelDBs = append([]cookies.LevelDBDir{}, dirs...) }
}

func WithLocator(l *toolpath.Locator) RuntimeOption {
	return func(rt *Runtime) { rt.Tools = l }
}

func WithCredentials(c config.Credentials) RuntimeOption {
	return func(rt *Runtime) { rt.Credentials = c }
}

func WithHome(home string) RuntimeOption {
	return func(rt *Runtime) { rt.Home = home }
}

func WithClock(now func() time.Time) RuntimeOption {
	return func(rt *Runtime) { rt.Now = now }
}

func NewRuntime(settings config.Settings, log zerolog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	home, _ := os.UserHomeDir()
	rt := &Runtime{
		Log:         log,
		Settings:    settings,
		Credentials: config.Credentials{Keys: map[string]string{}},
		Home:        home,
		Now:         time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}

	if rt.HTTP == nil {
		rt.HTTP = &http.Client{}
	}
	if rt.Tools == nil {
		l, err := toolpath.New(log, toolpath.WithHome(rt.Home))
		if err != nil {
			return nil, fmt.Errorf("creating binary locator: %w", err)
		}
		rt.Tools = l
	}
	if rt.Cookies == nil {
		rt.Cookies = cookies.NewImporter(log, cookies.WithHome(rt.Home))
	}
	rt.Sessions = ptyrun.NewPool(log)
	return rt, nil
}

func (rt *Runtime) HTTPTimeout() time.Duration {
	if rt.Settings.HTTPTimeout > 0 {
		return rt.Settings.HTTPTimeout
	}
	return config.DefaultHTTPTimeout
}

func (rt *Runtime) PTYTimeout() time.Duration {
	if rt.Settings.PTYTimeout > 0 {
		return rt.Settings.PTYTimeout
	}
	return config.DefaultPTYTimeout
}

// CookieStores lists the browser cookie stores to search, in lookup order.
func (rt *Runtime) CookieStores() []cookies.Store {
	if rt.stores != nil {
		return rt.stores
	}
	return rt.Cookies.Stores()
}

// LocalStorageDirs lists the Chromium local-storage directories to scan.
func (rt *Runtime) LocalStorageDirs() []cookies.LevelDBDir {
	if rt.levelDBs != nil {
		return rt.levelDBs
	}
	return rt.Cookies.LocalStorageDirs()
}

// ExtractSession runs ex over the runtime's cookie stores.
func (rt *Runtime) ExtractSession(ctx context.Context, ex session.Extractor) (session.Info, error) {
	ex.Log = rt.Log
	return ex.Extract(ctx, rt.CookieStores())
}

// Logger returns a child logger for one provider.
func (rt *Runtime) Logger(provider string) zerolog.Logger {
	return rt.Log.With().Str("component", "provider").Str("provider", provider).Logger()
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.Sessions != nil {
		errs = append(errs, rt.Sessions.Close())
	}
	return errors.Join(errs...)
}
