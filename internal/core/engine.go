package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one account fetch: exactly one of Snapshot and Err is set.
type Result struct {
	AccountID string
	Snapshot  *UsageSnapshot
	Err       error
	Elapsed   time.Duration
}

// Engine fans fetches out across accounts. It holds no usage state of its
// own; deciding when to call FetchAll belongs to the caller.
type Engine struct {
	mu        sync.RWMutex
	providers map[string]Provider // keyed by provider ID
	timeout   time.Duration
	limit     int
	log       zerolog.Logger
}

func NewEngine(timeout time.Duration, log zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Engine{
		providers: make(map[string]Provider),
		timeout:   timeout,
		limit:     4,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) RegisterProvider(p Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[p.ID()] = p
}

func (e *Engine) Provider(id string) (Provider, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.providers[id]
	return p, ok
}

// SetConcurrency bounds how many fetches run at once; n <= 0 means unbounded.
func (e *Engine) SetConcurrency(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limit = n
}

// Fetch runs a single account fetch under the engine timeout.
func (e *Engine) Fetch(ctx context.Context, acct AccountConfig) Result {
	start := time.Now()
	provider, ok := e.Provider(acct.Provider)
	if !ok {
		return Result{
			AccountID: acct.ID,
			Err:       fmt.Errorf("no provider adapter registered for %q", acct.Provider),
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := provider.Fetch(fetchCtx, acct)
	res := Result{AccountID: acct.ID, Elapsed: time.Since(start)}
	if err != nil {
		res.Err = Attribute(err, acct.Provider, "")
		e.log.Debug().Str("account", acct.ID).Str("kind", string(KindOf(err))).Err(err).Msg("fetch failed")
		return res
	}
	if snap.AccountID == "" {
		snap.AccountID = acct.ID
	}
	res.Snapshot = &snap
	e.log.Debug().Str("account", acct.ID).Dur("elapsed", res.Elapsed).Msg("fetch ok")
	return res
}

// FetchAll fetches every account concurrently. Results are keyed by account ID.
func (e *Engine) FetchAll(ctx context.Context, accounts []AccountConfig) map[string]Result {
	e.mu.RLock()
	limit := e.limit
	e.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(accounts))
	)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, acct := range accounts {
		g.Go(func() error {
			res := e.Fetch(gctx, acct)
			mu.Lock()
			results[acct.ID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
