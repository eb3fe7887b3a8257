// Package strategy decides which acquisition path a provider takes and runs
// it with at most one precomputed fallback.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

type Flags struct {
	// WebExtras augments a CLI fetch with web-only data such as spend limits.
	WebExtras bool
}

// Plan is decided before any network or process work starts.
type Plan struct {
	Source     core.Source
	Fallback   core.Source
	FallbackOn []core.ErrorKind
	Flags      Flags
	Reason     string
}

func (p Plan) String() string {
	if p.Fallback == "" {
		return fmt.Sprintf("%s (%s)", p.Source, p.Reason)
	}
	return fmt.Sprintf("%s, then %s on %v (%s)", p.Source, p.Fallback, p.FallbackOn, p.Reason)
}

// ShouldFallback reports whether err from the primary attempt permits the
// fallback.
func (p Plan) ShouldFallback(err error) bool {
	return err != nil && p.Fallback != "" && slices.Contains(p.FallbackOn, core.KindOf(err))
}

type Attempt func(ctx context.Context) (core.UsageSnapshot, error)

// Execute runs the planned source and, when the plan allows it for the
// error's kind, the fallback once. The snapshot is stamped with the source
// that produced it; errors are stamped with the source that failed.
func Execute(ctx context.Context, plan Plan, attempts map[core.Source]Attempt) (core.UsageSnapshot, error) {
	snap, err := run(ctx, plan.Source, attempts)
	if !plan.ShouldFallback(err) {
		return snap, err
	}
	if _, ok := attempts[plan.Fallback]; !ok {
		return snap, err
	}
	return run(ctx, plan.Fallback, attempts)
}

func run(ctx context.Context, src core.Source, attempts map[core.Source]Attempt) (core.UsageSnapshot, error) {
	attempt, ok := attempts[src]
	if !ok || attempt == nil {
		return core.UsageSnapshot{}, &core.FetchError{Source: src, Err: fmt.Errorf("source %s is not supported", src)}
	}
	snap, err := attempt(ctx)
	if err != nil {
		return snap, stampSource(err, src)
	}
	if snap.Source == "" {
		snap.Source = string(src)
	}
	return snap, nil
}

func stampSource(err error, src core.Source) error {
	var fe *core.FetchError
	if !errors.As(err, &fe) {
		return &core.FetchError{Source: src, Err: err}
	}
	if fe.Source != "" {
		return err
	}
	cp := *fe
	cp.Source = src
	return &cp
}
