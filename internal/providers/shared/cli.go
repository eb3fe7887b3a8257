package shared

import (
	"context"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/ptyrun"
	"github.com/janekbaraniewski/quotaprobe/internal/textparse"
)

const cliRetryDelay = 750 * time.Millisecond

// CLIRecipe describes how usage is read from an interactive CLI.
type CLIRecipe struct {
	Binary      string
	Args        []string
	Dir         string
	Script      []string
	ScriptDelay time.Duration
	Blockers    textparse.Blockers

	// Done overrides the default completion check, which waits until the
	// screen parses or shows a blocking phrase.
	Done func(screen string) bool

	// Persistent keeps the CLI running in the runtime's session pool between
	// fetches instead of spawning it per capture.
	Persistent bool
}

// CaptureCLI runs recipe and hands the screen to parse. A capture that times
// out or does not parse is retried once on a wider terminal with twice the
// timeout.
func CaptureCLI[T any](ctx context.Context, rt *Runtime, acct core.AccountConfig, recipe CLIRecipe, parse func(screen string) (T, error)) (T, error) {
	var zero T
	binary := recipe.Binary
	if acct.Binary != "" {
		binary = acct.Binary
	}
	path, err := rt.Tools.Lookup(ctx, binary)
	if err != nil {
		return zero, err
	}
	env := rt.Tools.Env(ctx)

	done := recipe.Done
	if done == nil {
		done = func(screen string) bool {
			if recipe.Blockers.Check(screen) != nil {
				return true
			}
			_, err := parse(screen)
			return err == nil
		}
	}

	log := rt.Log.With().Str("component", "cli").Str("binary", binary).Logger()
	plan := ptyrun.RetryPlan{
		FirstTimeout:   rt.PTYTimeout(),
		WidenedTimeout: 2 * rt.PTYTimeout(),
		Delay:          cliRetryDelay,
	}
	return ptyrun.WithWidenedRetry(ctx, plan, func(ctx context.Context, geo ptyrun.Geometry, timeout time.Duration) (T, error) {
		res, err := rt.capture(ctx, path, env, recipe, done, geo, timeout)
		log.Debug().
			Str("state", res.State.String()).
			Uint16("cols", geo.Cols).
			Dur("elapsed", res.Elapsed).
			Int("screen_bytes", len(res.Screen)).
			Msg("cli capture")
		if berr := recipe.Blockers.Check(res.Screen); berr != nil {
			return zero, berr
		}
		if err != nil {
			return zero, err
		}
		return parse(res.Screen)
	})
}

func (rt *Runtime) capture(ctx context.Context, path string, env []string, recipe CLIRecipe, done func(string) bool, geo ptyrun.Geometry, timeout time.Duration) (ptyrun.Result, error) {
	if !recipe.Persistent {
		return ptyrun.RunOnce(ctx, ptyrun.Request{
			Binary:      path,
			Args:        recipe.Args,
			Env:         env,
			Dir:         recipe.Dir,
			Script:      recipe.Script,
			ScriptDelay: recipe.ScriptDelay,
			Geometry:    geo,
			Timeout:     timeout,
			Done:        done,
			Replies:     ptyrun.CursorPositionReplies(),
		})
	}

	sess, err := rt.Sessions.Get(ptyrun.SessionSpec{
		Binary:         path,
		Args:           recipe.Args,
		Env:            env,
		Dir:            recipe.Dir,
		Geometry:       geo,
		Replies:        ptyrun.CursorPositionReplies(),
		StartupTimeout: timeout,
	})
	if err != nil {
		return ptyrun.Result{Geometry: geo}, core.WrapError(core.KindUnknown, err)
	}
	return sess.Do(ctx, ptyrun.Interaction{
		Input:      recipe.Script,
		InputDelay: recipe.ScriptDelay,
		Done:       done,
		Timeout:    timeout,
		Geometry:   geo,
	})
}
