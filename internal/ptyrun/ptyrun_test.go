package ptyrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func shell(script string) (string, []string) {
	return "/bin/sh", []string{"-c", script}
}

func contains(s string) func(string) bool {
	return func(screen string) bool { return strings.Contains(screen, s) }
}

func TestMachineTransitions(t *testing.T) {
	oneShot := NewMachine(false)
	assert.Error(t, oneShot.To(AwaitingOutput))
	require.NoError(t, oneShot.To(Launching))
	require.NoError(t, oneShot.To(AwaitingOutput))
	require.NoError(t, oneShot.To(Captured))
	assert.Error(t, oneShot.To(AwaitingOutput), "one-shot capture is final")
	assert.Error(t, oneShot.To(NotStarted))
	assert.Equal(t, Captured, oneShot.State())

	persistent := NewMachine(true)
	require.NoError(t, persistent.To(Launching))
	require.NoError(t, persistent.To(AwaitingOutput))
	require.NoError(t, persistent.To(Captured))
	require.NoError(t, persistent.To(AwaitingOutput))
	require.NoError(t, persistent.To(TimedOut))
	assert.Error(t, persistent.To(Captured))
	require.NoError(t, persistent.To(NotStarted))

	launch := NewMachine(true)
	require.NoError(t, launch.To(Launching))
	require.NoError(t, launch.To(LaunchFailed))
	assert.True(t, launch.State().Failed())
	require.NoError(t, launch.To(NotStarted))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_output", AwaitingOutput.String())
	assert.Equal(t, "process_exited", ProcessExited.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRunOnceCapturesAfterScript(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'ready\n'; read line; printf 'Current session: 12%% used (%s)\n' "$line"; sleep 5`)

	res, err := RunOnce(context.Background(), Request{
		Binary:   bin,
		Args:     args,
		Script:   []string{"/usage"},
		Geometry: Geometry{Rows: 30, Cols: 100},
		Timeout:  5 * time.Second,
		Done:     contains("12% used"),
		Settle:   50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, Captured, res.State)
	assert.Contains(t, res.Screen, "Current session: 12% used (/usage)")
	assert.NotContains(t, res.Screen, "\r")
	assert.Equal(t, Geometry{Rows: 30, Cols: 100}, res.Geometry)
	assert.Less(t, res.Elapsed, 5*time.Second)
}

func TestRunOnceTimeoutKeepsPartialScreen(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'loading\n'; sleep 10`)

	res, err := RunOnce(context.Background(), Request{
		Binary:  bin,
		Args:    args,
		Timeout: 300 * time.Millisecond,
		Done:    contains("never printed"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.True(t, errors.Is(err, core.ErrTimeout))
	assert.Equal(t, TimedOut, res.State)
	assert.Contains(t, res.Screen, "loading")
	assert.Equal(t, DefaultGeometry, res.Geometry)
}

func TestRunOnceProcessExit(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'bye\n'`)

	res, err := RunOnce(context.Background(), Request{
		Binary:  bin,
		Args:    args,
		Timeout: 5 * time.Second,
		Done:    contains("usage"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessExited))
	assert.Equal(t, core.KindMalformed, core.KindOf(err))
	assert.Equal(t, ProcessExited, res.State)
}

func TestRunOnceExitAfterDoneIsCaptured(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'Weekly limit: 40%% left\n'`)

	res, err := RunOnce(context.Background(), Request{
		Binary:  bin,
		Args:    args,
		Timeout: 5 * time.Second,
		Done:    contains("left"),
		Settle:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, Captured, res.State)
	assert.Contains(t, res.Screen, "40% left")
}

func TestRunOnceLaunchFailure(t *testing.T) {
	res, err := RunOnce(context.Background(), Request{Binary: "/nonexistent/quotaprobe-missing-cli"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLaunchFailed))
	assert.Equal(t, core.KindToolMissing, core.KindOf(err))
	assert.Equal(t, LaunchFailed, res.State)
}

func TestRunOnceAnswersCursorQuery(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("stty"); err != nil {
		t.Skip("stty not available")
	}
	if _, err := exec.LookPath("dd"); err != nil {
		t.Skip("dd not available")
	}
	bin, args := shell(`stty -icanon -echo; printf '\033[6n'; dd bs=1 count=6 >/dev/null 2>&1; printf 'answered\n'; sleep 5`)

	res, err := RunOnce(context.Background(), Request{
		Binary:  bin,
		Args:    args,
		Timeout: 3 * time.Second,
		Done:    contains("answered"),
		Settle:  50 * time.Millisecond,
		Replies: CursorPositionReplies(),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Screen, "answered")
	assert.Contains(t, res.Raw, "\x1b[6n")
}

const echoLoop = `printf 'ready\n'; while IFS= read -r line; do printf 'got:%s\n' "$line"; done`

func TestSessionServesSequentialInteractions(t *testing.T) {
	requireShell(t)
	bin, args := shell(echoLoop)
	s := NewSession(SessionSpec{Binary: bin, Args: args, StartupTimeout: 5 * time.Second}, zerolog.Nop())
	defer s.Close()

	ctx := context.Background()
	first, err := s.Do(ctx, Interaction{Input: []string{"one"}, Done: contains("got:one"), Settle: 50 * time.Millisecond, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, first.Screen, "got:one")
	assert.Equal(t, Captured, s.State())

	second, err := s.Do(ctx, Interaction{Input: []string{"two"}, Done: contains("got:two"), Settle: 50 * time.Millisecond, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, second.Screen, "got:two")
	assert.NotContains(t, second.Screen, "got:one")
}

func TestSessionQueuesConcurrentCallers(t *testing.T) {
	requireShell(t)
	bin, args := shell(echoLoop)
	s := NewSession(SessionSpec{Binary: bin, Args: args, StartupTimeout: 5 * time.Second}, zerolog.Nop())
	defer s.Close()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	screens := make([]string, 4)
	for i := range 4 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			word := fmt.Sprintf("caller%d", i)
			res, err := s.Do(context.Background(), Interaction{
				Input:   []string{word},
				Done:    contains("got:" + word),
				Settle:  30 * time.Millisecond,
				Timeout: 5 * time.Second,
			})
			errs[i], screens[i] = err, res.Screen
		}(i)
	}
	wg.Wait()

	for i := range 4 {
		require.NoError(t, errs[i])
		assert.Contains(t, screens[i], fmt.Sprintf("got:caller%d", i))
	}
}

func TestSessionRelaunchesAfterExitAndTimeout(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'ready\n'; read line; printf 'once:%s\n' "$line"`)
	s := NewSession(SessionSpec{Binary: bin, Args: args, StartupTimeout: 5 * time.Second}, zerolog.Nop())
	defer s.Close()

	for _, word := range []string{"a", "b"} {
		res, err := s.Do(context.Background(), Interaction{Input: []string{word}, Done: contains("once:" + word), Settle: 200 * time.Millisecond, Timeout: 5 * time.Second})
		require.NoError(t, err)
		assert.Contains(t, res.Screen, "once:"+word)
	}

	_, err := s.Do(context.Background(), Interaction{Input: []string{"c"}, Done: contains("never"), Timeout: 300 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, NotStarted, s.State())
}

func TestSessionResizesInPlace(t *testing.T) {
	requireShell(t)
	bin, args := shell(`printf 'ready\n'; while IFS= read -r line; do printf 'pid:%s size:%s\n' "$$" "$(stty size)"; done`)
	s := NewSession(SessionSpec{Binary: bin, Args: args, StartupTimeout: 5 * time.Second}, zerolog.Nop())
	defer s.Close()

	ctx := context.Background()
	first, err := s.Do(ctx, Interaction{Input: []string{"a"}, Done: contains("size:40 120"), Settle: 50 * time.Millisecond, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeometry, first.Geometry)

	second, err := s.Do(ctx, Interaction{Input: []string{"b"}, Done: contains("size:60 200"), Settle: 50 * time.Millisecond, Timeout: 5 * time.Second, Geometry: WidenedGeometry})
	require.NoError(t, err)
	assert.Equal(t, WidenedGeometry, second.Geometry)

	pid := func(screen string) string {
		i := strings.Index(screen, "pid:")
		require.GreaterOrEqual(t, i, 0, screen)
		return strings.Fields(screen[i:])[0]
	}
	assert.Equal(t, pid(first.Screen), pid(second.Screen), "resize must not relaunch the CLI")
	assert.Equal(t, Captured, s.State())
}

func TestSessionClosed(t *testing.T) {
	requireShell(t)
	bin, args := shell(echoLoop)
	s := NewSession(SessionSpec{Binary: bin, Args: args}, zerolog.Nop())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Do(context.Background(), Interaction{Input: []string{"x"}})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestPoolReusesSessions(t *testing.T) {
	p := NewPool(zerolog.Nop())
	spec := SessionSpec{Binary: "/bin/sh", Args: []string{"-c", "cat"}}

	a, err := p.Get(spec)
	require.NoError(t, err)
	b, err := p.Get(spec)
	require.NoError(t, err)
	assert.Same(t, a, b)

	wide := spec
	wide.Geometry = WidenedGeometry
	c, err := p.Get(wide)
	require.NoError(t, err)
	assert.Same(t, a, c, "geometry does not split sessions")

	other := spec
	other.Args = []string{"-c", "cat -u"}
	d, err := p.Get(other)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, 2, p.Len())

	require.NoError(t, p.Close())
	_, err = p.Get(spec)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestWithWidenedRetry(t *testing.T) {
	timeout := core.Errorf(core.KindTimeout, "%w", ErrTimedOut)

	t.Run("retries once with widened geometry", func(t *testing.T) {
		var geos []Geometry
		var timeouts []time.Duration
		_, err := WithWidenedRetry(context.Background(), RetryPlan{FirstTimeout: time.Second, WidenedTimeout: 2 * time.Second},
			func(_ context.Context, geo Geometry, d time.Duration) (string, error) {
				geos = append(geos, geo)
				timeouts = append(timeouts, d)
				if len(geos) == 1 {
					return "", timeout
				}
				return "", core.Errorf(core.KindMalformed, "second")
			})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "second")
		assert.Equal(t, []Geometry{DefaultGeometry, WidenedGeometry}, geos)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timeouts)
	})

	t.Run("timeout twice stops after two attempts", func(t *testing.T) {
		var timeouts []time.Duration
		_, err := WithWidenedRetry(context.Background(), RetryPlan{FirstTimeout: time.Second},
			func(_ context.Context, _ Geometry, d time.Duration) (string, error) {
				timeouts = append(timeouts, d)
				return "", timeout
			})
		require.Error(t, err)
		assert.Equal(t, core.KindTimeout, core.KindOf(err))
		assert.ErrorIs(t, err, ErrTimedOut)
		assert.Len(t, timeouts, 2)
	})

	t.Run("widened attempt always gets a longer timeout and more columns", func(t *testing.T) {
		var geos []Geometry
		var timeouts []time.Duration
		plan := RetryPlan{First: WidenedGeometry, Widened: DefaultGeometry, FirstTimeout: time.Second, WidenedTimeout: time.Second}
		_, _ = WithWidenedRetry(context.Background(), plan, func(_ context.Context, geo Geometry, d time.Duration) (int, error) {
			geos = append(geos, geo)
			timeouts = append(timeouts, d)
			return 0, timeout
		})
		require.Len(t, timeouts, 2)
		assert.Equal(t, 2*time.Second, timeouts[1])
		assert.Greater(t, geos[1].Cols, geos[0].Cols)
		assert.GreaterOrEqual(t, geos[1].Rows, geos[0].Rows)

		timeouts = nil
		_, _ = WithWidenedRetry(context.Background(), RetryPlan{}, func(_ context.Context, _ Geometry, d time.Duration) (int, error) {
			timeouts = append(timeouts, d)
			return 0, timeout
		})
		assert.Equal(t, []time.Duration{defaultTimeout, 2 * defaultTimeout}, timeouts)
	})

	t.Run("no retry for non-retryable", func(t *testing.T) {
		calls := 0
		_, err := WithWidenedRetry(context.Background(), RetryPlan{}, func(context.Context, Geometry, time.Duration) (int, error) {
			calls++
			return 0, core.Errorf(core.KindToolMissing, "claude not found")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("success first", func(t *testing.T) {
		calls := 0
		v, err := WithWidenedRetry(context.Background(), RetryPlan{}, func(context.Context, Geometry, time.Duration) (int, error) {
			calls++
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancel during delay", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := WithWidenedRetry(ctx, RetryPlan{Delay: time.Minute}, func(context.Context, Geometry, time.Duration) (int, error) {
			calls++
			cancel()
			return 0, timeout
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
