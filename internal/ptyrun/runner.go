package ptyrun

import (
	"context"
	"errors"
	"time"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/textparse"
)

const (
	defaultTimeout = 20 * time.Second
	defaultSettle  = 400 * time.Millisecond
)

// Request describes one scripted CLI interaction.
type Request struct {
	Binary      string
	Args        []string
	Env         []string
	Dir         string
	Script      []string
	ScriptDelay time.Duration
	Geometry    Geometry
	Timeout     time.Duration

	// Done reports whether the rendered screen holds everything needed.
	// When nil, capture completes once output goes quiet after the script.
	Done func(screen string) bool

	// Settle is the quiet period required after Done before capture.
	Settle time.Duration

	// Replies maps terminal queries to the bytes written back.
	Replies map[string]string
}

// Result is what a capture produced. Screen is ANSI-stripped; Raw keeps the
// bytes as the CLI wrote them.
type Result struct {
	Screen   string
	Raw      string
	State    State
	Geometry Geometry
	Elapsed  time.Duration
}

func (r Request) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultTimeout
}

func (r Request) settle() time.Duration {
	if r.Settle > 0 {
		return r.Settle
	}
	return defaultSettle
}

// RunOnce launches the CLI, waits for its first output, types the script and
// captures the screen. The process group is killed before RunOnce returns.
func RunOnce(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	geo := req.Geometry.orDefault()
	m := NewMachine(false)
	res := Result{Geometry: geo}

	_ = m.To(Launching)
	p, err := startProc(req.Binary, req.Args, req.Env, req.Dir, geo, req.Replies)
	if err != nil {
		_ = m.To(LaunchFailed)
		res.State = m.State()
		res.Elapsed = time.Since(start)
		return res, err
	}
	defer p.kill()
	_ = m.To(AwaitingOutput)

	err = converse(ctx, p, req.Script, req.ScriptDelay, req.Done, req.settle(), req.timeout(), true)
	switch {
	case err == nil:
		_ = m.To(Captured)
	case errors.Is(err, ErrProcessExited):
		_ = m.To(ProcessExited)
	default:
		_ = m.To(TimedOut)
	}

	res.Raw = p.raw.String()
	res.Screen = textparse.StripANSI(res.Raw)
	res.State = m.State()
	res.Elapsed = time.Since(start)
	return res, err
}

// converse writes script to p and reads until done holds for a settled
// screen. With waitFirst the script is held back until the CLI has printed
// something.
func converse(ctx context.Context, p *proc, script []string, delay time.Duration, done func(string) bool, settle, timeout time.Duration, waitFirst bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var (
		scriptC  <-chan time.Time
		settleC  <-chan time.Time
		next     int
		sent     = len(script) == 0
		ready    bool
		settleT  *time.Timer
		scriptT  *time.Timer
		armDelay = func() {
			if scriptT != nil {
				scriptT.Stop()
			}
			scriptT = time.NewTimer(delay)
			scriptC = scriptT.C
		}
	)
	defer func() {
		if settleT != nil {
			settleT.Stop()
		}
		if scriptT != nil {
			scriptT.Stop()
		}
	}()

	evaluate := func() {
		if !sent {
			return
		}
		if !ready && (done == nil || done(textparse.StripANSI(p.raw.String()))) {
			ready = true
		}
		if ready {
			if settleT != nil {
				settleT.Stop()
			}
			settleT = time.NewTimer(settle)
			settleC = settleT.C
		}
	}

	if !sent && !waitFirst {
		armDelay()
	}

	for {
		select {
		case <-ctx.Done():
			return ctxError(ctx.Err())
		case <-deadline.C:
			return core.Errorf(core.KindTimeout, "%w after %s", ErrTimedOut, timeout)
		case chunk, ok := <-p.chunks:
			if !ok {
				if ready || (sent && done != nil && done(textparse.StripANSI(p.raw.String()))) {
					return nil
				}
				return core.Errorf(core.KindMalformed, "%w", ErrProcessExited)
			}
			p.feed(chunk)
			if !sent && scriptC == nil {
				armDelay()
			}
			evaluate()
		case <-scriptC:
			scriptC = nil
			if err := p.write(script[next] + "\r"); err != nil {
				return core.Errorf(core.KindMalformed, "%w: write: %v", ErrProcessExited, err)
			}
			next++
			if next < len(script) {
				armDelay()
			} else {
				sent = true
				evaluate()
			}
		case <-settleC:
			return nil
		}
	}
}

func ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Errorf(core.KindTimeout, "%w: %v", ErrTimedOut, err)
	}
	return core.WrapError(core.KindUnknown, err)
}
