package ptyrun

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
	"github.com/janekbaraniewski/quotaprobe/internal/textparse"
)

var ErrSessionClosed = errors.New("ptyrun: session closed")

// SessionSpec describes a long-lived CLI process. Geometry is the size the
// process is launched with; interactions may resize it.
type SessionSpec struct {
	Binary   string
	Args     []string
	Env      []string
	Dir      string
	Geometry Geometry
	Replies  map[string]string

	// StartupTimeout bounds the wait for the first output after launch.
	StartupTimeout time.Duration
}

// Interaction is one request against a running session.
type Interaction struct {
	Input      []string
	InputDelay time.Duration
	Done       func(screen string) bool
	Settle     time.Duration
	Timeout    time.Duration

	// Geometry resizes the running terminal before the input is written.
	// Zero keeps the spec's geometry.
	Geometry Geometry
}

type call struct {
	ctx  context.Context
	in   Interaction
	resp chan callResult
}

type callResult struct {
	res Result
	err error
}

// Session owns one persistent CLI process. A single goroutine drives the
// process; callers queue on a one-slot channel and are served in turn.
type Session struct {
	spec     SessionSpec
	log      zerolog.Logger
	requests chan call
	quit     chan struct{}
	done     chan struct{}
	closing  sync.Once
	state    atomic.Int32

	// owned by loop
	machine *Machine
	proc    *proc
	geo     Geometry
}

func NewSession(spec SessionSpec, log zerolog.Logger) *Session {
	s := &Session{
		spec:     spec,
		log:      log.With().Str("component", "ptyrun").Str("binary", spec.Binary).Logger(),
		requests: make(chan call, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		machine:  NewMachine(true),
	}
	go s.loop()
	return s
}

// Do runs one interaction and returns the screen rendered since its input
// was written.
func (s *Session) Do(ctx context.Context, in Interaction) (Result, error) {
	c := call{ctx: ctx, in: in, resp: make(chan callResult, 1)}
	select {
	case s.requests <- c:
	case <-s.quit:
		return Result{}, ErrSessionClosed
	case <-ctx.Done():
		return Result{}, ctxError(ctx.Err())
	}
	select {
	case r := <-c.resp:
		return r.res, r.err
	case <-s.done:
		return Result{}, ErrSessionClosed
	case <-ctx.Done():
		return Result{}, ctxError(ctx.Err())
	}
}

// State is the lifecycle state last recorded by the owning goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) to(next State) {
	s.to(next)
	s.state.Store(int32(s.machine.State()))
}

func (s *Session) Close() error {
	s.closing.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

func (s *Session) loop() {
	defer close(s.done)
	defer s.teardown()
	for {
		select {
		case <-s.quit:
			return
		case c := <-s.requests:
			res, err := s.serve(c)
			c.resp <- callResult{res: res, err: err}
		}
	}
}

func (s *Session) serve(c call) (Result, error) {
	start := time.Now()
	geo := c.in.Geometry
	if geo.Rows == 0 || geo.Cols == 0 {
		geo = s.spec.Geometry.orDefault()
	}
	if err := c.ctx.Err(); err != nil {
		return Result{Geometry: geo}, ctxError(err)
	}

	if s.machine.State() == Captured && !s.drain() {
		s.log.Debug().Msg("session process exited while idle")
		s.reset()
	}
	if s.machine.State() == Captured && s.geo != geo {
		if err := s.proc.resize(geo); err != nil {
			s.log.Debug().Err(err).Msg("resize failed, relaunching session")
			s.reset()
		} else {
			s.log.Debug().Uint16("rows", geo.Rows).Uint16("cols", geo.Cols).Msg("session resized")
			s.geo = geo
		}
	}
	if s.machine.State() == Captured {
		s.to(AwaitingOutput)
	} else if err := s.launch(c.ctx, geo); err != nil {
		return Result{State: s.machine.State(), Geometry: geo, Elapsed: time.Since(start)}, err
	}
	s.proc.resetOutput()

	req := Request{Timeout: c.in.Timeout, Settle: c.in.Settle}
	err := converse(c.ctx, s.proc, c.in.Input, c.in.InputDelay, c.in.Done, req.settle(), req.timeout(), false)
	res := Result{
		Raw:      s.proc.raw.String(),
		Geometry: geo,
	}
	res.Screen = textparse.StripANSI(res.Raw)

	switch {
	case err == nil:
		s.to(Captured)
	case errors.Is(err, ErrProcessExited):
		s.to(ProcessExited)
	default:
		s.to(TimedOut)
	}
	res.State = s.machine.State()
	res.Elapsed = time.Since(start)

	if err != nil {
		s.log.Debug().Str("state", res.State.String()).Err(err).Msg("interaction failed, resetting session")
		s.reset()
	}
	return res, err
}

// launch starts the process and waits for it to print something.
func (s *Session) launch(ctx context.Context, geo Geometry) error {
	if s.machine.State() != NotStarted {
		s.reset()
	}
	s.to(Launching)
	p, err := startProc(s.spec.Binary, s.spec.Args, s.spec.Env, s.spec.Dir, geo, s.spec.Replies)
	if err != nil {
		s.to(LaunchFailed)
		s.reset()
		return err
	}
	s.proc = p
	s.geo = geo
	s.to(AwaitingOutput)
	s.log.Debug().Int("pid", p.cmd.Process.Pid).Msg("session launched")

	startup := s.spec.StartupTimeout
	if startup <= 0 {
		startup = defaultTimeout
	}
	timer := time.NewTimer(startup)
	defer timer.Stop()
	select {
	case chunk, ok := <-p.chunks:
		if ok {
			p.feed(chunk)
			return nil
		}
		s.to(ProcessExited)
		s.reset()
		return core.Errorf(core.KindMalformed, "%w during startup", ErrProcessExited)
	case <-timer.C:
		s.to(TimedOut)
		s.reset()
		return core.Errorf(core.KindTimeout, "%w during startup", ErrTimedOut)
	case <-ctx.Done():
		s.to(TimedOut)
		s.reset()
		return ctxError(ctx.Err())
	}
}

// drain consumes output that arrived while the session was idle and reports
// whether the process is still attached.
func (s *Session) drain() bool {
	for {
		select {
		case chunk, ok := <-s.proc.chunks:
			if !ok {
				return false
			}
			s.proc.feed(chunk)
		default:
			return true
		}
	}
}

func (s *Session) reset() {
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}
	if s.machine.State() != NotStarted {
		s.to(NotStarted)
	}
}

func (s *Session) teardown() {
	if s.proc != nil {
		s.proc.kill()
		s.proc = nil
	}
}
