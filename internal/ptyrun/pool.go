package ptyrun

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Pool hands out one persistent session per command line. Sessions are
// created on first use and disposed by Close; geometry changes resize the
// existing session.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	log      zerolog.Logger
}

func NewPool(log zerolog.Logger) *Pool {
	return &Pool{sessions: make(map[string]*Session), log: log}
}

func poolKey(spec SessionSpec) string {
	return spec.Binary + "\x00" + strings.Join(spec.Args, "\x00")
}

func (p *Pool) Get(spec SessionSpec) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrSessionClosed
	}
	key := poolKey(spec)
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	s := NewSession(spec, p.log)
	p.sessions[key] = s
	return s, nil
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = map[string]*Session{}
	p.closed = true
	p.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}
