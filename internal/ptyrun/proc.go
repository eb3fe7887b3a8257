package ptyrun

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/janekbaraniewski/quotaprobe/internal/core"
)

var (
	ErrTimedOut      = errors.New("timed out waiting for CLI output")
	ErrProcessExited = errors.New("CLI exited before output was captured")
	ErrLaunchFailed  = errors.New("could not launch CLI")
)

// Geometry is a terminal size in character cells.
type Geometry struct {
	Rows uint16
	Cols uint16
}

var (
	DefaultGeometry = Geometry{Rows: 40, Cols: 120}
	WidenedGeometry = Geometry{Rows: 60, Cols: 200}
)

func (g Geometry) orDefault() Geometry {
	if g.Rows == 0 || g.Cols == 0 {
		return DefaultGeometry
	}
	return g
}

// CursorPositionReplies answers the cursor position report that TUI
// frameworks issue on startup.
func CursorPositionReplies() map[string]string {
	return map[string]string{
		"\x1b[6n":  "\x1b[1;1R",
		"\x1b[?6n": "\x1b[1;1R",
	}
}

// proc is one CLI process attached to a pty. Output arrives on chunks, which
// is closed when the pty reports EOF or an error.
type proc struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	chunks  chan []byte
	stop    chan struct{}
	replies map[string]string
	tail    []byte
	raw     bytes.Buffer

	once sync.Once
}

func startProc(binary string, args, env []string, dir string, geo Geometry, replies map[string]string) (*proc, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = append(append(os.Environ(), "TERM=xterm-256color"), env...)
	cmd.Dir = dir

	geo = geo.orDefault()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: geo.Rows, Cols: geo.Cols})
	if err != nil {
		kind := core.KindUnknown
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			kind = core.KindToolMissing
		}
		return nil, core.Errorf(kind, "%w %s: %v", ErrLaunchFailed, binary, err)
	}

	p := &proc{
		cmd:     cmd,
		ptmx:    ptmx,
		chunks:  make(chan []byte, 16),
		stop:    make(chan struct{}),
		replies: replies,
	}
	go p.read()
	return p, nil
}

func (p *proc) read() {
	defer close(p.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case p.chunks <- chunk:
			case <-p.stop:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// feed records a chunk and answers any terminal query it completes.
func (p *proc) feed(chunk []byte) {
	p.raw.Write(chunk)
	if len(p.replies) == 0 {
		return
	}
	window := append(append([]byte(nil), p.tail...), chunk...)
	longest := 0
	for query, reply := range p.replies {
		longest = max(longest, len(query))
		if bytes.Contains(window, []byte(query)) {
			_ = p.write(reply)
		}
	}
	keep := max(longest-1, 0)
	if len(window) > keep {
		window = window[len(window)-keep:]
	}
	p.tail = window
}

func (p *proc) write(s string) error {
	_, err := p.ptmx.Write([]byte(s))
	return err
}

// resize changes the pty size; the kernel signals the CLI with SIGWINCH.
func (p *proc) resize(geo Geometry) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: geo.Rows, Cols: geo.Cols})
}

func (p *proc) resetOutput() {
	p.raw.Reset()
	p.tail = p.tail[:0]
}

// kill tears down the whole process group. Safe to call more than once.
func (p *proc) kill() {
	p.once.Do(func() {
		close(p.stop)
		if p.cmd.Process != nil {
			if err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL); err != nil {
				_ = p.cmd.Process.Kill()
			}
		}
		_ = p.ptmx.Close()
		_ = p.cmd.Wait()
	})
}
