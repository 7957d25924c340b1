// Package ziparchive streams named buffers into a single deflate zip archive.
package ziparchive

import (
	"archive/zip"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
)

// State is the lifecycle position of a Packager.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFinalizing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrClosed is returned for calls on a finalized or failed packager.
var ErrClosed = errors.New("ziparchive: packager closed")

// SinkError reports a failure of the underlying writer. It is fatal for the whole batch.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("ziparchive: %s: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Packager owns its sink for the lifetime of one archive. Calls are serialised internally.
type Packager struct {
	mu      sync.Mutex
	sink    *trackingWriter
	zw      *zip.Writer
	state   State
	err     error
	names   map[string]int
	entries int
}

// New wraps w. Nothing is written until the first Append or Finalize.
func New(w io.Writer) *Packager {
	sink := &trackingWriter{w: w}
	zw := zip.NewWriter(sink)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &Packager{
		sink:  sink,
		zw:    zw,
		state: StateIdle,
		names: make(map[string]int),
	}
}

// Append compresses data into the archive under name and returns the name actually used.
// Repeated names receive a numeric suffix before the extension.
func (p *Packager) Append(name string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle, StateStreaming:
	case StateError:
		return "", p.err
	default:
		return "", ErrClosed
	}
	p.state = StateStreaming

	entry := p.uniqueName(name)
	w, err := p.zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate})
	if err != nil {
		return "", p.fail("create entry", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", p.fail("write entry", err)
	}
	p.entries++
	return entry, nil
}

// Finalize writes the central directory. The sink is not closed.
func (p *Packager) Finalize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle, StateStreaming:
	case StateError:
		p.state = StateClosed
		return p.err
	default:
		return ErrClosed
	}
	p.state = StateFinalizing
	if err := p.zw.Close(); err != nil {
		_ = p.fail("finalize", err)
		p.state = StateClosed
		return p.err
	}
	p.state = StateClosed
	return nil
}

// Abort moves the packager to closed without writing a central directory.
func (p *Packager) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateClosed
}

// State reports the current lifecycle state.
func (p *Packager) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Entries counts successfully appended entries.
func (p *Packager) Entries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries
}

// Written reports whether any byte has reached the sink.
func (p *Packager) Written() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink.n > 0
}

func (p *Packager) fail(op string, err error) error {
	p.state = StateError
	p.err = &SinkError{Op: op, Err: err}
	return p.err
}

func (p *Packager) uniqueName(name string) string {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	if name == "" {
		name = "entry"
	}
	seen := p.names[name]
	p.names[name] = seen + 1
	if seen == 0 {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := seen + 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if _, taken := p.names[candidate]; !taken {
			p.names[candidate] = 1
			return candidate
		}
	}
}

type trackingWriter struct {
	w io.Writer
	n int64
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	n, err := t.w.Write(b)
	t.n += int64(n)
	return n, err
}
