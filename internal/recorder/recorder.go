// Package recorder implements the session transcript recorder: a scoped
// text buffer whose contents are mirrored, on close, to the persistent
// session transcript and optionally to a live trace stream.
package recorder

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Recorder fans scoped buffers out to the session transcript and the
// trace stream. A nil transcript or trace writer disables that sink,
// which allows recording before a session log has been opened.
type Recorder struct {
	mu         sync.Mutex
	transcript io.Writer
	trace      io.Writer
	tracing    bool
}

// New constructs a recorder. The trace sink receives scope contents only
// when tracing is enabled globally or per scope.
func New(transcript io.Writer, trace io.Writer, tracing bool) *Recorder {
	return &Recorder{
		transcript: transcript,
		trace:      trace,
		tracing:    tracing,
	}
}

// Tracing reports whether global tracing is enabled.
func (r *Recorder) Tracing() bool {
	return r != nil && r.tracing
}

// SetTranscript redirects the transcript sink. Used when the session log
// is opened after the recorder exists.
func (r *Recorder) SetTranscript(transcript io.Writer) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.transcript = transcript
	r.mu.Unlock()
}

// Scope opens a scoped buffer. The caller writes into the scope and must
// close it; Close flushes the buffered text to the sinks exactly once.
func (r *Recorder) Scope(trace bool) *Scope {
	tracing := trace
	if r != nil && r.tracing {
		tracing = true
	}
	return &Scope{recorder: r, tracing: tracing}
}

// Record writes a single formatted line through a short-lived scope.
func (r *Recorder) Record(trace bool, format string, args ...any) {
	scope := r.Scope(trace)
	scope.Printf(format, args...)
	scope.Close()
}

func (r *Recorder) flush(text string, traced bool) {
	if r == nil || text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if traced && r.trace != nil {
		_, _ = io.WriteString(r.trace, text)
	}
	if r.transcript != nil {
		_, _ = io.WriteString(r.transcript, text)
	}
}

// Scope is one buffered recording region. It is not safe for concurrent
// use; each scope belongs to a single call site.
type Scope struct {
	recorder *Recorder
	buf      strings.Builder
	tracing  bool
	closed   bool
}

// Printf appends a formatted line to the scope buffer.
func (s *Scope) Printf(format string, args ...any) {
	if s == nil || s.closed {
		return
	}
	fmt.Fprintf(&s.buf, format, args...)
	if !strings.HasSuffix(s.buf.String(), "\n") {
		s.buf.WriteByte('\n')
	}
}

// Close flushes the buffered text to the recorder sinks. Subsequent
// closes and writes are no-ops.
func (s *Scope) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.recorder.flush(s.buf.String(), s.tracing)
}
