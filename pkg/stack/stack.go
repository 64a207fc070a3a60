// Package stack holds the captured call-stack types shared by the sampler and its recorders.
package stack

import (
	"fmt"
	"strings"
)

// Frame is one level of a captured call stack.
type Frame struct {
	Name          string `json:"name"`
	Filename      string `json:"filename"`
	ShortFilename string `json:"short_filename,omitempty"`
	Module        string `json:"module,omitempty"`
	Line          int    `json:"line"` // 0 if unknown
}

// DisplayFilename returns the short filename when one was resolved.
func (f Frame) DisplayFilename() string {
	if f.ShortFilename != "" {
		return f.ShortFilename
	}
	return f.Filename
}

// Label renders the frame as "name (file)" or "name (file:line)".
func (f Frame) Label(showLineNumbers bool) string {
	if showLineNumbers && f.Line != 0 {
		return fmt.Sprintf("%s (%s:%d)", f.Name, f.DisplayFilename(), f.Line)
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.DisplayFilename())
}

// StackTrace is the state of one thread at one sample instant.
// Frames are ordered innermost call first.
type StackTrace struct {
	ThreadID   uint64  `json:"thread_id"`
	OSThreadID *uint64 `json:"os_thread_id,omitempty"`
	ThreadName string  `json:"thread_name,omitempty"`
	Active     bool    `json:"active"`
	OwnsGIL    bool    `json:"owns_gil"`
	Frames     []Frame `json:"frames"`
}

// Status returns a short human-readable label for the thread state.
func (t *StackTrace) Status() string {
	switch {
	case t.Active && t.OwnsGIL:
		return "active+gil"
	case t.Active:
		return "active"
	case t.OwnsGIL:
		return "gil"
	default:
		return "idle"
	}
}

// Folded returns the aggregation key of the trace: frames outermost first, joined by ";".
func (t *StackTrace) Folded(showLineNumbers bool) string {
	var b strings.Builder
	for i := len(t.Frames) - 1; i >= 0; i-- {
		b.WriteString(t.Frames[i].Label(showLineNumbers))
		if i > 0 {
			b.WriteByte(';')
		}
	}
	return b.String()
}

// Instant identifies when a trace was sampled.
// Tick counts processed sampling ticks; Bucket counts whole seconds of sampling progress.
type Instant struct {
	Tick   uint64
	Bucket uint64
}
