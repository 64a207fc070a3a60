// Package filter decides which captured stack traces are aggregated.
package filter

import (
	"fmt"

	"github.com/danpilch/stackspy/pkg/idle"
	"github.com/danpilch/stackspy/pkg/stack"
)

// Policy configures which traces are kept and how they are annotated.
type Policy struct {
	IncludeIdle      bool
	GILOnly          bool
	IncludeThreadIDs bool

	// IdleRules optionally classifies a trace as idle by its innermost function
	// when running inside Program.
	IdleRules *idle.Table
	Program   string
}

// Idle reports whether the trace counts as idle under the policy.
func (p Policy) Idle(trace *stack.StackTrace) bool {
	if !trace.Active {
		return true
	}
	if p.IdleRules == nil || len(trace.Frames) == 0 {
		return false
	}
	return p.IdleRules.IsIdle(trace.Frames[0].Name, p.Program)
}

// Apply returns the trace to aggregate and whether it should be kept.
// The input trace is never modified.
func (p Policy) Apply(trace *stack.StackTrace) (stack.StackTrace, bool) {
	if !p.IncludeIdle && p.Idle(trace) {
		return stack.StackTrace{}, false
	}
	if p.GILOnly && !trace.OwnsGIL {
		return stack.StackTrace{}, false
	}

	out := *trace
	if p.IncludeThreadIDs {
		frames := make([]stack.Frame, len(trace.Frames), len(trace.Frames)+1)
		copy(frames, trace.Frames)
		out.Frames = append(frames, stack.Frame{
			Name: fmt.Sprintf("thread %d", trace.ThreadID),
		})
	}
	return out, true
}
