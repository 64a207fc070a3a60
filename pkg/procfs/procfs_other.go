//go:build !linux

package procfs

import (
	"fmt"
	"runtime"

	"github.com/danpilch/stackspy/pkg/stack"
)

// Process is unavailable outside Linux.
type Process struct{}

// Attach always fails outside Linux.
func Attach(pid int) (*Process, error) {
	return nil, fmt.Errorf("stack capture through /proc is not supported on %s", runtime.GOOS)
}

// Pid returns 0.
func (p *Process) Pid() int { return 0 }

// ExePath always fails outside Linux.
func (p *Process) ExePath() (string, error) {
	return "", fmt.Errorf("not supported on %s", runtime.GOOS)
}

// HasExited returns true.
func (p *Process) HasExited() bool { return true }

// Capture always fails outside Linux.
func (p *Process) Capture() ([]stack.StackTrace, error) {
	return nil, fmt.Errorf("not supported on %s", runtime.GOOS)
}
