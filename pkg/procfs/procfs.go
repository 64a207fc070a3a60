// Package procfs captures per-thread kernel stacks of a running process
// from the /proc filesystem.
package procfs

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/danpilch/stackspy/pkg/stack"
)

// KernelFile is the filename reported for kernel frames.
const KernelFile = "[kernel]"

// threadStat is the subset of /proc/<pid>/task/<tid>/stat that is used.
type threadStat struct {
	comm  string
	state byte
}

// parseStat parses a stat line. The comm field is parenthesised and may
// itself contain spaces and parentheses, so the state is read after the
// last closing parenthesis.
func parseStat(line string) (threadStat, error) {
	open := strings.IndexByte(line, '(')
	closing := strings.LastIndexByte(line, ')')
	if open < 0 || closing < open {
		return threadStat{}, fmt.Errorf("malformed stat line %q", line)
	}
	rest := strings.Fields(line[closing+1:])
	if len(rest) == 0 || len(rest[0]) != 1 {
		return threadStat{}, fmt.Errorf("malformed stat line %q: missing state", line)
	}
	return threadStat{comm: line[open+1 : closing], state: rest[0][0]}, nil
}

// active reports whether the thread is running or runnable.
func (s threadStat) active() bool {
	return s.state == 'R'
}

// parseKernelStack reads /proc/<pid>/task/<tid>/stack content, innermost frame first.
// Lines look like "[<0>] do_nanosleep+0x6e/0xa0".
func parseKernelStack(r io.Reader) ([]stack.Frame, error) {
	var frames []stack.Frame
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "] "); idx >= 0 {
			line = line[idx+2:]
		}
		// Remove offset like "+0x6e/0xa0"
		if idx := strings.Index(line, "+"); idx > 0 {
			line = line[:idx]
		}
		if line == "" || line == "0xffffffffffffffff" {
			continue
		}
		frames = append(frames, stack.Frame{Name: line, Filename: KernelFile})
	}
	return frames, scanner.Err()
}
