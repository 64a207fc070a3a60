//go:build linux

package procfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/danpilch/stackspy/pkg/stack"
)

// Process is an attached process whose thread stacks are read from /proc.
type Process struct {
	pid  int
	root string
	exe  string
}

// Attach verifies that pid exists and is visible through /proc.
func Attach(pid int) (*Process, error) {
	return attach("/proc", pid)
}

func attach(root string, pid int) (*Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	p := &Process{pid: pid, root: root}
	if _, err := os.Stat(p.path()); err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	exe, err := p.ExePath()
	if err != nil {
		return nil, err
	}
	p.exe = exe
	return p, nil
}

func (p *Process) path(elem ...string) string {
	return filepath.Join(append([]string{p.root, strconv.Itoa(p.pid)}, elem...)...)
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.pid
}

// ExePath returns the resolved path of the process executable.
func (p *Process) ExePath() (string, error) {
	exe, err := os.Readlink(p.path("exe"))
	if err != nil {
		return "", fmt.Errorf("cannot resolve executable of process %d: %w", p.pid, err)
	}
	return strings.TrimSuffix(exe, " (deleted)"), nil
}

// HasExited reports whether the process is gone.
func (p *Process) HasExited() bool {
	if err := unix.Kill(p.pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	_, err := os.Stat(p.path())
	return errors.Is(err, fs.ErrNotExist)
}

// Capture reads the kernel stack of every thread. Threads that exit during
// the walk are skipped; permission failures are returned so callers can
// tell them apart from transient errors.
func (p *Process) Capture() ([]stack.StackTrace, error) {
	entries, err := os.ReadDir(p.path("task"))
	if err != nil {
		return nil, fmt.Errorf("cannot list threads of process %d: %w", p.pid, err)
	}

	tids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })

	exeName := filepath.Base(p.exe)
	traces := make([]stack.StackTrace, 0, len(tids))
	for _, tid := range tids {
		trace, err := p.thread(tid, exeName)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
			continue
		}
		if err != nil {
			return nil, err
		}
		traces = append(traces, trace)
	}
	if len(traces) == 0 {
		return nil, fmt.Errorf("process %d has no readable threads", p.pid)
	}
	return traces, nil
}

func (p *Process) thread(tid uint64, exeName string) (stack.StackTrace, error) {
	dir := p.path("task", strconv.FormatUint(tid, 10))

	raw, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return stack.StackTrace{}, err
	}
	st, err := parseStat(strings.TrimSpace(string(raw)))
	if err != nil {
		return stack.StackTrace{}, err
	}

	f, err := os.Open(filepath.Join(dir, "stack"))
	if err != nil {
		return stack.StackTrace{}, fmt.Errorf("cannot read kernel stack of thread %d: %w", tid, err)
	}
	frames, err := parseKernelStack(f)
	f.Close()
	if err != nil {
		return stack.StackTrace{}, fmt.Errorf("cannot read kernel stack of thread %d: %w", tid, err)
	}

	osTid := tid
	return stack.StackTrace{
		ThreadID:   tid,
		OSThreadID: &osTid,
		ThreadName: st.comm,
		Active:     st.active(),
		Frames:     append(frames, stack.Frame{Name: st.comm, Filename: exeName}),
	}, nil
}
