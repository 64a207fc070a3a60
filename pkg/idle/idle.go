// Package idle classifies functions as idle or background activity per program.
//
// Rules are read from a plain-text file, one rule per line:
//
//	<function> <program> <mode>
//
// where mode is X (exact program name), E (program name ends with) or C
// (program name contains). Suffix and substring matches are plain string
// tests with no separator awareness.
package idle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// MatchMode selects how a rule's program name is compared.
type MatchMode byte

const (
	Exact     MatchMode = 'X'
	Suffix    MatchMode = 'E'
	Substring MatchMode = 'C'
)

// Rule marks a function as idle when running inside a matching program.
type Rule struct {
	Program string
	Mode    MatchMode
}

func (r Rule) matches(program string) bool {
	switch r.Mode {
	case Exact:
		return program == r.Program
	case Suffix:
		return strings.HasSuffix(program, r.Program)
	case Substring:
		return strings.Contains(program, r.Program)
	}
	return false
}

// Table maps function names to their rules in file order.
// A Table is read-only once built; a nil *Table classifies nothing as idle.
type Table struct {
	rules map[string][]Rule
	count int
}

// IsIdle reports whether function is idle when running in program.
// The first matching rule wins.
func (t *Table) IsIdle(function, program string) bool {
	if t == nil {
		return false
	}
	for _, r := range t.rules[function] {
		if r.matches(program) {
			return true
		}
	}
	return false
}

// Len returns the number of rules in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.count
}

// Parse reads a rule table. Blank lines and lines starting with '#' are
// ignored; lines with an unknown mode are skipped. A line with fewer than
// three fields rejects the whole source.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{rules: make(map[string][]Rule)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected \"<function> <program> <mode>\", got %q", lineNo, line)
		}
		if len(fields[2]) != 1 {
			continue
		}
		mode := MatchMode(fields[2][0])
		switch mode {
		case Exact, Suffix, Substring:
		default:
			continue
		}
		t.rules[fields[0]] = append(t.rules[fields[0]], Rule{Program: fields[1], Mode: mode})
		t.count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a rule table from path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open idle list: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("cannot parse idle list %q: %w", path, err)
	}
	return t, nil
}

// Loader loads a rule table at most once. The first call to Load decides
// the table; later calls return it unchanged whatever path they pass.
type Loader struct {
	once   sync.Once
	table  *Table
	err    error
	logger *logrus.Logger
}

// NewLoader creates a run-once loader.
func NewLoader(logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Loader{logger: logger}
}

// Load returns the rule table, reading path on the first call only.
// An empty path yields an empty table. Load failures are logged and yield
// an empty table so sampling can proceed without idle rules.
func (l *Loader) Load(path string) *Table {
	l.once.Do(func() {
		l.table = &Table{rules: make(map[string][]Rule)}
		if path == "" {
			return
		}
		t, err := LoadFile(path)
		if err != nil {
			l.err = err
			l.logger.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("Load idle list failed, continuing without idle rules")
			return
		}
		l.table = t
		l.logger.WithFields(logrus.Fields{
			"path":  path,
			"rules": t.Len(),
		}).Info("Loaded idle list")
	})
	return l.table
}

// Err returns the error from the first Load, if any.
func (l *Loader) Err() error {
	return l.err
}
