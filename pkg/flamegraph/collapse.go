package flamegraph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// FoldedLines converts path totals to "{path} {count}" lines sorted by path.
func FoldedLines(stacks map[string]uint64) []string {
	keys := make([]string, 0, len(stacks))
	for k := range stacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %d", k, stacks[k]))
	}
	return lines
}

// ParseFolded reads "{path} {count}" lines. Paths may contain spaces, so the
// count is taken from after the last space. Repeated paths are summed and
// lines without a valid count are skipped.
func ParseFolded(r io.Reader) (map[string]uint64, error) {
	stacks := make(map[string]uint64)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			continue
		}
		count, err := strconv.ParseUint(line[idx+1:], 10, 64)
		if err != nil || count == 0 {
			continue
		}
		stacks[line[:idx]] += count
	}
	return stacks, scanner.Err()
}

func writeCollapsed(w io.Writer, stacks map[string]uint64) error {
	bw := bufio.NewWriter(w)
	for _, line := range FoldedLines(stacks) {
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
