package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
)

// Blame returns the distinct commits that last touched the given 1-based
// lines of path, as of rev. A path missing at rev yields ErrPathNotFound.
func (s *Service) Blame(ctx context.Context, rev, path string, lines []int) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	args := []string{"blame", "--porcelain"}
	for _, r := range lineRanges(lines) {
		args = append(args, "-L", fmt.Sprintf("%d,%d", r[0], r[1]))
	}
	args = append(args, rev, "--", path)

	out, err := s.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return ParseBlamePorcelain(out), nil
}

// ParseBlamePorcelain returns the commit hashes of a --porcelain blame, in
// order of first appearance.
func ParseBlamePorcelain(out []byte) []string {
	seen := make(map[string]struct{})
	var hashes []string

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") {
			continue // source content
		}
		fields := strings.Fields(line)
		if len(fields) < 3 || !isObjectName(fields[0]) {
			continue
		}
		if _, ok := seen[fields[0]]; ok {
			continue
		}
		seen[fields[0]] = struct{}{}
		hashes = append(hashes, fields[0])
	}
	return hashes
}

func isObjectName(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// lineRanges collapses line numbers into inclusive [start, end] ranges
func lineRanges(lines []int) [][2]int {
	sorted := append([]int(nil), lines...)
	sort.Ints(sorted)

	var ranges [][2]int
	for _, l := range sorted {
		if l <= 0 {
			continue
		}
		if n := len(ranges); n > 0 && l <= ranges[n-1][1]+1 {
			if l > ranges[n-1][1] {
				ranges[n-1][1] = l
			}
			continue
		}
		ranges = append(ranges, [2]int{l, l})
	}
	return ranges
}
