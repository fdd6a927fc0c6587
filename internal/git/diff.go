package git

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DeletedLines diffs to against from with zero context and returns, per
// pre-image path accepted by filter, the old-side line numbers that were
// removed or modified. Added lines carry no old-side position and are ignored.
func (s *Service) DeletedLines(ctx context.Context, from, to string, filter SourceFilter) (map[string][]int, error) {
	out, err := s.run(ctx, "diff", "-U0", "-M", "--no-color", "--no-ext-diff",
		"--src-prefix=a/", "--dst-prefix=b/", from, to)
	if err != nil {
		return nil, err
	}
	return ParseDeletedLines(out, filter)
}

// ParseDeletedLines extracts removed old-side line numbers from a unified diff
func ParseDeletedLines(unified []byte, filter SourceFilter) (map[string][]int, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(bytes.NewReader(unified)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	result := make(map[string][]int)
	for _, fd := range fileDiffs {
		if fd.OrigName == "/dev/null" || fd.OrigName == "" {
			continue // new file, nothing existed before
		}
		path := strings.TrimPrefix(fd.OrigName, "a/")
		if !filter.Match(path) {
			continue
		}

		var lines []int
		for _, hunk := range fd.Hunks {
			lineNo := int(hunk.OrigStartLine)
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if line == "" {
					continue
				}
				switch line[0] {
				case '-':
					lines = append(lines, lineNo)
					lineNo++
				case ' ':
					lineNo++
				}
			}
		}
		if len(lines) > 0 {
			sort.Ints(lines)
			result[path] = lines
		}
	}
	return result, nil
}
