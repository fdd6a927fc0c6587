package metrics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var issueReference = regexp.MustCompile(`#(\d+)`)

// FixClassifier flags corrective commits by keyword
type FixClassifier struct {
	pattern *regexp.Regexp
}

// NewFixClassifier matches any word starting with one of keywords, case
// insensitive ("fix" matches "Fixes" and "fixed"). No keywords match nothing.
func NewFixClassifier(keywords []string) *FixClassifier {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	if len(quoted) == 0 {
		return &FixClassifier{}
	}
	return &FixClassifier{
		pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\w*`),
	}
}

// IsFix reports whether message looks like a defect fix
func (c *FixClassifier) IsFix(message string) bool {
	if c.pattern == nil {
		return false
	}
	return c.pattern.MatchString(message)
}

// IssueReferences returns the issue numbers referenced as #N in message,
// deduplicated and in ascending order.
func IssueReferences(message string) []int {
	matches := issueReference.FindAllStringSubmatch(message, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(matches))
	var refs []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		refs = append(refs, n)
	}
	sort.Ints(refs)
	return refs
}
