// Package gitlog parses the sentinel-delimited git log --numstat transcript
// into RawCommit records.
package gitlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/errors"
	"github.com/rohankatakam/commitguru/internal/logging"
	"github.com/rohankatakam/commitguru/internal/models"
)

const maxEntrySize = 64 * 1024 * 1024

var startToken = []byte(StartSentinel)

// Reader yields commits from a transcript one at a time. It reads its input
// once and cannot be rewound; re-run git log to parse again.
type Reader struct {
	scanner  *bufio.Scanner
	logger   logrus.FieldLogger
	current  *models.RawCommit
	warnings []string
	err      error
	entries  int
}

// NewReader wraps r. A nil logger discards parse warnings from the log,
// they remain available through Warnings.
func NewReader(r io.Reader, logger logrus.FieldLogger) *Reader {
	if logger == nil {
		logger = logging.Discard()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)
	scanner.Split(splitEntries)
	return &Reader{
		scanner: scanner,
		logger:  logger.WithField("component", "gitlog"),
	}
}

// Next advances to the next well-formed commit
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.entries++
		commit, ok := r.parseEntry(r.scanner.Text())
		if !ok {
			continue
		}
		r.current = commit
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = errors.Wrap(err, errors.ErrorTypeParse, errors.SeverityHigh, "reading git log transcript")
	}
	r.current = nil
	return false
}

// Commit returns the commit produced by the last successful Next
func (r *Reader) Commit() *models.RawCommit {
	return r.current
}

// Err returns the first I/O error encountered
func (r *Reader) Err() error {
	return r.err
}

// Warnings returns all parse warnings so far
func (r *Reader) Warnings() []string {
	return r.warnings
}

func (r *Reader) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.logger.Warn(msg)
}

// ParseAll drains r and returns every well-formed commit
func ParseAll(r io.Reader, logger logrus.FieldLogger) ([]*models.RawCommit, []string, error) {
	reader := NewReader(r, logger)
	var commits []*models.RawCommit
	for reader.Next() {
		commits = append(commits, reader.Commit())
	}
	return commits, reader.Warnings(), reader.Err()
}

// splitEntries tokenizes on the start sentinel. Text before the first
// sentinel is dropped.
func splitEntries(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, startToken)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a possible partial sentinel at the tail
		if keep := len(data) - len(startToken); keep > 0 {
			return keep, nil, nil
		}
		return 0, nil, nil
	}

	body := start + len(startToken)
	if next := bytes.Index(data[body:], startToken); next >= 0 {
		end := body + next
		return end, data[body:end], nil
	}
	if atEOF {
		return len(data), data[body:], nil
	}
	return start, nil, nil
}

func (r *Reader) parseEntry(entry string) (*models.RawCommit, bool) {
	stop := strings.Index(entry, StopSentinel)
	if stop < 0 {
		r.warn("log entry %d: missing %s, skipping", r.entries, StopSentinel)
		return nil, false
	}

	fields := r.parseFields(entry[:stop])
	hash := strings.TrimSpace(fields[FieldCommitHash])
	if hash == "" {
		r.warn("log entry %d: missing %s field, skipping", r.entries, FieldCommitHash)
		return nil, false
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(fields[FieldAuthorUnixTime]), 10, 64)
	if err != nil {
		r.warn("commit %s: bad %s %q, skipping", hash, FieldAuthorUnixTime, fields[FieldAuthorUnixTime])
		return nil, false
	}

	commit := &models.RawCommit{
		Hash:           hash,
		Parents:        strings.Fields(fields[FieldParentHashes]),
		AuthorName:     strings.TrimSpace(fields[FieldAuthorName]),
		AuthorEmail:    strings.TrimSpace(fields[FieldAuthorEmail]),
		CommitterName:  strings.TrimSpace(fields[FieldCommitterName]),
		CommitterEmail: strings.TrimSpace(fields[FieldCommitterEmail]),
		AuthorDate:     strings.TrimSpace(fields[FieldAuthorDate]),
		Timestamp:      ts,
		Message:        strings.TrimSpace(fields[FieldCommitMessage]),
	}

	for _, line := range strings.Split(entry[stop+len(StopSentinel):], "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		change, err := ParseNumstat(line)
		if err != nil {
			r.warn("commit %s: %v", hash, err)
			continue
		}
		if change.renameWarning != "" {
			r.warn("commit %s: %s", hash, change.renameWarning)
		}
		commit.Files = append(commit.Files, change.FileChangeLine)
	}

	return commit, true
}

func (r *Reader) parseFields(header string) map[string]string {
	fields := make(map[string]string, len(formatFields))
	for _, token := range strings.Split(header, FieldEnd) {
		if strings.TrimSpace(token) == "" {
			continue
		}
		i := strings.Index(token, FieldDelimiter)
		if i < 0 {
			r.warn("log entry %d: field without %s", r.entries, FieldDelimiter)
			continue
		}
		fields[strings.TrimSpace(token[:i])] = token[i+len(FieldDelimiter):]
	}
	return fields
}

// NumstatLine is a parsed numstat line. renameWarning is set when a rename
// could not be normalized and the raw path was kept.
type NumstatLine struct {
	models.FileChangeLine
	renameWarning string
}

// ParseNumstat parses "added<TAB>deleted<TAB>path". "-" counts (binary
// files) map to zero.
func ParseNumstat(line string) (NumstatLine, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 3 {
		return NumstatLine{}, errors.ParseErrorf("numstat line %q: expected 3 columns, got %d", line, len(parts))
	}

	added, err := parseCount(parts[0])
	if err != nil {
		return NumstatLine{}, errors.ParseErrorf("numstat line %q: bad added count", line)
	}
	deleted, err := parseCount(parts[1])
	if err != nil {
		return NumstatLine{}, errors.ParseErrorf("numstat line %q: bad deleted count", line)
	}

	var out NumstatLine
	path, oldPath, renameErr := NormalizeRename(parts[2])
	if renameErr != nil {
		out.renameWarning = renameErr.Error()
	}

	out.FileChangeLine = models.FileChangeLine{
		Added:     added,
		Deleted:   deleted,
		Path:      path,
		OldPath:   oldPath,
		Subsystem: Subsystem(path),
		Directory: Directory(path),
	}
	return out, nil
}

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "-" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

// NormalizeRename resolves "old => new" and "pre/{old => new}/post" to the
// post-rename path. Whitespace around the arrow is optional. oldPath is
// empty when raw is not a rename. On a malformed rename the raw string is
// returned with an error.
func NormalizeRename(raw string) (path, oldPath string, err error) {
	const arrow = "=>"
	if !strings.Contains(raw, arrow) {
		return raw, "", nil
	}
	if strings.Count(raw, arrow) != 1 {
		return raw, "", errors.ParseErrorf("ambiguous rename %q", raw)
	}

	openAt := strings.Index(raw, "{")
	closeAt := strings.LastIndex(raw, "}")
	if openAt < 0 && closeAt < 0 {
		parts := strings.SplitN(raw, arrow, 2)
		oldPath, path = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if oldPath == "" || path == "" {
			return raw, "", errors.ParseErrorf("malformed rename %q", raw)
		}
		return path, oldPath, nil
	}

	arrowAt := strings.Index(raw, arrow)
	if openAt < 0 || closeAt < 0 || openAt > arrowAt || closeAt < arrowAt {
		return raw, "", errors.ParseErrorf("malformed rename %q", raw)
	}

	prefix, suffix := raw[:openAt], raw[closeAt+1:]
	inner := strings.SplitN(raw[openAt+1:closeAt], arrow, 2)
	oldPath = joinRenamed(prefix, strings.TrimSpace(inner[0]), suffix)
	path = joinRenamed(prefix, strings.TrimSpace(inner[1]), suffix)
	if path == "" {
		return raw, "", errors.ParseErrorf("malformed rename %q", raw)
	}
	return path, oldPath, nil
}

// joinRenamed glues the brace parts back together. An empty middle
// ("{ => sub}") would otherwise leave a doubled separator.
func joinRenamed(prefix, middle, suffix string) string {
	p := prefix + middle + suffix
	p = strings.ReplaceAll(p, "//", "/")
	return strings.TrimPrefix(p, "/")
}
