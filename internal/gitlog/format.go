package gitlog

import "strings"

// Sentinels of the custom pretty format. Changing any of them, or the field
// list below, breaks parsing of previously captured transcripts.
const (
	StartSentinel  = "CAS_READER_STARTPRETTY"
	StopSentinel   = "CAS_READER_STOPPRETTY"
	FieldDelimiter = "CAS_READER_PROP_DELIMITER"
	FieldEnd       = "CAS_READER_PROP_END"
)

// Field names as they appear in the transcript
const (
	FieldParentHashes   = "parent_hashes"
	FieldCommitHash     = "commit_hash"
	FieldAuthorName     = "author_name"
	FieldAuthorEmail    = "author_email"
	FieldCommitterName  = "committer_name"
	FieldCommitterEmail = "committer_email"
	FieldAuthorDate     = "author_date"
	FieldAuthorUnixTime = "author_date_unix_timestamp"
	FieldCommitMessage  = "commit_message"
)

var formatFields = []struct {
	name        string
	placeholder string
}{
	{FieldParentHashes, "%P"},
	{FieldCommitHash, "%H"},
	{FieldAuthorName, "%an"},
	{FieldAuthorEmail, "%ae"},
	{FieldCommitterName, "%cn"},
	{FieldCommitterEmail, "%ce"},
	{FieldAuthorDate, "%ad"},
	{FieldAuthorUnixTime, "%at"},
	{FieldCommitMessage, "%B"},
}

// LogFormat is the value passed to git log --pretty=format:
var LogFormat = buildFormat()

func buildFormat() string {
	var sb strings.Builder
	sb.WriteString(StartSentinel)
	for _, f := range formatFields {
		sb.WriteString(f.name)
		sb.WriteString(FieldDelimiter)
		sb.WriteString(f.placeholder)
		sb.WriteString(FieldEnd)
	}
	sb.WriteString(StopSentinel)
	return sb.String()
}

// LogArgs returns the git arguments producing a parseable transcript,
// oldest commit first. An empty revisionRange walks HEAD.
func LogArgs(revisionRange string) []string {
	args := []string{"log", "--pretty=format:" + LogFormat, "--numstat", "--reverse"}
	if revisionRange != "" {
		args = append(args, revisionRange)
	}
	return args
}

// Subsystem is the first path segment, or "root" for top-level files
func Subsystem(path string) string {
	i := strings.Index(path, "/")
	if i <= 0 {
		return "root"
	}
	return path[:i]
}

// Directory is everything but the last path segment, or "root"
func Directory(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "root"
	}
	return path[:i]
}
