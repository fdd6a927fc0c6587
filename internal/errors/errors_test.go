package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeDatabase, SeverityCritical, "noop"))
}

func TestClassificationThroughWrapping(t *testing.T) {
	base := DatabaseError(stderrors.New("connection reset"), "upsert commits")
	wrapped := fmt.Errorf("step persist: %w", base)

	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, ErrorTypeDatabase, GetType(wrapped))
	assert.Equal(t, SeverityCritical, GetSeverity(wrapped))
	assert.True(t, stderrors.Is(wrapped, &Error{Type: ErrorTypeDatabase}))
	assert.False(t, stderrors.Is(wrapped, &Error{Type: ErrorTypeVCS}))
}

func TestParseErrorsAreNotFatal(t *testing.T) {
	err := ParseErrorf("bad numstat line %q", "x\ty")
	assert.False(t, IsFatal(err))
	assert.Equal(t, "PARSE", err.Type.String())
}

func TestPlainErrors(t *testing.T) {
	err := stderrors.New("plain")
	assert.False(t, IsFatal(err))
	assert.Equal(t, ErrorTypeInternal, GetType(err))
	assert.Equal(t, SeverityMedium, GetSeverity(err))
	assert.Equal(t, SeverityLow, GetSeverity(nil))
}

func TestDetailedString(t *testing.T) {
	err := VCSErrorf(stderrors.New("exit status 128"), "git fetch").WithContext("repo", "demo")
	s := err.DetailedString()
	assert.Contains(t, s, "[HIGH] [VCS] git fetch")
	assert.Contains(t, s, "repo: demo")
	assert.Contains(t, s, "Caused by: exit status 128")
}
