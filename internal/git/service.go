// Package git is a synchronous wrapper over the git executable. Nothing in
// here retries; callers decide how to recover.
package git

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/commitguru/internal/logging"
)

// Expected absences. Match with errors.Is.
var (
	ErrUnknownRevision = stderrors.New("unknown revision")
	ErrPathNotFound    = stderrors.New("path does not exist at revision")
	ErrNoParent        = stderrors.New("commit has no parent")
	ErrNoBranch        = stderrors.New("repository has no branches")
)

// CommandError is a failed git invocation
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
	kind   error
}

func (e *CommandError) Error() string {
	sub := ""
	if len(e.Args) > 0 {
		sub = e.Args[0]
	}
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %v: %s", sub, e.Err, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", sub, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is matches the classified absence, if any
func (e *CommandError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// classify maps git's stderr to an expected-absence sentinel
func classify(stderr string) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "no such path"),
		strings.Contains(s, "does not exist in"),
		strings.Contains(s, "exists on disk, but not in"):
		return ErrPathNotFound
	case strings.Contains(s, "unknown revision"),
		strings.Contains(s, "bad revision"),
		strings.Contains(s, "needed a single revision"),
		strings.Contains(s, "not a valid object name"),
		strings.Contains(s, "invalid object name"),
		strings.Contains(s, "bad object"):
		return ErrUnknownRevision
	}
	return nil
}

// Service runs git against one working copy
type Service struct {
	dir    string
	binary string
	logger logrus.FieldLogger
}

// Option configures a Service
type Option func(*Service)

// WithBinary overrides the git executable
func WithBinary(binary string) Option {
	return func(s *Service) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService returns a Service for the working copy at dir. The directory
// does not need to exist until CloneOrUpdate runs.
func NewService(dir string, opts ...Option) *Service {
	s := &Service{
		dir:    dir,
		binary: "git",
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "git")
	return s
}

// Dir is the working copy path
func (s *Service) Dir() string {
	return s.dir
}

func (s *Service) command(ctx context.Context, dir string, args ...string) *exec.Cmd {
	full := append([]string{"-c", "core.quotepath=off"}, args...)
	cmd := exec.CommandContext(ctx, s.binary, full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	return cmd
}

// run executes git in the working copy and returns stdout
func (s *Service) run(ctx context.Context, args ...string) ([]byte, error) {
	return s.runIn(ctx, s.dir, args...)
}

func (s *Service) runIn(ctx context.Context, dir string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := s.command(ctx, dir, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.WithField("args", args).Debug("running git")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		return stdout.Bytes(), &CommandError{Args: args, Stderr: msg, Err: err, kind: classify(msg)}
	}
	return stdout.Bytes(), nil
}

func (s *Service) runString(ctx context.Context, args ...string) (string, error) {
	out, err := s.run(ctx, args...)
	return strings.TrimSpace(string(out)), err
}

// stream starts git and returns its stdout. Close waits for the process
// and reports its failure.
func (s *Service) stream(ctx context.Context, args ...string) (io.ReadCloser, error) {
	cmd := s.command(ctx, s.dir, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	s.logger.WithField("args", args).Debug("streaming git")
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Args: args, Err: err}
	}
	return &streamReader{ReadCloser: stdout, cmd: cmd, args: args, stderr: stderr}, nil
}

type streamReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	args   []string
	stderr *bytes.Buffer
}

func (r *streamReader) Close() error {
	// drain so git does not block on a full pipe
	io.Copy(io.Discard, r.ReadCloser)
	if err := r.cmd.Wait(); err != nil {
		msg := strings.TrimSpace(r.stderr.String())
		return &CommandError{Args: r.args, Stderr: msg, Err: err, kind: classify(msg)}
	}
	return nil
}

// isExitError reports a git run that started and exited non-zero
func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return stderrors.As(err, &exitErr)
}
