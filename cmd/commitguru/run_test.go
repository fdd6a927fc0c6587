package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/commitguru/internal/git"
	"github.com/rohankatakam/commitguru/internal/pipeline"
)

func TestBuildJobs(t *testing.T) {
	t.Run("one job per url", func(t *testing.T) {
		jobs, err := buildJobs(runOptions{
			repoURLs: []string{"https://github.com/acme/api.git", "git@github.com:acme/web.git"},
			mode:     "full-history",
		}, "/ws")
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		assert.Equal(t, "acme/api", jobs[0].RepoID)
		assert.Equal(t, "acme/web", jobs[1].RepoID)
		assert.Equal(t, filepath.Join("/ws", git.RepoDirName("https://github.com/acme/api.git")), jobs[0].WorkDir)
		assert.NotEqual(t, jobs[0].WorkDir, jobs[1].WorkDir)
		assert.Equal(t, pipeline.ModeFullHistory, jobs[0].Mode)
	})

	t.Run("single commit", func(t *testing.T) {
		jobs, err := buildJobs(runOptions{
			repoURLs:  []string{"/srv/repos/calc.git"},
			repoID:    "calc",
			mode:      "single",
			target:    "abc123",
			issueRepo: "acme/calc",
		}, "/ws")
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		job := jobs[0]
		assert.Equal(t, "calc", job.RepoID)
		assert.Equal(t, pipeline.ModeSingleCommit, job.Mode)
		assert.Equal(t, "abc123", job.TargetHash)
		assert.Equal(t, "acme", job.IssueOwner)
		assert.Equal(t, "calc", job.IssueRepo)
	})

	t.Run("existing working copy", func(t *testing.T) {
		dir := t.TempDir()
		jobs, err := buildJobs(runOptions{workDir: dir, mode: "full-history"}, "/ws")
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Empty(t, jobs[0].RepoURL)
		assert.Equal(t, dir, jobs[0].WorkDir)
		assert.Equal(t, filepath.Base(dir), jobs[0].RepoID)
	})

	invalid := []struct {
		name string
		opts runOptions
	}{
		{"unknown mode", runOptions{repoURLs: []string{"u"}, mode: "weekly"}},
		{"single without target", runOptions{repoURLs: []string{"u"}, mode: "single-commit"}},
		{"target in full mode", runOptions{repoURLs: []string{"u"}, mode: "full-history", target: "abc"}},
		{"nothing to mine", runOptions{mode: "full-history"}},
		{"url and workdir", runOptions{repoURLs: []string{"u"}, workDir: "/tmp", mode: "full-history"}},
		{"shared repo id", runOptions{repoURLs: []string{"a", "b"}, repoID: "x", mode: "full-history"}},
		{"duplicate repository", runOptions{repoURLs: []string{"https://github.com/a/b", "https://github.com/a/b.git"}, mode: "full-history"}},
		{"bad issue repo", runOptions{repoURLs: []string{"u"}, issueRepo: "acme", mode: "full-history"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildJobs(tt.opts, "/ws")
			assert.Error(t, err)
		})
	}
}

func TestDefaultRepoID(t *testing.T) {
	assert.Equal(t, "acme/api", defaultRepoID("https://github.com/acme/api.git"))
	assert.Equal(t, "calc", defaultRepoID("/srv/repos/calc.git"))
	assert.Equal(t, "calc", defaultRepoID("/srv/repos/calc/"))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	failed := printSummary(&buf, []*pipeline.Result{
		{RepoID: "acme/api", Succeeded: true, Commits: 12345, Warnings: []string{"w"}},
		{RepoID: "acme/web", FailedStep: "prepare-repository", Error: "clone failed"},
		nil,
	})

	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "12,345 commits")
	assert.Contains(t, buf.String(), "1 warnings")
	assert.Contains(t, buf.String(), "acme/web failed at prepare-repository: clone failed")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.yaml")
	id := uuid.New()
	require.NoError(t, writeReport(path, []*pipeline.Result{
		{JobID: id, RepoID: "acme/api", Mode: "full-history", Succeeded: true, Commits: 3, Duration: 1500 * time.Millisecond},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		Jobs []map[string]interface{} `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded.Jobs, 1)
	assert.Equal(t, "acme/api", decoded.Jobs[0]["repo_id"])
	assert.Equal(t, 3, decoded.Jobs[0]["commits"])
	assert.Equal(t, "1.5s", decoded.Jobs[0]["duration"])
}
