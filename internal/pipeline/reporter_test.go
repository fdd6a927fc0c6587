package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLogReporterLogsOncePerPercent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewLogReporter(logger)
	job := uuid.New()

	r.Progress(job, "compute-metrics", 10.2)
	r.Progress(job, "compute-metrics", 10.9)
	r.Progress(job, "compute-metrics", 11.0)
	r.Progress(uuid.New(), "compute-metrics", 11.0)
	r.Progress(job, "done", 100)

	entries := hook.AllEntries()
	assert.Len(t, entries, 4)
	assert.Equal(t, 100, entries[3].Data["percent"])
	assert.Equal(t, "done", entries[3].Data["step"])
	assert.Empty(t, r.last[job], "finished jobs are forgotten")
}
