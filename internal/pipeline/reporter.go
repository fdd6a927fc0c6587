package pipeline

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Reporter receives job progress. Percentages never decrease within a job.
type Reporter interface {
	Progress(jobID uuid.UUID, step string, percent float64)
}

// LogReporter logs progress at most once per whole percent
type LogReporter struct {
	logger logrus.FieldLogger

	mu   sync.Mutex
	last map[uuid.UUID]int
}

// NewLogReporter creates a LogReporter
func NewLogReporter(logger logrus.FieldLogger) *LogReporter {
	return &LogReporter{logger: logger, last: make(map[uuid.UUID]int)}
}

func (r *LogReporter) Progress(jobID uuid.UUID, step string, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	whole := int(percent)
	if prev, ok := r.last[jobID]; ok && prev == whole {
		return
	}
	r.last[jobID] = whole
	if whole >= 100 {
		delete(r.last, jobID)
	}

	r.logger.WithFields(logrus.Fields{
		"job_id":  jobID.String(),
		"step":    step,
		"percent": whole,
	}).Info("progress")
}

// progressTracker turns step and sub-step positions into a monotonic
// percentage
type progressTracker struct {
	jobID    uuid.UUID
	reporter Reporter
	total    int
	last     float64
}

func (p *progressTracker) report(step string, index, done, total int) {
	if p.reporter == nil || p.total == 0 {
		return
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(done) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
	}
	percent := (float64(index) + fraction) / float64(p.total) * 100
	if percent < p.last {
		return
	}
	p.last = percent
	p.reporter.Progress(p.jobID, step, percent)
}
