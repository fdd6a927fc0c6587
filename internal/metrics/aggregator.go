// Package metrics computes the Commit Guru metric vector of each commit from
// its numstat lines and the history trackers.
package metrics

import (
	"database/sql"
	"math"

	"github.com/rohankatakam/commitguru/internal/history"
	"github.com/rohankatakam/commitguru/internal/models"
)

// Options configures an Aggregator
type Options struct {
	FixKeywords []string
	// WeightedREXP replaces the classic rexp (equal to exp) with the
	// recency-weighted experience.
	WeightedREXP bool
}

// Aggregator turns commits, fed oldest first, into metric vectors. It owns
// the trackers for one job and must not be shared between jobs.
type Aggregator struct {
	files        *history.FileTracker
	devs         *history.DeveloperTracker
	fix          *FixClassifier
	weightedREXP bool
}

// NewAggregator returns an aggregator with empty history
func NewAggregator(opts Options) *Aggregator {
	return &Aggregator{
		files:        history.NewFileTracker(),
		devs:         history.NewDeveloperTracker(),
		fix:          NewFixClassifier(opts.FixKeywords),
		weightedREXP: opts.WeightedREXP,
	}
}

// Aggregate updates the trackers with c and returns its metric vector
func (a *Aggregator) Aggregate(c *models.RawCommit) *models.CommitMetricVector {
	v := &models.CommitMetricVector{
		Hash:        c.Hash,
		AuthorName:  c.AuthorName,
		AuthorEmail: c.AuthorEmail,
		Timestamp:   c.Timestamp,
		Message:     c.Message,
		Parents:     c.Parents,
		Fix:         a.fix.IsFix(c.Message),
		IssueRefs:   IssueReferences(c.Message),
		Entropy:     valid(0),
		LT:          valid(0),
		Age:         valid(0),
		NUC:         valid(0),
		Exp:         valid(0),
		REXP:        valid(0),
		SEXP:        valid(0),
	}

	n := len(c.Files)
	if n == 0 {
		return v
	}

	var (
		subsystems = make(map[string]struct{})
		dirs       = make(map[string]struct{})
		authors    = make(map[string]struct{})
		modified   = make([]int, 0, n)

		sumLT, sumAge, sumNUC, sumExp, sumREXP, sumSEXP float64
	)

	author := c.Author()
	for _, f := range c.Files {
		subsystems[f.Subsystem] = struct{}{}
		dirs[f.Directory] = struct{}{}
		v.LA += f.Added
		v.LD += f.Deleted
		modified = append(modified, f.Added+f.Deleted)
		v.Files = append(v.Files, f.Path)

		fs := a.files.Update(f, author, c.Timestamp)
		ds := a.devs.Update(author, f.Subsystem, c.Timestamp)

		for _, prior := range fs.PriorAuthors {
			authors[prior] = struct{}{}
		}
		sumLT += float64(fs.PrevLineCount)
		sumAge += fs.DaysSinceLastChange
		sumNUC += float64(fs.PrevChangeCount)
		sumExp += float64(ds.PriorTotal)
		sumSEXP += float64(ds.PriorSubsystem)
		if a.weightedREXP {
			sumREXP += ds.RecentExperience
		} else {
			sumREXP += float64(ds.PriorTotal)
		}
	}

	count := float64(n)
	v.NF = n
	v.NS = len(subsystems)
	v.ND = len(dirs)
	v.NDev = len(authors)
	v.Entropy = finite(Entropy(modified))
	v.LT = finite(sumLT / count)
	v.Age = finite(sumAge / count)
	v.NUC = finite(sumNUC / count)
	v.Exp = finite(sumExp / count)
	v.REXP = finite(sumREXP / count)
	v.SEXP = finite(sumSEXP / count)

	return v
}

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

// finite maps NaN and infinities to the missing value
func finite(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return valid(f)
}
