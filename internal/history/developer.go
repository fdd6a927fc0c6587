package history

const secondsPerYear = 365 * secondsPerDay

type developerState struct {
	total      int
	subsystems map[string]int
	// touches per year bucket (timestamp / secondsPerYear)
	byYear map[int64]int
}

// DeveloperSnapshot is an author's experience before the current touch
type DeveloperSnapshot struct {
	PriorTotal     int
	PriorSubsystem int
	// RecentExperience weights each prior touch by 1/(years ago + 1)
	RecentExperience float64
}

// DeveloperTracker counts touches per author and per author+subsystem
type DeveloperTracker struct {
	devs map[string]*developerState
}

// NewDeveloperTracker returns an empty tracker
func NewDeveloperTracker() *DeveloperTracker {
	return &DeveloperTracker{devs: make(map[string]*developerState)}
}

// Update records one touch of subsystem by author and returns the prior counts
func (t *DeveloperTracker) Update(author, subsystem string, timestamp int64) DeveloperSnapshot {
	state, ok := t.devs[author]
	if !ok {
		state = &developerState{
			subsystems: make(map[string]int),
			byYear:     make(map[int64]int),
		}
		t.devs[author] = state
	}

	snap := DeveloperSnapshot{
		PriorTotal:       state.total,
		PriorSubsystem:   state.subsystems[subsystem],
		RecentExperience: state.recent(timestamp),
	}

	state.total++
	state.subsystems[subsystem]++
	state.byYear[timestamp/secondsPerYear]++

	return snap
}

// Experience returns the current totals for author
func (t *DeveloperTracker) Experience(author string) (total int, subsystems map[string]int) {
	state, ok := t.devs[author]
	if !ok {
		return 0, nil
	}
	out := make(map[string]int, len(state.subsystems))
	for k, v := range state.subsystems {
		out[k] = v
	}
	return state.total, out
}

func (s *developerState) recent(timestamp int64) float64 {
	now := timestamp / secondsPerYear
	var rexp float64
	for year, n := range s.byYear {
		age := now - year
		if age < 0 {
			age = 0
		}
		rexp += float64(n) / float64(age+1)
	}
	return rexp
}
