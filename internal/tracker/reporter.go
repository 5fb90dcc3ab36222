package tracker

import "time"

// Sentinel step counters published with the completed event.
const (
	DoneStep       = 30
	DoneTotalSteps = 30
)

// Event describes one state transition.
type Event struct {
	JobID       string
	State       JobState
	Percent     float64
	StatusText  string
	CurrentStep *int
	TotalSteps  *int
	At          time.Time
}

// Reporter observes state transitions. Implementations must not block for
// long; the tracker calls them synchronously from its loop.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

// Reporters fans one event out to several observers in order.
type Reporters []Reporter

func (rs Reporters) Report(ev Event) {
	for _, r := range rs {
		if r != nil {
			r.Report(ev)
		}
	}
}

func percentFor(phase Phase, previous float64) float64 {
	switch phase {
	case PhaseQueued:
		return 0
	case PhasePreparing:
		return 10
	case PhaseRunning:
		return 50
	case PhaseCompleted:
		return 100
	default:
		return previous
	}
}
