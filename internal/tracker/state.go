package tracker

import (
	"strconv"
	"time"
)

// Phase is the inferred lifecycle phase of a tracked job.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhasePreparing Phase = "preparing"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseTimedOut  Phase = "timed_out"
)

// Terminal reports whether no further transitions may happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseTimedOut:
		return true
	default:
		return false
	}
}

// JobState is the single source of truth for a job's inferred status.
// Position is the 1-based pending position and is only set while queued.
type JobState struct {
	Phase    Phase
	Position *int
}

// Queued returns a queued state, with an unknown position when position <= 0.
func Queued(position int) JobState {
	if position <= 0 {
		return JobState{Phase: PhaseQueued}
	}
	return JobState{Phase: PhaseQueued, Position: &position}
}

// Equal compares phase and queue position.
func (s JobState) Equal(other JobState) bool {
	if s.Phase != other.Phase {
		return false
	}
	switch {
	case s.Position == nil && other.Position == nil:
		return true
	case s.Position == nil || other.Position == nil:
		return false
	default:
		return *s.Position == *other.Position
	}
}

func (s JobState) String() string {
	if s.Phase == PhaseQueued && s.Position != nil {
		return string(s.Phase) + "(" + strconv.Itoa(*s.Position) + ")"
	}
	return string(s.Phase)
}

// Job is the tracker-owned record of one submission. Observers only ever
// receive copies.
type Job struct {
	ID                string
	SubmittedAt       time.Time
	State             JobState
	Attempts          int
	ConsecutiveErrors int
	PreparingSince    *time.Time
}

func (j Job) clone() Job {
	out := j
	if j.State.Position != nil {
		pos := *j.State.Position
		out.State.Position = &pos
	}
	if j.PreparingSince != nil {
		since := *j.PreparingSince
		out.PreparingSince = &since
	}
	return out
}
