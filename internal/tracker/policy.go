package tracker

import (
	"time"

	"comfyremote/internal/comfy"
)

// Signal names the kind of evidence the tracker hands to a CompletionPolicy.
type Signal string

const (
	// SignalQueueDrained: the job is absent from an otherwise empty queue.
	SignalQueueDrained Signal = "queue_drained"
	// SignalErrorsExhausted: consecutive transport errors passed the threshold.
	SignalErrorsExhausted Signal = "errors_exhausted"
	// SignalCorroborated: other jobs run while this one is absent from both lists.
	SignalCorroborated Signal = "corroborated"
	// SignalHistoryRecord: a forced re-check read the job's result record.
	// Record is nil when the service has none yet.
	SignalHistoryRecord Signal = "history_record"
)

// Evidence is what the tracker observed when asking for a verdict.
type Evidence struct {
	Signal  Signal
	Job     Job
	Elapsed time.Duration
	Record  *comfy.HistoryEntry
}

// CompletionPolicy decides whether evidence ends tracking. It returns the
// terminal phase to enter, or "" to keep polling. Only PhaseCompleted and
// PhaseFailed are honoured.
type CompletionPolicy interface {
	Name() string
	Decide(Evidence) Phase
}

// HeuristicPolicy treats disappearance from the queue as success. The
// service has no durable completion event, so absence after a grace period,
// sustained inability to read the queue, and absence while other work runs
// all count as completed. A history record with an error status is the
// only evidence that yields failure.
type HeuristicPolicy struct {
	Grace time.Duration
}

// DefaultCompletionGrace is how long after submission an empty queue is
// trusted.
const DefaultCompletionGrace = 3 * time.Second

func NewHeuristicPolicy(grace time.Duration) HeuristicPolicy {
	if grace < 0 {
		grace = DefaultCompletionGrace
	}
	return HeuristicPolicy{Grace: grace}
}

func (HeuristicPolicy) Name() string { return "queue-heuristic" }

func (p HeuristicPolicy) Decide(ev Evidence) Phase {
	switch ev.Signal {
	case SignalQueueDrained:
		if ev.Elapsed > p.Grace {
			return PhaseCompleted
		}
	case SignalErrorsExhausted, SignalCorroborated:
		return PhaseCompleted
	case SignalHistoryRecord:
		if ev.Record == nil {
			return ""
		}
		if ev.Record.Failed() {
			return PhaseFailed
		}
		return PhaseCompleted
	}
	return ""
}

var _ CompletionPolicy = HeuristicPolicy{}
