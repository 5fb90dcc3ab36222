package generation

import (
	"sync"
	"time"

	"golang.org/x/text/language"

	"comfyremote/internal/i18n"
	"comfyremote/internal/tracker"
)

// Status is the observable progress of one job, the value clients poll or
// subscribe to.
type Status struct {
	JobID         string    `json:"job_id"`
	State         string    `json:"state"`
	QueuePosition *int      `json:"queue_position,omitempty"`
	Progress      float64   `json:"progress"`
	StatusText    string    `json:"status_text"`
	CurrentStep   *int      `json:"current_step,omitempty"`
	TotalSteps    *int      `json:"total_steps,omitempty"`
	IsGenerating  bool      `json:"is_generating"`
	Result        *Result   `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s Status) clone() Status {
	if s.QueuePosition != nil {
		v := *s.QueuePosition
		s.QueuePosition = &v
	}
	if s.CurrentStep != nil {
		v := *s.CurrentStep
		s.CurrentStep = &v
	}
	if s.TotalSteps != nil {
		v := *s.TotalSteps
		s.TotalSteps = &v
	}
	if s.Result != nil {
		r := *s.Result
		r.ImageURLs = append([]string(nil), r.ImageURLs...)
		s.Result = &r
	}
	return s
}

// DefaultStatusCapacity bounds how many finished jobs are remembered.
const DefaultStatusCapacity = 256

// StatusStore holds the latest Status per job and fans updates out to
// subscribers. It implements tracker.Reporter.
type StatusStore struct {
	mu       sync.RWMutex
	statuses map[string]Status
	finished []string
	subs     map[string]map[chan Status]struct{}
	capacity int
	now      func() time.Time
}

func NewStatusStore(capacity int) *StatusStore {
	if capacity <= 0 {
		capacity = DefaultStatusCapacity
	}
	return &StatusStore{
		statuses: make(map[string]Status),
		subs:     make(map[string]map[chan Status]struct{}),
		capacity: capacity,
		now:      time.Now,
	}
}

// Begin records a freshly submitted job as queued with no known position.
func (s *StatusStore) Begin(jobID string, locale language.Tag) Status {
	st := Status{
		JobID:        jobID,
		State:        string(tracker.PhaseQueued),
		StatusText:   i18n.Text(locale, i18n.KeyQueued),
		IsGenerating: true,
		UpdatedAt:    s.now(),
	}
	s.mu.Lock()
	s.statuses[jobID] = st
	s.mu.Unlock()
	s.broadcast(st, false)
	return st
}

// Report applies a tracker transition.
func (s *StatusStore) Report(ev tracker.Event) {
	s.mu.Lock()
	st, ok := s.statuses[ev.JobID]
	if !ok {
		st = Status{JobID: ev.JobID, IsGenerating: true}
	}
	st.State = string(ev.State.Phase)
	st.QueuePosition = ev.State.Position
	st.Progress = ev.Percent
	st.StatusText = ev.StatusText
	st.CurrentStep = ev.CurrentStep
	st.TotalSteps = ev.TotalSteps
	st.UpdatedAt = ev.At
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	st = st.clone()
	s.statuses[ev.JobID] = st
	s.mu.Unlock()
	s.broadcast(st, false)
}

// Finish marks the job as no longer generating, attaches the result or
// error and closes all subscriptions for it.
func (s *StatusStore) Finish(jobID string, result *Result, err error) Status {
	s.mu.Lock()
	st, ok := s.statuses[jobID]
	if !ok {
		st = Status{JobID: jobID}
	}
	st.IsGenerating = false
	st.Result = result
	if result != nil && result.State != "" {
		st.State = result.State
	}
	if err != nil {
		st.Error = err.Error()
		if st.State == "" || !tracker.Phase(st.State).Terminal() {
			st.State = string(tracker.PhaseFailed)
		}
	}
	st.UpdatedAt = s.now()
	st = st.clone()
	s.statuses[jobID] = st
	s.finished = append(s.finished, jobID)
	for len(s.finished) > s.capacity {
		delete(s.statuses, s.finished[0])
		s.finished = s.finished[1:]
	}
	s.mu.Unlock()
	s.broadcast(st, true)
	return st
}

// Get returns the latest status of a job.
func (s *StatusStore) Get(jobID string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[jobID]
	if !ok {
		return Status{}, false
	}
	return st.clone(), true
}

// Subscribe returns a channel that always holds the most recent status of
// the job. The channel is closed once the job finishes or cancel is called.
func (s *StatusStore) Subscribe(jobID string) (<-chan Status, func()) {
	ch := make(chan Status, 1)
	s.mu.Lock()
	current, ok := s.statuses[jobID]
	if ok && !current.IsGenerating {
		s.mu.Unlock()
		ch <- current.clone()
		close(ch)
		return ch, func() {}
	}
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[chan Status]struct{})
	}
	s.subs[jobID][ch] = struct{}{}
	if ok {
		ch <- current.clone()
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, live := s.subs[jobID][ch]; live {
				delete(s.subs[jobID], ch)
				close(ch)
			}
		})
	}
}

func (s *StatusStore) broadcast(st Status, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[st.JobID] {
		select {
		case <-ch:
		default:
		}
		ch <- st.clone()
		if final {
			close(ch)
		}
	}
	if final {
		delete(s.subs, st.JobID)
	}
}

var _ tracker.Reporter = (*StatusStore)(nil)
