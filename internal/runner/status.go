package runner

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
)

// Run states.
const (
	StateStarting      = "starting"
	StateLogin         = "login"
	StateNavigation    = "navigation"
	StateProcessing    = "processing"
	StateConsolidating = "consolidating"
	StateDone          = "done"
	StateFailed        = "failed"
)

// StatusInfo is a point-in-time view of the run.
type StatusInfo struct {
	RunID         string    `json:"run_id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	ElapsedSec    float64   `json:"elapsed_sec"`
	Total         int       `json:"total"`
	Processed     int       `json:"processed"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	LastCPF       string    `json:"last_cpf,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorCode string    `json:"last_error_code,omitempty"`
}

// Tracker holds run state for the status API and the status SSE feed.
// A nil broker disables publication.
type Tracker struct {
	mu      sync.Mutex
	started time.Time
	info    StatusInfo
	broker  *relay.Broker
}

// NewTracker creates a tracker in the starting state with a fresh run ID.
func NewTracker(broker *relay.Broker) *Tracker {
	now := time.Now()
	return &Tracker{
		started: now,
		info:    StatusInfo{RunID: uuid.New().String(), State: StateStarting, StartedAt: now},
		broker:  broker,
	}
}

// SetState moves the run to a new state.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	t.info.State = state
	info := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(info)
}

// SetTotal records how many records the batch will process.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	t.info.Total = total
	t.mu.Unlock()
}

// RecordResult folds one processed record into the counters.
func (t *Tracker) RecordResult(res portal.Result) {
	t.mu.Lock()
	t.info.Processed++
	t.info.LastCPF = res.CPF
	if res.OK() {
		t.info.Succeeded++
	} else {
		t.info.Failed++
		t.info.LastError = res.Mensagem
	}
	info := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(info)
}

// Fail marks the run as failed with its terminal error.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	t.info.State = StateFailed
	t.info.LastError = err.Error()
	var coded *portal.CodedError
	if errors.As(err, &coded) {
		t.info.LastErrorCode = coded.Code
	}
	info := t.snapshotLocked()
	t.mu.Unlock()
	t.publish(info)
}

// Status returns a copy of the current run state.
func (t *Tracker) Status() StatusInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() StatusInfo {
	info := t.info
	info.ElapsedSec = time.Since(t.started).Seconds()
	return info
}

func (t *Tracker) publish(info StatusInfo) {
	if t.broker == nil {
		return
	}
	t.broker.PublishJSON(relay.FeedStatus, info)
}
