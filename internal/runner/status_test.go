package runner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
)

func TestNewProgress(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)

	p := NewProgress(1, 4, start)
	if p.Percent != 25.0 {
		t.Fatalf("Percent = %v; want 25.0", p.Percent)
	}
	if p.Index != 1 || p.Total != 4 {
		t.Fatalf("Progress = %+v; want index 1 of 4", p)
	}
	if p.ElapsedSec <= 0 {
		t.Fatalf("ElapsedSec = %v; want positive", p.ElapsedSec)
	}

	if p := NewProgress(0, 0, time.Now()); p.Percent != 0 {
		t.Fatalf("Percent for empty total = %v; want 0", p.Percent)
	}
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetTotal(3)
	tr.SetState(StateProcessing)

	parcelas := 5
	saldo := 100.0
	tr.RecordResult(portal.Result{CPF: "111", Status: portal.StatusOK, Mensagem: portal.MessageOK, ParcelasPagas: &parcelas, Saldo: &saldo})
	tr.RecordResult(portal.Result{CPF: "222", Status: portal.StatusError, Mensagem: "erro: TIMEOUT"})

	info := tr.Status()
	if info.State != StateProcessing {
		t.Fatalf("State = %q; want %q", info.State, StateProcessing)
	}
	if info.Total != 3 || info.Processed != 2 || info.Succeeded != 1 || info.Failed != 1 {
		t.Fatalf("counters = %+v; want 2 processed, 1/1 split", info)
	}
	if info.LastCPF != "222" || info.LastError != "erro: TIMEOUT" {
		t.Fatalf("last record = (%q, %q); want failed 222", info.LastCPF, info.LastError)
	}
	if info.StartedAt.IsZero() {
		t.Fatal("StartedAt not set")
	}
	if info.RunID == "" {
		t.Fatal("RunID not set")
	}
}

func TestTrackerFailRecordsCode(t *testing.T) {
	tr := NewTracker(nil)
	tr.Fail(portal.NewError(portal.CodeLogin, "login form did not load", nil))

	info := tr.Status()
	if info.State != StateFailed {
		t.Fatalf("State = %q; want %q", info.State, StateFailed)
	}
	if info.LastErrorCode != portal.CodeLogin {
		t.Fatalf("LastErrorCode = %q; want %q", info.LastErrorCode, portal.CodeLogin)
	}
}

func TestTrackerPublishesStatusFeed(t *testing.T) {
	broker := relay.NewBroker()
	id, ch := broker.Subscribe(relay.FeedStatus)
	defer broker.Unsubscribe(id)

	tr := NewTracker(broker)
	tr.SetState(StateLogin)

	select {
	case evt := <-ch:
		var info StatusInfo
		if err := json.Unmarshal([]byte(evt.Payload), &info); err != nil {
			t.Fatalf("status payload is not JSON: %v", err)
		}
		if info.State != StateLogin {
			t.Fatalf("published state = %q; want %q", info.State, StateLogin)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event published")
	}
}
