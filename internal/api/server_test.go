package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/relay"
	"github.com/opextools/portal_agent/internal/runner"
	"github.com/opextools/portal_agent/internal/snapshot"
)

type stubService struct {
	status    runner.StatusInfo
	statusErr error
	results   []portal.Result
	snaps     []snapshot.Meta
	snapErr   error
	image     []byte
	format    string
	deleted   []string
}

func (s *stubService) Status(ctx context.Context) (runner.StatusInfo, error) {
	return s.status, s.statusErr
}

func (s *stubService) Results(ctx context.Context) ([]portal.Result, error) {
	return s.results, nil
}

func (s *stubService) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	return s.snaps, s.snapErr
}

func (s *stubService) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if s.snapErr != nil {
		return snapshot.Meta{}, s.snapErr
	}
	return s.snaps[0], nil
}

func (s *stubService) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.snapErr != nil {
		return nil, "", s.snapErr
	}
	return s.image, s.format, nil
}

func (s *stubService) DeleteSnapshot(ctx context.Context, id string) error {
	if s.snapErr != nil {
		return s.snapErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func serve(t *testing.T, svc Service, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewServer(svc, relay.NewBroker())
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(t, &stubService{}, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("health status = %q, want ok", body.Status)
	}
}

func TestGetStatus(t *testing.T) {
	svc := &stubService{status: runner.StatusInfo{
		State:     runner.StateProcessing,
		Total:     10,
		Processed: 4,
		Succeeded: 3,
		Failed:    1,
		LastCPF:   "12345678901",
	}}
	w := serve(t, svc, http.MethodGet, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", w.Code, http.StatusOK, w.Body.String())
	}
	var info runner.StatusInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if info.State != runner.StateProcessing || info.Processed != 4 || info.LastCPF != "12345678901" {
		t.Fatalf("unexpected status payload: %+v", info)
	}
}

func TestStatusCodedErrorMapsToBadRequest(t *testing.T) {
	svc := &stubService{statusErr: portal.NewError(portal.CodeConfiguration, "selectors file missing", nil)}
	w := serve(t, svc, http.MethodGet, "/api/v1/status")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListResultsEmpty(t *testing.T) {
	w := serve(t, &stubService{}, http.MethodGet, "/api/v1/results")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Results []portal.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode results body: %v", err)
	}
	if body.Results == nil || len(body.Results) != 0 {
		t.Fatalf("results = %#v, want empty non-nil slice", body.Results)
	}
}

func TestListResults(t *testing.T) {
	parcelas := 12
	saldo := 950.75
	svc := &stubService{results: []portal.Result{
		{CPF: "12345678901", Status: portal.StatusOK, Mensagem: portal.MessageOK, ParcelasPagas: &parcelas, Saldo: &saldo},
		{CPF: "22233344455", Status: portal.StatusError, Mensagem: "erro: TIMEOUT"},
	}}
	w := serve(t, svc, http.MethodGet, "/api/v1/results")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Results []portal.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode results body: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(body.Results))
	}
	if body.Results[0].ParcelasPagas == nil || *body.Results[0].ParcelasPagas != 12 {
		t.Fatalf("first result parcelas = %v, want 12", body.Results[0].ParcelasPagas)
	}
	if body.Results[1].Saldo != nil {
		t.Fatalf("failed result saldo = %v, want nil", body.Results[1].Saldo)
	}
}

func TestListSnapshots(t *testing.T) {
	svc := &stubService{snaps: []snapshot.Meta{
		{ID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", Kind: snapshot.KindRecordFailure, CPF: "12345678901", Format: "png"},
	}}
	w := serve(t, svc, http.MethodGet, "/api/v1/snapshots")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Snapshots []snapshot.Meta `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode snapshots body: %v", err)
	}
	if len(body.Snapshots) != 1 || body.Snapshots[0].Kind != snapshot.KindRecordFailure {
		t.Fatalf("unexpected snapshots payload: %+v", body.Snapshots)
	}
}

func TestSnapshotNotFoundMapsTo404(t *testing.T) {
	svc := &stubService{snapErr: snapshot.ErrNotFound}
	w := serve(t, svc, http.MethodGet, "/api/v1/snapshots/1b4e28ba-2fa1-11d2-883f-0016d3cca427/metadata")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSnapshotImageContentType(t *testing.T) {
	svc := &stubService{image: []byte{0x89, 'P', 'N', 'G'}, format: "png"}
	w := serve(t, svc, http.MethodGet, "/api/v1/snapshots/1b4e28ba-2fa1-11d2-883f-0016d3cca427/image")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("image body mismatch: %v", w.Body.Bytes())
	}
}

func TestDeleteSnapshot(t *testing.T) {
	svc := &stubService{}
	w := serve(t, svc, http.MethodDelete, "/api/v1/snapshots/1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "1b4e28ba-2fa1-11d2-883f-0016d3cca427" {
		t.Fatalf("deleted ids = %v", svc.deleted)
	}
}

func TestEventsRouteStreamsSSE(t *testing.T) {
	h := NewServer(&stubService{}, relay.NewBroker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}
}
