package runner

import (
	"context"
	"strings"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/snapshot"
)

// Service exposes run state to the status API. A nil snapshot store
// (snapshots disabled) behaves as an empty one.
type Service struct {
	tracker *Tracker
	agg     *Aggregator
	snaps   *snapshot.Store
}

func NewService(tracker *Tracker, agg *Aggregator, snaps *snapshot.Store) *Service {
	return &Service{tracker: tracker, agg: agg, snaps: snaps}
}

func (s *Service) Status(ctx context.Context) (StatusInfo, error) {
	return s.tracker.Status(), nil
}

func (s *Service) Results(ctx context.Context) ([]portal.Result, error) {
	return s.agg.Results(), nil
}

func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	if s.snaps == nil {
		return nil, nil
	}
	return s.snaps.List()
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if s.snaps == nil {
		return snapshot.Meta{}, snapshot.ErrNotFound
	}
	return s.snaps.Get(strings.TrimSpace(id))
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.snaps == nil {
		return nil, "", snapshot.ErrNotFound
	}
	return s.snaps.ReadImage(strings.TrimSpace(id))
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if s.snaps == nil {
		return snapshot.ErrNotFound
	}
	return s.snaps.Delete(strings.TrimSpace(id))
}
