package runner

import (
	"sync"

	"github.com/opextools/portal_agent/internal/portal"
	"github.com/opextools/portal_agent/internal/storage"
)

// Aggregator collects record results for consolidation and the results
// API.
type Aggregator struct {
	mu      sync.Mutex
	results []portal.Result
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Collect appends one record result.
func (a *Aggregator) Collect(res portal.Result) {
	a.mu.Lock()
	a.results = append(a.results, res)
	a.mu.Unlock()
}

// Results returns a copy of everything collected so far, in processing
// order.
func (a *Aggregator) Results() []portal.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]portal.Result, len(a.results))
	copy(out, a.results)
	return out
}

// Counts returns how many collected results succeeded and failed.
func (a *Aggregator) Counts() (succeeded, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, res := range a.results {
		if res.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Finalize writes the consolidated workbook at path. When nothing was
// collected no file is written and written is false; the caller surfaces
// the warning.
func (a *Aggregator) Finalize(path string) (written bool, err error) {
	results := a.Results()
	if len(results) == 0 {
		return false, nil
	}
	if err := storage.WriteWorkbook(path, results); err != nil {
		return false, err
	}
	return true, nil
}
