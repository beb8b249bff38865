package runner

import "time"

// Progress describes batch completion for logs and the progress feed.
// Index counts processed records; skipped empty rows are excluded from
// both Index and Total.
type Progress struct {
	Index      int     `json:"index"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
	ElapsedSec float64 `json:"elapsed_sec"`
}

// NewProgress computes progress after Index of Total records.
func NewProgress(index, total int, start time.Time) Progress {
	p := Progress{
		Index:      index,
		Total:      total,
		ElapsedSec: time.Since(start).Seconds(),
	}
	if total > 0 {
		p.Percent = float64(index) / float64(total) * 100
	}
	return p
}
