// Package stats aggregates startup reports across runs within one process
// lifetime and answers latency quantiles for the debug surface.
package stats

import (
	"sync"

	"github.com/influxdata/tdigest"
	"github.com/playsight/go-playsight/startup"
)

// StartupStats keeps a digest of first-frame latencies. Safe for use from
// the reporting path and the API surface concurrently.
type StartupStats struct {
	mu sync.Mutex

	firstFrame *tdigest.TDigest
	samples    int
	runs       int
	adRuns     int
}

// Summary is the aggregate view returned to the API.
type Summary struct {
	Runs   int `json:"runs"`
	AdRuns int `json:"ad_runs"`

	FirstFrameP50 float64 `json:"first_frame_p50"`
	FirstFrameP95 float64 `json:"first_frame_p95"`
	FirstFrameP99 float64 `json:"first_frame_p99"`
}

func New() *StartupStats {
	return &StartupStats{firstFrame: tdigest.NewWithCompression(100)}
}

// Observe feeds one run's report into the digest. Reports without a
// first-frame milestone (e.g. abandoned runs) are counted but not sampled.
func (s *StartupStats) Observe(report startup.Report, isAdRun bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	if isAdRun {
		s.adRuns++
	}

	if offset, ok := report[startup.MilestoneFirstFrame.Code()]; ok {
		s.firstFrame.Add(float64(offset), 1)
		s.samples++
	}
}

func (s *StartupStats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	// an empty digest answers NaN, which JSON cannot encode
	if s.samples == 0 {
		return Summary{Runs: s.runs, AdRuns: s.adRuns}
	}

	return Summary{
		Runs:          s.runs,
		AdRuns:        s.adRuns,
		FirstFrameP50: s.firstFrame.Quantile(0.5),
		FirstFrameP95: s.firstFrame.Quantile(0.95),
		FirstFrameP99: s.firstFrame.Quantile(0.99),
	}
}
