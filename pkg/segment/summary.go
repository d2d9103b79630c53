package segment

import (
	"sort"

	"github.com/viterin/vek"
)

// DefaultSampleRate is the sampling rate of seeded and imported traces (Hz).
const DefaultSampleRate = 240

// TraceSummary holds simple statistics for one named trace.
type TraceSummary struct {
	Name    string
	Samples int
	Min     float64
	Max     float64
	Mean    float64
	// Seconds is the trace duration at DefaultSampleRate.
	Seconds float64
}

// Summarize computes per-trace statistics, sorted by trace name.
// Empty traces are reported with zero statistics.
func (s *Segment) Summarize() []TraceSummary {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Signals))
	for name := range s.Signals {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]TraceSummary, 0, len(names))
	for _, name := range names {
		trace := s.Signals[name]
		ts := TraceSummary{
			Name:    name,
			Samples: len(trace),
			Seconds: float64(len(trace)) / DefaultSampleRate,
		}
		if len(trace) > 0 {
			ts.Min = vek.Min(trace)
			ts.Max = vek.Max(trace)
			ts.Mean = vek.Mean(trace)
		}
		out = append(out, ts)
	}
	return out
}
