// Package seed fills a Conduit database with demo data and imports annotator
// campaigns.
//
// Generate writes synthetic single-lead sinus traces and the three sample
// annotators, each assigned a campaign over every generated segment.
// ImportCampaigns reads campaign assignments from CSV.
package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/viterin/vek"

	"github.com/orneryd/conduit/pkg/segment"
	"github.com/orneryd/conduit/pkg/storage"
)

// Options controls synthetic data generation.
type Options struct {
	// Segments is the number of segments to generate (default 200).
	Segments int
	// Seconds is the length of each trace (default 10).
	Seconds int
	// SampleRate in Hz (default 240).
	SampleRate int
	// MaxMillivolts bounds the trace amplitude (default 4).
	MaxMillivolts float64
	// CaseID is recorded on every generated segment.
	CaseID string
	// Campaign names the campaign given to each sample annotator.
	Campaign string
	// Seed makes generation reproducible. Zero uses the current time.
	Seed uint64
}

// DefaultOptions returns 200 ten-second traces at 240 Hz up to 4 mV.
func DefaultOptions() Options {
	return Options{
		Segments:      200,
		Seconds:       10,
		SampleRate:    segment.DefaultSampleRate,
		MaxMillivolts: 4,
		CaseID:        "asdf1234",
		Campaign:      "demo",
	}
}

// SampleAnnotators returns the demo annotators: one MD who may navigate
// freely and two students.
func SampleAnnotators() []*segment.Annotator {
	return []*segment.Annotator{
		{Name: "Billy Foo", Username: "bfoo", Designation: "MD"},
		{Name: "Bob Bar", Username: "bbar", Designation: "Student"},
		{Name: "Joe Baz", Username: "jbaz", Designation: "Student"},
	}
}

// Result summarizes a Generate run.
type Result struct {
	Segments   []string
	Annotators []string
	Duration   time.Duration
}

// GenerateSegments builds n synthetic segments without storing them.
func GenerateSegments(opts Options) []*segment.Segment {
	opts = withDefaults(opts)
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	segs := make([]*segment.Segment, opts.Segments)
	for i := range segs {
		segs[i] = sinusSegment(rng, opts)
	}
	return segs
}

// sinusSegment draws one trace amplitude*sin(period*x + phase).
func sinusSegment(rng *rand.Rand, opts Options) *segment.Segment {
	samples := opts.SampleRate * opts.Seconds
	amplitude := rng.Float64() * opts.MaxMillivolts
	phase := rng.Float64()
	period := rng.Float64() * math.Pi / float64(opts.SampleRate)

	trace := vek.AddNumber(vek.MulNumber(vek.Range(0, float64(samples)), period), phase)
	for i, x := range trace {
		trace[i] = math.Sin(x)
	}
	trace = vek.MulNumber(trace, amplitude)

	start := (rng.IntN(opts.Segments) + 1) * opts.SampleRate
	return &segment.Segment{
		ID:          uuid.New().String(),
		CaseID:      opts.CaseID,
		StartIdx:    start,
		StopIdx:     start + samples,
		Signals:     map[string][]float64{"I": trace},
		Annotations: map[string]segment.Annotation{},
	}
}

// Generate stores synthetic segments and the sample annotators in db. Each
// annotator's current campaign covers every generated segment in generation
// order; an existing annotator's campaign is replaced.
func Generate(db *storage.BadgerEngine, opts Options) (*Result, error) {
	start := time.Now()
	opts = withDefaults(opts)

	segs := GenerateSegments(opts)
	if err := db.PutSegments(segs); err != nil {
		return nil, fmt.Errorf("failed to store segments: %w", err)
	}

	ids := make([]string, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}

	res := &Result{Segments: ids}
	for _, a := range SampleAnnotators() {
		a.CurrentCampaign = &segment.Campaign{
			Name:     opts.Campaign,
			Segments: append([]string(nil), ids...),
		}
		if err := db.PutAnnotator(a); err != nil {
			return nil, fmt.Errorf("failed to store annotator %s: %w", a.Username, err)
		}
		res.Annotators = append(res.Annotators, a.Username)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Segments <= 0 {
		opts.Segments = def.Segments
	}
	if opts.Seconds <= 0 {
		opts.Seconds = def.Seconds
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.MaxMillivolts <= 0 {
		opts.MaxMillivolts = def.MaxMillivolts
	}
	if opts.CaseID == "" {
		opts.CaseID = def.CaseID
	}
	if opts.Campaign == "" {
		opts.Campaign = def.Campaign
	}
	return opts
}
