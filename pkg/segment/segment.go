// Package segment defines the records annotated in Conduit: signal segments,
// the annotations attached to them, and the annotators and campaigns that
// decide which segments an annotator walks through.
//
// Segments are treated as immutable once fetched. The only part that changes
// over a session is the annotation map, and that is handled copy-on-write via
// WithAnnotation so that cached values are never mutated in place.
package segment

import (
	"errors"
	"strings"
)

// DefaultConfidence is the confidence recorded when a client does not send one.
const DefaultConfidence = 1.0

// LabelAbstain is the label an annotator uses to skip a segment. It must carry
// a comment explaining why.
const LabelAbstain = "ABSTAIN"

var (
	// ErrMissingLabel is returned when an annotation has no label.
	ErrMissingLabel = errors.New("annotation label is required")
	// ErrMissingComment is returned when an ABSTAIN annotation has no reason.
	ErrMissingComment = errors.New("abstain annotation requires a comment")
	// ErrInvalidConfidence is returned for a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)

// Annotation is one annotator's verdict on a segment.
type Annotation struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Comments   string  `json:"comments,omitempty"`
}

// Validate checks the annotation and fills in the default confidence.
func (a *Annotation) Validate() error {
	a.Label = strings.TrimSpace(a.Label)
	a.Comments = strings.TrimSpace(a.Comments)
	if a.Label == "" {
		return ErrMissingLabel
	}
	if a.Confidence == 0 {
		a.Confidence = DefaultConfidence
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return ErrInvalidConfidence
	}
	if a.Label == LabelAbstain && a.Comments == "" {
		return ErrMissingComment
	}
	return nil
}

// Segment is one unit of annotatable signal data plus its accumulated
// annotations, keyed by annotator username.
type Segment struct {
	ID     string `json:"_id"`
	CaseID string `json:"case_id"`

	// PoolSegment points back to the segment this one was sampled from.
	PoolSegment string `json:"pool_segment,omitempty"`
	StartIdx    int    `json:"start_idx"`
	StopIdx     int    `json:"stop_idx"`
	ZeroPadded  bool   `json:"zero_padded"`

	Signals     map[string][]float64  `json:"signals"`
	Annotations map[string]Annotation `json:"annotations"`
}

// Annotation returns the annotation left by annotator, if any.
func (s *Segment) Annotation(annotator string) (Annotation, bool) {
	if s == nil || s.Annotations == nil {
		return Annotation{}, false
	}
	a, ok := s.Annotations[annotator]
	return a, ok
}

// WithAnnotation returns a copy of s carrying annotation a for annotator.
// Signals are shared with s (they are never mutated); the annotation map is
// fresh so s itself is left untouched.
func (s *Segment) WithAnnotation(annotator string, a Annotation) *Segment {
	out := *s
	out.Annotations = make(map[string]Annotation, len(s.Annotations)+1)
	for k, v := range s.Annotations {
		out.Annotations[k] = v
	}
	out.Annotations[annotator] = a
	return &out
}

// Clone returns a deep copy of s.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	out := *s
	if s.Signals != nil {
		out.Signals = make(map[string][]float64, len(s.Signals))
		for name, trace := range s.Signals {
			out.Signals[name] = append([]float64(nil), trace...)
		}
	}
	if s.Annotations != nil {
		out.Annotations = make(map[string]Annotation, len(s.Annotations))
		for k, v := range s.Annotations {
			out.Annotations[k] = v
		}
	}
	return &out
}

// Campaign is a fixed, ordered list of segment identifiers assigned to an
// annotator. The order defines logical positions 0..N-1 for a session.
type Campaign struct {
	Name                 string   `json:"name"`
	Segments             []string `json:"segments"`
	LastAnnotatedSegment string   `json:"last_annotated_segment,omitempty"`
}

// IndexOf returns the position of id in the campaign, or -1.
func (c *Campaign) IndexOf(id string) int {
	if c == nil || id == "" {
		return -1
	}
	for i, sid := range c.Segments {
		if sid == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id belongs to the campaign.
func (c *Campaign) Contains(id string) bool {
	return c.IndexOf(id) >= 0
}

// Annotator is a person labelling segments.
type Annotator struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	// Username is usually first initial + last name.
	Username    string `json:"username"`
	Designation string `json:"designation"`

	CurrentCampaign   *Campaign  `json:"current_campaign,omitempty"`
	PreviousCampaigns []Campaign `json:"previous_campaigns"`
}

// CanNavigateFreely reports whether the annotator may step backwards and
// forwards at will. Students only advance by labelling.
func (a *Annotator) CanNavigateFreely() bool {
	return a != nil && a.Designation != "" && !strings.EqualFold(a.Designation, "student")
}

// Class is one selectable label.
type Class struct {
	Value       string `json:"value"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
