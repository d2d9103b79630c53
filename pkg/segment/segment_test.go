package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Annotation
		wantErr error
		want    Annotation
	}{
		{"defaults confidence", Annotation{Label: "SR"}, nil, Annotation{Label: "SR", Confidence: 1}},
		{"trims label", Annotation{Label: "  AFIB ", Confidence: 0.5}, nil, Annotation{Label: "AFIB", Confidence: 0.5}},
		{"missing label", Annotation{Label: " "}, ErrMissingLabel, Annotation{}},
		{"confidence too high", Annotation{Label: "SR", Confidence: 1.5}, ErrInvalidConfidence, Annotation{}},
		{"abstain without reason", Annotation{Label: LabelAbstain}, ErrMissingComment, Annotation{}},
		{"abstain with reason", Annotation{Label: LabelAbstain, Comments: "too noisy to annotate"}, nil,
			Annotation{Label: LabelAbstain, Confidence: 1, Comments: "too noisy to annotate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.in
			err := a.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestSegment_WithAnnotationIsCopyOnWrite(t *testing.T) {
	orig := &Segment{
		ID:          "seg-1",
		Signals:     map[string][]float64{"I": {0.1, 0.2}},
		Annotations: map[string]Annotation{"bfoo": {Label: "SR", Confidence: 1}},
	}

	updated := orig.WithAnnotation("bbar", Annotation{Label: "AFIB", Confidence: 1})

	assert.Len(t, orig.Annotations, 1, "original must not change")
	_, ok := orig.Annotation("bbar")
	assert.False(t, ok)

	a, ok := updated.Annotation("bbar")
	require.True(t, ok)
	assert.Equal(t, "AFIB", a.Label)
	assert.Equal(t, "SR", updated.Annotations["bfoo"].Label)
	assert.Equal(t, orig.ID, updated.ID)
}

func TestSegment_Clone(t *testing.T) {
	orig := &Segment{ID: "seg-1", Signals: map[string][]float64{"I": {1, 2, 3}}}
	c := orig.Clone()
	c.Signals["I"][0] = 42
	assert.Equal(t, 1.0, orig.Signals["I"][0])

	var nilSeg *Segment
	assert.Nil(t, nilSeg.Clone())
}

func TestCampaign_IndexOf(t *testing.T) {
	c := &Campaign{Segments: []string{"a", "b", "c"}}
	assert.Equal(t, 1, c.IndexOf("b"))
	assert.Equal(t, -1, c.IndexOf("z"))
	assert.Equal(t, -1, c.IndexOf(""))
	assert.True(t, c.Contains("c"))

	var nilCampaign *Campaign
	assert.Equal(t, -1, nilCampaign.IndexOf("a"))
}

func TestAnnotator_CanNavigateFreely(t *testing.T) {
	assert.True(t, (&Annotator{Designation: "MD"}).CanNavigateFreely())
	assert.False(t, (&Annotator{Designation: "Student"}).CanNavigateFreely())
	assert.False(t, (&Annotator{}).CanNavigateFreely())
	assert.False(t, (*Annotator)(nil).CanNavigateFreely())
}

func TestSummarize(t *testing.T) {
	s := &Segment{Signals: map[string][]float64{
		"II": {},
		"I":  {-1, 0, 1, 2},
	}}

	got := s.Summarize()
	require.Len(t, got, 2)

	assert.Equal(t, "I", got[0].Name)
	assert.Equal(t, 4, got[0].Samples)
	assert.InDelta(t, -1, got[0].Min, 1e-9)
	assert.InDelta(t, 2, got[0].Max, 1e-9)
	assert.InDelta(t, 0.5, got[0].Mean, 1e-9)

	assert.Equal(t, "II", got[1].Name)
	assert.Zero(t, got[1].Samples)
}

func TestLookupClass(t *testing.T) {
	c, ok := LookupClass(DefaultClasses, "AFIB")
	require.True(t, ok)
	assert.Equal(t, "atrial fibrillation", c.Name)

	_, ok = LookupClass(DefaultClasses, "NOPE")
	assert.False(t, ok)
}
