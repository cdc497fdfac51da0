package reviews

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

func TestCoverageOf(t *testing.T) {
	tests := []struct {
		n        int
		expected Coverage
	}{
		{0, CoverageNone},
		{1, CoverageLow},
		{4, CoverageLow},
		{5, CoverageMedium},
		{9, CoverageMedium},
		{10, CoverageHigh},
		{250, CoverageHigh},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.n), func(t *testing.T) {
			assert.Equal(t, tc.expected, CoverageOf(tc.n))
		})
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, CoverageNone, s.Coverage)
	assert.Equal(t, NoReviewsMessage, s.Text)
	assert.Empty(t, s.Top)
	assert.NotNil(t, s.ProConsensus)
}

func TestSummarize(t *testing.T) {
	reviews := []storage.Review{
		{Source: "reddit", SourceType: storage.SourceTypeUser, Rating: 9, Pros: []string{"Battery life"}, CredibilityScore: 0.4},
		{Source: "The Verge", SourceType: storage.SourceTypePro, Rating: 8.5, Pros: []string{"Dynamic Island", "USB-C", "Great camera"}, Cons: []string{"60Hz display"}, CredibilityScore: 0.9},
		{Source: "GSMArena", SourceType: storage.SourceTypePro, Rating: 8, Pros: []string{"Great camera", "Battery life"}, Cons: []string{"60Hz display", "Slow charging"}, CredibilityScore: 0.85},
	}

	s := Summarize(reviews)

	assert.Equal(t, CoverageLow, s.Coverage)
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 8.5, s.AverageRating, 1e-9)
	assert.InDelta(t, 0.7166, s.AverageCredibility, 1e-3)
	assert.Equal(t, []string{"Dynamic Island", "USB-C", "Great camera", "Battery life"}, s.ProConsensus)
	assert.Equal(t, []string{"60Hz display", "Slow charging"}, s.ConConsensus)
	assert.Equal(t, Breakdown{ProReviews: 2, UserReviews: 1, AvgCredibility: s.AverageCredibility}, s.Breakdown)

	require.Len(t, s.Top, 3)
	assert.Equal(t, "The Verge", s.Top[0].Source)
	assert.Equal(t, "reddit", s.Top[2].Source)

	assert.Equal(t,
		"Limited reviews available (2 professional, 1 user reviews). The available reviews suggest an average rating of 8.5/10."+
			" Main strengths: Dynamic Island, USB-C, Great camera. Common concerns: 60Hz display, Slow charging.",
		s.Text)
}

func TestSummarize_Caps(t *testing.T) {
	var reviews []storage.Review
	for i := 0; i < 12; i++ {
		reviews = append(reviews, storage.Review{
			Source:           fmt.Sprintf("src-%d", i),
			SourceType:       storage.SourceTypePro,
			Rating:           8,
			Pros:             []string{fmt.Sprintf("pro-%d", i), ""},
			Cons:             []string{fmt.Sprintf("con-%d", i)},
			CredibilityScore: float64(i) / 10,
		})
	}

	s := Summarize(reviews)
	assert.Equal(t, CoverageHigh, s.Coverage)
	assert.Len(t, s.ProConsensus, maxPros)
	assert.Len(t, s.ConConsensus, maxCons)
	assert.Equal(t, "pro-11", s.ProConsensus[0], "consensus follows credibility order")
	require.Len(t, s.Top, maxTop)
	assert.Equal(t, "src-11", s.Top[0].Source)
	assert.Contains(t, s.Text, "Well-reviewed product with 12 professional sources.")
}

func TestSummarize_MediumAndNoConsensus(t *testing.T) {
	var reviews []storage.Review
	for i := 0; i < 6; i++ {
		reviews = append(reviews, storage.Review{Rating: 7, CredibilityScore: 0.5})
	}

	s := Summarize(reviews)
	assert.Equal(t, CoverageMedium, s.Coverage)
	assert.Equal(t, "Based on 0 professional reviews and 6 user reviews, an average rating of 7.0/10.", s.Text)
}

func TestSummarize_DoesNotReorderInput(t *testing.T) {
	reviews := []storage.Review{{Source: "a", CredibilityScore: 0.1}, {Source: "b", CredibilityScore: 0.9}}
	Summarize(reviews)
	assert.Equal(t, "a", reviews[0].Source)
}
