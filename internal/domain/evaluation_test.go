package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandRecommendation(t *testing.T) {
	tests := []struct {
		score      float64
		cutoff     int
		band       Recommendation
		confidence int
	}{
		{80, 60, RecommendPass, 85},
		{75, 60, RecommendPass, 85},
		{74.9, 60, RecommendReview, 60},
		{60, 60, RecommendReview, 60},
		{59.9, 60, RecommendReview, 70},
		{50, 60, RecommendReview, 70},
		{49.9, 60, RecommendFail, 80},
		{0, 60, RecommendFail, 80},
		{90, 80, RecommendReview, 60},
	}
	for _, tc := range tests {
		band, conf := BandRecommendation(tc.score, tc.cutoff)
		assert.Equal(t, tc.band, band, "score %.1f cutoff %d", tc.score, tc.cutoff)
		assert.Equal(t, tc.confidence, conf, "score %.1f cutoff %d", tc.score, tc.cutoff)
	}
}

func TestWeightedScore(t *testing.T) {
	sections := map[Section]SectionResult{
		SectionObjective:  {Percentage: 80},
		SectionSubjective: {Percentage: 60},
	}
	weights := map[Section]int{SectionObjective: 30, SectionSubjective: 30, SectionProgramming: 40}

	// Programming absent: its weight drops out and the rest renormalize.
	assert.InDelta(t, 70.0, WeightedScore(sections, weights), 0.001)

	sections[SectionProgramming] = SectionResult{Percentage: 100}
	assert.InDelta(t, 82.0, WeightedScore(sections, weights), 0.001)

	assert.Equal(t, 0.0, WeightedScore(map[Section]SectionResult{}, weights))
}

func TestWeightedScoreDefaultsMissingWeights(t *testing.T) {
	sections := map[Section]SectionResult{
		SectionObjective:   {Percentage: 50},
		SectionProgramming: {Percentage: 100},
	}
	// No JD weights: fall back to the 30/30/40 defaults, renormalized over
	// the two present sections.
	got := WeightedScore(sections, nil)
	assert.InDelta(t, (50*30+100*40)/70.0, got, 0.001)
}

func TestValidAdminDecision(t *testing.T) {
	for _, d := range []AdminDecision{DecisionPass, DecisionFail, DecisionHold, DecisionReviewPending} {
		assert.True(t, ValidAdminDecision(d))
	}
	assert.False(t, ValidAdminDecision("MAYBE"))
	assert.False(t, ValidAdminDecision(""))
}
