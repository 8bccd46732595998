package domain

import "time"

// Recommendation is the AI recommendation band.
type Recommendation string

const (
	RecommendPass   Recommendation = "PASS"
	RecommendReview Recommendation = "REVIEW"
	RecommendFail   Recommendation = "FAIL"
)

// AdminDecision is the human decision recorded on an evaluation.
type AdminDecision string

const (
	DecisionPass          AdminDecision = "PASS"
	DecisionFail          AdminDecision = "FAIL"
	DecisionHold          AdminDecision = "HOLD"
	DecisionReviewPending AdminDecision = "REVIEW_PENDING"
)

// ValidAdminDecision reports whether d is a recognized decision.
func ValidAdminDecision(d AdminDecision) bool {
	switch d {
	case DecisionPass, DecisionFail, DecisionHold, DecisionReviewPending:
		return true
	}
	return false
}

// SectionResult aggregates one section's scoring.
type SectionResult struct {
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"maxScore"`
	Percentage float64 `json:"percentage"`
}

// SkillScore is a per-skill competency estimate in [0,100].
type SkillScore struct {
	Skill string  `json:"skill"`
	Score float64 `json:"score"`
}

// PlagiarismBlock records the external checker outcome.
type PlagiarismBlock struct {
	Checked       bool    `json:"checked"`
	SubjectivePct float64 `json:"subjectivePct"`
	CodePct       float64 `json:"codePct"`
	IsFlagged     bool    `json:"isFlagged"`
	Detail        string  `json:"detail,omitempty"`
}

// PlagiarismFlagThreshold: either channel above this percentage flags the
// evaluation and forces a REVIEW recommendation.
const PlagiarismFlagThreshold = 80.0

// Evaluation is the persisted evaluation document, unique per
// CandidateAssessment.
type Evaluation struct {
	ID                    string
	CandidateAssessmentID string
	Sections              map[Section]SectionResult
	TotalScore            float64
	MaxTotalScore         float64
	Percentage            float64
	WeightedScore         float64
	SkillScores           []SkillScore
	Plagiarism            PlagiarismBlock
	AIRecommendation      Recommendation
	AIConfidence          int
	AIReason              string
	AdminDecision         AdminDecision
	AdminDecisionBy       string
	AdminDecisionNote     string
	AdminDecisionAt       *time.Time
	ReportRef             string
	EvaluatedAt           time.Time
	DurationMS            int64
}

// BandRecommendation maps a weighted score to the recommendation band given
// the JD cutoff. Returns the band and its confidence.
func BandRecommendation(score float64, cutoff int) (Recommendation, int) {
	c := float64(cutoff)
	switch {
	case score >= c+15:
		return RecommendPass, 85
	case score >= c:
		return RecommendReview, 60
	case score >= c-10:
		return RecommendReview, 70
	default:
		return RecommendFail, 80
	}
}

// WeightedScore combines section percentages by JD weights, renormalizing the
// weights of the sections actually present. Result is clamped to [0,100].
func WeightedScore(sections map[Section]SectionResult, weights map[Section]int) float64 {
	var sum, wsum float64
	for sec, res := range sections {
		w, ok := weights[sec]
		if !ok {
			w = DefaultSectionWeights[sec]
		}
		sum += res.Percentage * float64(w)
		wsum += float64(w)
	}
	if wsum == 0 {
		return 0
	}
	score := sum / wsum
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
