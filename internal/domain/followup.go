package domain

import (
	"math"
	"time"
)

// Follow-up ordering uses integer sort keys: base question i sits at i*1000
// and the k-th follow-up of base i at i*1000+k. Display index is the rank of
// sort keys ascending, which keeps insertion stable without float precision
// issues.

// SortKeyStride separates consecutive base questions.
const SortKeyStride = 1000

// BaseSortKey returns the sort key of base question index i.
func BaseSortKey(i int) int { return i * SortKeyStride }

// FollowUpSortKey returns the sort key of the k-th (1-based) follow-up of
// base question index baseIndex.
func FollowUpSortKey(baseIndex, k int) int { return baseIndex*SortKeyStride + k }

// BaseIndexOf returns the base question index that owns sort key key.
func BaseIndexOf(key int) int { return key / SortKeyStride }

// MaxFollowUpsPerBase caps follow-ups generated for a single base question.
const MaxFollowUpsPerBase = 2

// DetectorConfidenceMin admits a follow-up below the target count.
const DetectorConfidenceMin = 0.65

// DetectorConfidenceAtTarget is required once the target count is reached.
const DetectorConfidenceAtTarget = 0.75

// TargetFollowUps computes min(ceil(1.5*baseCount), maxQuestions-baseCount).
func TargetFollowUps(baseCount, maxQuestions int) int {
	a := int(math.Ceil(1.5 * float64(baseCount)))
	b := maxQuestions - baseCount
	if b < a {
		return b
	}
	return a
}

// InterviewStatus enumerates the adaptive interview lifecycle.
type InterviewStatus string

const (
	InterviewActive    InterviewStatus = "active"
	InterviewCompleted InterviewStatus = "completed"
)

// InterviewMetadata holds the per-interview follow-up budget and detector
// statistics.
type InterviewMetadata struct {
	ID                    string
	CandidateAssessmentID string
	MinQuestions          int
	MaxQuestions          int
	BaseQuestionCount     int
	CurrentTotalQuestions int
	FollowupCount         int
	LastFollowupPosition  int
	AvgDetectorConfidence float64
	DetectorCallCount     int
	ApprovedCount         int
	RejectedCount         int
	Status                InterviewStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// FollowUpQuestion is one generated follow-up, ordered by SortKey.
// Unique on (interview, sortKey).
type FollowUpQuestion struct {
	ID             string
	InterviewID    string
	BaseIndex      int
	SortKey        int
	Question       string
	ExpectedAnswer string
	DetectorReason string
	Confidence     float64
	CreatedAt      time.Time
}

// DetectorResult is the follow-up detector's structured verdict.
type DetectorResult struct {
	NeedFollowUp     bool    `json:"need_follow_up"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason"`
	SummarizedAnswer string  `json:"summarized_answer"`
}

// GeneratedFollowUp is the generator's structured output.
type GeneratedFollowUp struct {
	FollowUpQuestion string `json:"follow_up_question"`
	ExpectedAnswer   string `json:"expected_answer"`
}
