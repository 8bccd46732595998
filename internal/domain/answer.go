package domain

import "time"

// ObjectiveAnswer is a candidate's answer to one MCQ. IsCorrect and Points are
// populated only at section submit, never on save.
type ObjectiveAnswer struct {
	QuestionID          string    `json:"questionId"`
	SelectedOptionIndex *int      `json:"selectedOptionIndex,omitempty"`
	IsCorrect           *bool     `json:"isCorrect,omitempty"`
	Points              int       `json:"points"`
	AnsweredAt          time.Time `json:"answeredAt"`
}

// SubjectiveAnswer is a free-text answer; WordCount is the whitespace-split
// token count of Text.
type SubjectiveAnswer struct {
	QuestionID string    `json:"questionId"`
	Text       string    `json:"text"`
	WordCount  int       `json:"wordCount"`
	AIScore    *float64  `json:"aiScore,omitempty"`
	AIFeedback string    `json:"aiFeedback,omitempty"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// TestCaseResult is the outcome of running one test case.
type TestCaseResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
	Hidden         bool   `json:"hidden"`
	Error          string `json:"error,omitempty"`
	Weight         int    `json:"weight"`
}

// RunRecord is an entry in a programming answer's run history.
type RunRecord struct {
	Language string    `json:"language"`
	Passed   int       `json:"passed"`
	Total    int       `json:"total"`
	RanAt    time.Time `json:"ranAt"`
}

// ProgrammingAnswer holds the latest code, its last submission results, and
// the run history for one programming question.
type ProgrammingAnswer struct {
	QuestionID       string           `json:"questionId"`
	Code             string           `json:"code"`
	Language         string           `json:"language"`
	LanguageID       int              `json:"languageId"`
	TestCasesPassed  int              `json:"testCasesPassed"`
	TotalTestCases   int              `json:"totalTestCases"`
	CorrectnessScore float64          `json:"correctnessScore"`
	QualityScore     *float64         `json:"qualityScore,omitempty"`
	EfficiencyScore  *float64         `json:"efficiencyScore,omitempty"`
	LastResults      []TestCaseResult `json:"lastResults,omitempty"`
	RunHistory       []RunRecord      `json:"runHistory,omitempty"`
	AnsweredAt       time.Time        `json:"answeredAt"`
}

// AssessmentAnswer is the per-section answer document for one candidate.
// Unique on (candidateAssessment, section).
type AssessmentAnswer struct {
	ID                   string
	CandidateAssessmentID string
	Section              Section
	Objective            []ObjectiveAnswer
	Subjective           []SubjectiveAnswer
	Programming          []ProgrammingAnswer
	SectionStartedAt     *time.Time
	SectionSubmittedAt   *time.Time
	TimeSpentSeconds     int
	IsSubmitted          bool
	SectionScore         float64
	SectionMaxScore      float64
}

// EntryCount returns the number of per-question entries in the document.
func (a AssessmentAnswer) EntryCount() int {
	switch a.Section {
	case SectionObjective:
		return len(a.Objective)
	case SectionSubjective:
		return len(a.Subjective)
	case SectionProgramming:
		return len(a.Programming)
	}
	return 0
}

// GradeObjectiveSection grades answers against the assigned set: an entry is
// correct iff its selected index is in range and that option is marked
// correct. Returns graded entries plus section score and max score.
// Deterministic: fixed set and answers reproduce the same result bit-for-bit.
func GradeObjectiveSection(questions []ObjectiveQuestion, answers []ObjectiveAnswer) ([]ObjectiveAnswer, float64, float64) {
	byID := make(map[string]ObjectiveQuestion, len(questions))
	maxScore := 0.0
	for _, q := range questions {
		byID[q.QuestionID] = q
		maxScore += float64(q.Points)
	}
	graded := make([]ObjectiveAnswer, len(answers))
	copy(graded, answers)
	score := 0.0
	for i := range graded {
		q, ok := byID[graded[i].QuestionID]
		if !ok {
			continue
		}
		correct := false
		if idx := graded[i].SelectedOptionIndex; idx != nil && *idx >= 0 && *idx < len(q.Options) {
			correct = q.Options[*idx].IsCorrect
		}
		graded[i].IsCorrect = &correct
		if correct {
			graded[i].Points = q.Points
			score += float64(q.Points)
		} else {
			graded[i].Points = 0
		}
	}
	return graded, score, maxScore
}

// WeightedCorrectness computes 100 * sum(w_i for passed i) / sum(w_i), with
// missing weights defaulting to 1. All-weights-zero yields 0.
func WeightedCorrectness(results []TestCaseResult) float64 {
	var total, passed float64
	for _, r := range results {
		// Absent weights default to 1 at generation time; an explicit 0 here
		// deliberately contributes nothing.
		w := float64(r.Weight)
		total += w
		if r.Passed {
			passed += w
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * passed / total
}
