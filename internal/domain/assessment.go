package domain

import (
	"fmt"
	"time"
)

// ObjectiveOption is one MCQ choice. Exactly one option per question carries
// IsCorrect.
type ObjectiveOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// ObjectiveQuestion is a multiple-choice question.
type ObjectiveQuestion struct {
	QuestionID string            `json:"questionId"`
	Text       string            `json:"text"`
	Options    []ObjectiveOption `json:"options"`
	Points     int               `json:"points"`
	Difficulty string            `json:"difficulty"`
	Skill      string            `json:"skill,omitempty"`
}

// SubjectiveQuestion is a free-text question with an evaluator-only expected
// answer and rubric.
type SubjectiveQuestion struct {
	QuestionID     string `json:"questionId"`
	Text           string `json:"text"`
	ExpectedAnswer string `json:"expectedAnswer"`
	Rubric         string `json:"rubric"`
	MaxWords       int    `json:"maxWords"`
	Points         int    `json:"points"`
	Difficulty     string `json:"difficulty"`
	Skill          string `json:"skill,omitempty"`
}

// TestCase is one programming test case. Hidden cases are redacted before
// anything is returned to or stored for the candidate.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
	Weight         int    `json:"weight"`
}

// ProgrammingQuestion is a code problem with sample and hidden test cases.
type ProgrammingQuestion struct {
	QuestionID  string     `json:"questionId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StarterCode string     `json:"starterCode,omitempty"`
	TestCases   []TestCase `json:"testCases"`
	Points      int        `json:"points"`
	Difficulty  string     `json:"difficulty"`
	Skill       string     `json:"skill,omitempty"`
}

// AssessmentSet is one of N parallel question packets for a JD. Immutable
// after creation; IsActive is the only togglable field.
type AssessmentSet struct {
	ID          string
	JDID        string
	Index       int
	Objective   []ObjectiveQuestion
	Subjective  []SubjectiveQuestion
	Programming []ProgrammingQuestion
	TotalPoints int
	IsActive    bool
	CreatedAt   time.Time
}

// Finalize recomputes TotalPoints from the question arrays. Call before
// persisting; the repository re-validates with Validate so bypass is impossible.
func (s *AssessmentSet) Finalize() {
	total := 0
	for _, q := range s.Objective {
		total += q.Points
	}
	for _, q := range s.Subjective {
		total += q.Points
	}
	for _, q := range s.Programming {
		total += q.Points
	}
	s.TotalPoints = total
}

// Validate enforces set invariants: exactly one correct option per objective
// question, at least one sample and one hidden test case per programming
// question, and TotalPoints consistent with the arrays.
func (s AssessmentSet) Validate() error {
	for i, q := range s.Objective {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: objective question %d (%s) has %d correct options, want exactly 1", ErrValidation, i, q.QuestionID, correct)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: objective question %d (%s) has %d options, want at least 2", ErrValidation, i, q.QuestionID, len(q.Options))
		}
	}
	for i, q := range s.Programming {
		sample, hidden := 0, 0
		for _, tc := range q.TestCases {
			if tc.IsHidden {
				hidden++
			} else {
				sample++
			}
		}
		if sample < 1 || hidden < 1 {
			return fmt.Errorf("%w: programming question %d (%s) needs at least 1 sample and 1 hidden test case", ErrValidation, i, q.QuestionID)
		}
	}
	want := 0
	for _, q := range s.Objective {
		want += q.Points
	}
	for _, q := range s.Subjective {
		want += q.Points
	}
	for _, q := range s.Programming {
		want += q.Points
	}
	if s.TotalPoints != want {
		return fmt.Errorf("%w: totalPoints %d does not match question sum %d", ErrValidation, s.TotalPoints, want)
	}
	return nil
}

// SampleTestCases returns the visible (non-hidden) test cases of q.
func (q ProgrammingQuestion) SampleTestCases() []TestCase {
	out := make([]TestCase, 0, len(q.TestCases))
	for _, tc := range q.TestCases {
		if !tc.IsHidden {
			out = append(out, tc)
		}
	}
	return out
}

// HiddenRedaction is stored in place of hidden test-case inputs and outputs.
const HiddenRedaction = "[hidden]"

// RedactHidden returns a copy of tcs with hidden inputs/outputs replaced by
// the redaction marker.
func RedactHidden(tcs []TestCase) []TestCase {
	out := make([]TestCase, len(tcs))
	copy(out, tcs)
	for i := range out {
		if out[i].IsHidden {
			out[i].Input = HiddenRedaction
			out[i].ExpectedOutput = HiddenRedaction
		}
	}
	return out
}
