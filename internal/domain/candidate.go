package domain

import "time"

// CandidateStatus enumerates the candidate lifecycle. Ordering is monotonic
// except that in_progress→submitted may occur via time expiry on any read path.
type CandidateStatus string

const (
	CandidateInvited        CandidateStatus = "invited"
	CandidateOnboarding     CandidateStatus = "onboarding"
	CandidateResumeReview   CandidateStatus = "resume_review"
	CandidateResumeRejected CandidateStatus = "resume_rejected"
	CandidateReady          CandidateStatus = "ready"
	CandidateInProgress     CandidateStatus = "in_progress"
	CandidateSubmitted      CandidateStatus = "submitted"
	CandidateEvaluating     CandidateStatus = "evaluating"
	CandidateEvaluated      CandidateStatus = "evaluated"
	CandidateDecided        CandidateStatus = "decided"
)

// candidateRank orders statuses for monotonicity checks.
var candidateRank = map[CandidateStatus]int{
	CandidateInvited:        0,
	CandidateOnboarding:     1,
	CandidateResumeReview:   2,
	CandidateResumeRejected: 3,
	CandidateReady:          3,
	CandidateInProgress:     4,
	CandidateSubmitted:      5,
	CandidateEvaluating:     6,
	CandidateEvaluated:      7,
	CandidateDecided:        8,
}

// CanTransitionCandidate reports whether from→to respects lifecycle ordering.
func CanTransitionCandidate(from, to CandidateStatus) bool {
	fr, ok1 := candidateRank[from]
	tr, ok2 := candidateRank[to]
	if !ok1 || !ok2 {
		return false
	}
	return tr > fr
}

// IntegrityStatus is a monotone proctoring flag.
type IntegrityStatus string

const (
	IntegrityClear              IntegrityStatus = "CLEAR"
	IntegrityFlaggedUnderReview IntegrityStatus = "FLAGGED_UNDER_REVIEW"
)

// OnboardingState tracks the candidate's onboarding flags with timestamps.
type OnboardingState struct {
	EmailVerified        bool       `json:"emailVerified"`
	EmailVerifiedAt      *time.Time `json:"emailVerifiedAt,omitempty"`
	ProfilePhotoCaptured bool       `json:"profilePhotoCaptured"`
	ProfilePhotoRef      string     `json:"profilePhotoRef,omitempty"`
	PhotoCapturedAt      *time.Time `json:"photoCapturedAt,omitempty"`
	ConsentAccepted      bool       `json:"consentAccepted"`
	ConsentAcceptedAt    *time.Time `json:"consentAcceptedAt,omitempty"`
}

// ResumeBlock holds the uploaded resume and its AI match result.
type ResumeBlock struct {
	Text            string     `json:"-"`
	FileRef         string     `json:"fileRef,omitempty"`
	MatchScore      int        `json:"matchScore"`
	IsFake          bool       `json:"isFake"`
	PassedThreshold bool       `json:"passedThreshold"`
	MatchedSkills   []string   `json:"matchedSkills,omitempty"`
	MissingSkills   []string   `json:"missingSkills,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	UploadedAt      *time.Time `json:"uploadedAt,omitempty"`
}

// SectionProgress tracks one section's progress for a candidate.
type SectionProgress struct {
	Started           bool       `json:"started"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	QuestionsAnswered int        `json:"questionsAnswered"`
}

// ProctoringStats carries typed counters maintained by atomic increments.
type ProctoringStats struct {
	TotalEvents         int `json:"totalEvents"`
	TabSwitches         int `json:"tabSwitches"`
	FaceDetectionIssues int `json:"faceDetectionIssues"`
	HighSeverityEvents  int `json:"highSeverityEvents"`
}

// CommEntry records one outbound communication to the candidate.
type CommEntry struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	SentAt time.Time `json:"sentAt"`
}

// CandidateAssessment is one candidate's attempt at one JD.
// Unique on (email, jd).
type CandidateAssessment struct {
	ID               string
	JDID             string
	Email            string
	Name             string
	Status           CandidateStatus
	Onboarding       OnboardingState
	Resume           *ResumeBlock
	AssignedSetID    string
	SessionToken     *string
	CurrentSection   Section
	StartedAt        *time.Time
	SubmittedAt      *time.Time
	LastHeartbeat    *time.Time
	TimeSpentSeconds int
	SectionProgress  map[Section]SectionProgress
	Proctoring       ProctoringStats
	IntegrityStatus  IntegrityStatus
	CommLog          []CommEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOnboardingComplete holds iff all four onboarding gates have passed.
func (c CandidateAssessment) IsOnboardingComplete() bool {
	return c.Onboarding.EmailVerified &&
		c.Onboarding.ProfilePhotoCaptured &&
		c.Onboarding.ConsentAccepted &&
		c.Resume != nil && c.Resume.PassedThreshold
}
