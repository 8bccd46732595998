package domain

import (
	"context"
	"time"
)

// Context is an alias so the domain package never imports adapters; usecases
// and adapters pass context.Context straight through.
type Context = context.Context

// JDRepository persists job descriptions. Status transitions are guarded:
// UpdateStatus fails with ErrConflict when the stored status is not `from`,
// which serializes concurrent lifecycle moves at the document level.
type JDRepository interface {
	Create(ctx Context, jd JobDescription) (string, error)
	Get(ctx Context, id string) (JobDescription, error)
	GetByLink(ctx Context, link string) (JobDescription, error)
	List(ctx Context, companyID string, limit, offset int) ([]JobDescription, error)
	UpdateStatus(ctx Context, id string, from, to JDStatus) error
	SetParsed(ctx Context, id string, parsed ParsedContent, cfg AssessmentConfig, meta ParsingMeta) error
	UpdateConfig(ctx Context, id string, cfg AssessmentConfig) error
	UpdateSkills(ctx Context, id string, skills []string) error
	UpdateRubric(ctx Context, id string, rubric string) error
	SetLocked(ctx Context, id string, locked bool, at time.Time) error
	// SetLink writes the assessment link; a unique-index collision returns
	// ErrConflict so the caller can re-mint.
	SetLink(ctx Context, id, link string) error
	// SetSetIDs is a single field-set of the ordered set-id list.
	SetSetIDs(ctx Context, id string, setIDs []string) error
	AppendParseError(ctx Context, id, msg string) error
	IncrementStat(ctx Context, id, stat string, delta int) error
	Delete(ctx Context, id string) error
}

// SetRepository persists assessment sets. Create validates the set and fails
// persistence on invariant violations.
type SetRepository interface {
	Create(ctx Context, s AssessmentSet) (string, error)
	Get(ctx Context, id string) (AssessmentSet, error)
	ListByJD(ctx Context, jdID string) ([]AssessmentSet, error)
	ListActiveByJD(ctx Context, jdID string) ([]AssessmentSet, error)
	SetActive(ctx Context, id string, active bool) error
	DeleteByJD(ctx Context, jdID string) error
}

// CandidateRepository persists candidate assessments. All field writes are
// targeted updates, never whole-row read-modify-write.
type CandidateRepository interface {
	Create(ctx Context, c CandidateAssessment) (string, error)
	Get(ctx Context, id string) (CandidateAssessment, error)
	GetByEmailAndJD(ctx Context, email, jdID string) (CandidateAssessment, error)
	GetBySessionToken(ctx Context, tok string) (CandidateAssessment, error)
	ListByJD(ctx Context, jdID string, limit, offset int) ([]CandidateAssessment, error)
	UpdateStatus(ctx Context, id string, from, to CandidateStatus) error
	SetEmailVerified(ctx Context, id string, at time.Time) error
	SetProfilePhoto(ctx Context, id, ref string, at time.Time) error
	SetConsent(ctx Context, id string, at time.Time) error
	SetResume(ctx Context, id string, r ResumeBlock) error
	// StartSession atomically assigns the set, session token, and timing,
	// moving ready→in_progress. ErrConflict when the candidate is not ready.
	StartSession(ctx Context, id, setID, token string, startedAt time.Time) error
	Heartbeat(ctx Context, id string, at time.Time) error
	SetCurrentSection(ctx Context, id string, s Section) error
	SetSectionProgress(ctx Context, id string, s Section, p SectionProgress) error
	// FinishSession moves in_progress→submitted, records submittedAt and time
	// spent, and clears currentSection. Idempotent: finishing an already
	// submitted candidate is a no-op returning ErrConflict.
	FinishSession(ctx Context, id string, submittedAt time.Time, timeSpentSeconds int) error
	IncrementProctoring(ctx Context, id string, total, tabSwitches, faceIssues, high int) error
	// FlagIntegrity is a monotone one-way write to FLAGGED_UNDER_REVIEW.
	FlagIntegrity(ctx Context, id string) error
	ClearIntegrity(ctx Context, id string) error
	AppendCommLog(ctx Context, id string, e CommEntry) error
}

// AnswerRepository persists per-section answer documents. Per-question entries
// are stored as individual rows so concurrent saves of distinct questions
// never clobber each other.
type AnswerRepository interface {
	// EnsureSection upserts the section document and returns it.
	EnsureSection(ctx Context, caID string, s Section, startedAt time.Time) (AssessmentAnswer, error)
	Get(ctx Context, caID string, s Section) (AssessmentAnswer, error)
	ListByCandidate(ctx Context, caID string) ([]AssessmentAnswer, error)
	UpsertObjective(ctx Context, caID string, a ObjectiveAnswer) error
	UpsertSubjective(ctx Context, caID string, a SubjectiveAnswer) error
	UpsertProgramming(ctx Context, caID string, a ProgrammingAnswer) error
	CountEntries(ctx Context, caID string, s Section) (int, error)
	// SubmitSection marks the section submitted with timing and score.
	SubmitSection(ctx Context, caID string, s Section, at time.Time, timeSpentSeconds int, score, maxScore float64) error
	SetSubjectiveScore(ctx Context, caID, questionID string, score float64, feedback string) error
}

// ProctoringRepository is append-only except admin review fields.
type ProctoringRepository interface {
	Append(ctx Context, e ProctoringEvent) (string, error)
	ListByCandidate(ctx Context, caID string, limit, offset int) ([]ProctoringEvent, error)
	Review(ctx Context, id, reviewer, note string, at time.Time) error
}

// EvaluationRepository persists evaluations, unique per candidate assessment.
type EvaluationRepository interface {
	Upsert(ctx Context, e Evaluation) (string, error)
	GetByCandidate(ctx Context, caID string) (Evaluation, error)
	SetAdminDecision(ctx Context, caID string, d AdminDecision, by, note string, at time.Time) error
}

// InterviewRepository persists adaptive interview metadata and follow-ups.
type InterviewRepository interface {
	CreateMetadata(ctx Context, m InterviewMetadata) (string, error)
	GetMetadata(ctx Context, id string) (InterviewMetadata, error)
	GetMetadataByCandidate(ctx Context, caID string) (InterviewMetadata, error)
	// RecordDetectorCall atomically bumps the call count and folds confidence
	// into the running mean.
	RecordDetectorCall(ctx Context, id string, confidence float64, approved bool) error
	// InsertFollowUp persists the follow-up and atomically bumps
	// followupCount, currentTotalQuestions, and lastFollowupPosition. A
	// (interview, sortKey) unique violation returns ErrConflict.
	InsertFollowUp(ctx Context, f FollowUpQuestion) (string, error)
	ListFollowUps(ctx Context, interviewID string) ([]FollowUpQuestion, error)
	CountFollowUpsForBase(ctx Context, interviewID string, baseIndex int) (int, error)
	// RecentQuestions returns the text of the last n questions in display order.
	RecentQuestions(ctx Context, interviewID string, n int) ([]string, error)
}

// AuditRepository records admin actions, append-only.
type AuditRepository interface {
	Append(ctx Context, actor, action, subject string, detail map[string]any) error
	List(ctx Context, limit, offset int) ([]AuditEntry, error)
}

// AuditEntry is one admin audit record.
type AuditEntry struct {
	ID        string
	Actor     string
	Action    string
	Subject   string
	Detail    map[string]any
	CreatedAt time.Time
}

// AICallRequest is a uniform prompt→structured-output request.
type AICallRequest struct {
	System      string
	Prompt      string
	Model       string
	JSONMode    bool
	Temperature float64
	MaxTokens   int
	// SchemaExample is included in reformat prompts when JSONMode parsing
	// fails; a compact example of the expected object.
	SchemaExample string
}

// AICallResult carries the model output plus usage accounting.
type AICallResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Calls            int
}

// AIClient is the LLM gateway port.
type AIClient interface {
	Call(ctx Context, req AICallRequest) (AICallResult, error)
}

// SandboxLanguage describes one runnable language of the code judge.
type SandboxLanguage struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SandboxLimits bounds one sandbox execution.
type SandboxLimits struct {
	CPUTimeSec float64
	MemoryKB   int
}

// SandboxRun is the raw outcome of one sandbox submission.
type SandboxRun struct {
	Stdout   string
	Stderr   string
	Status   string
	TimeSec  float64
	MemoryKB int
}

// SandboxClient is the code judge gateway port.
type SandboxClient interface {
	Execute(ctx Context, source string, languageID int, stdin string, limits SandboxLimits) (SandboxRun, error)
	// RunTestCases batches tests against the sandbox and pairs outputs to
	// inputs; a failing batch yields per-test error records without aborting
	// remaining batches.
	RunTestCases(ctx Context, source string, languageID int, tests []TestCase) ([]TestCaseResult, error)
	Languages(ctx Context) ([]SandboxLanguage, error)
}

// Mailer sends candidate-facing email; dev deployments log to console.
type Mailer interface {
	Send(ctx Context, to, subject, body string) error
}

// TextExtractor extracts plain text from an uploaded file.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// OTPStore issues and verifies one-time codes with TTL expiry. Verify returns
// ErrAuthInvalid for wrong, expired, and attempt-exhausted codes alike so the
// caller can surface one generic message.
type OTPStore interface {
	Issue(ctx Context, email, purpose string, ttl time.Duration) (string, error)
	Verify(ctx Context, email, purpose, code string) error
}

// PlagiarismReport is the external checker verdict per channel.
type PlagiarismReport struct {
	SubjectivePct float64
	CodePct       float64
	Detail        string
}

// PlagiarismChecker is a pluggable similarity producer. The default
// implementation reports zero similarity.
type PlagiarismChecker interface {
	Check(ctx Context, caID string, subjective, code []string) (PlagiarismReport, error)
}
