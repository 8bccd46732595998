package httpserver

import (
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/usecase"
)

// jdView is the wire representation of a job description. RawText is only
// included on single-JD reads; list responses leave it empty.
type jdView struct {
	ID             string                             `json:"id"`
	CompanyID      string                             `json:"companyId"`
	RecruiterID    string                             `json:"recruiterId,omitempty"`
	RawText        string                             `json:"rawText,omitempty"`
	FileRef        string                             `json:"fileRef,omitempty"`
	Status         domain.JDStatus                    `json:"status"`
	Parsed         *domain.ParsedContent              `json:"parsed,omitempty"`
	Config         domain.AssessmentConfig            `json:"config"`
	Meta           domain.ParsingMeta                 `json:"meta"`
	Stats          domain.JDStats                     `json:"stats"`
	AssessmentLink string                             `json:"assessmentLink,omitempty"`
	SetIDs         []string                           `json:"setIds,omitempty"`
	SkillsOverride []string                           `json:"skillsOverride,omitempty"`
	Rubric         string                             `json:"rubric,omitempty"`
	IsLocked       bool                               `json:"isLocked"`
	LockedAt       *time.Time                         `json:"lockedAt,omitempty"`
	CreatedAt      time.Time                          `json:"createdAt"`
	UpdatedAt      time.Time                          `json:"updatedAt"`
}

func toJDView(jd domain.JobDescription, includeRaw bool) jdView {
	v := jdView{
		ID:             jd.ID,
		CompanyID:      jd.CompanyID,
		RecruiterID:    jd.RecruiterID,
		FileRef:        jd.FileRef,
		Status:         jd.Status,
		Parsed:         jd.Parsed,
		Config:         jd.Config,
		Meta:           jd.Meta,
		Stats:          jd.Stats,
		AssessmentLink: jd.AssessmentLink,
		SetIDs:         jd.SetIDs,
		SkillsOverride: jd.SkillsOverride,
		Rubric:         jd.Rubric,
		IsLocked:       jd.IsLocked,
		LockedAt:       jd.LockedAt,
		CreatedAt:      jd.CreatedAt,
		UpdatedAt:      jd.UpdatedAt,
	}
	if includeRaw {
		v.RawText = jd.RawText
	}
	return v
}

func toJDViews(jds []domain.JobDescription) []jdView {
	out := make([]jdView, 0, len(jds))
	for _, jd := range jds {
		out = append(out, toJDView(jd, false))
	}
	return out
}

// candidateView is the wire representation of a candidate assessment. The
// session token never leaves through this view.
type candidateView struct {
	ID               string                                    `json:"id"`
	JDID             string                                    `json:"jdId"`
	Email            string                                    `json:"email"`
	Name             string                                    `json:"name"`
	Status           domain.CandidateStatus                    `json:"status"`
	Onboarding       domain.OnboardingState                    `json:"onboarding"`
	Resume           *domain.ResumeBlock                       `json:"resume,omitempty"`
	CurrentSection   domain.Section                            `json:"currentSection,omitempty"`
	StartedAt        *time.Time                                `json:"startedAt,omitempty"`
	SubmittedAt      *time.Time                                `json:"submittedAt,omitempty"`
	LastHeartbeat    *time.Time                                `json:"lastHeartbeat,omitempty"`
	TimeSpentSeconds int                                       `json:"timeSpentSeconds"`
	SectionProgress  map[domain.Section]domain.SectionProgress `json:"sectionProgress,omitempty"`
	Proctoring       domain.ProctoringStats                    `json:"proctoring"`
	IntegrityStatus  domain.IntegrityStatus                    `json:"integrityStatus"`
	CreatedAt        time.Time                                 `json:"createdAt"`
	UpdatedAt        time.Time                                 `json:"updatedAt"`
}

func toCandidateView(c domain.CandidateAssessment) candidateView {
	return candidateView{
		ID:               c.ID,
		JDID:             c.JDID,
		Email:            c.Email,
		Name:             c.Name,
		Status:           c.Status,
		Onboarding:       c.Onboarding,
		Resume:           c.Resume,
		CurrentSection:   c.CurrentSection,
		StartedAt:        c.StartedAt,
		SubmittedAt:      c.SubmittedAt,
		LastHeartbeat:    c.LastHeartbeat,
		TimeSpentSeconds: c.TimeSpentSeconds,
		SectionProgress:  c.SectionProgress,
		Proctoring:       c.Proctoring,
		IntegrityStatus:  c.IntegrityStatus,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func toCandidateViews(cs []domain.CandidateAssessment) []candidateView {
	out := make([]candidateView, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCandidateView(c))
	}
	return out
}

type evaluationView struct {
	ID                string                                  `json:"id"`
	CandidateID       string                                  `json:"candidateId"`
	Sections          map[domain.Section]domain.SectionResult `json:"sections"`
	TotalScore        float64                                 `json:"totalScore"`
	MaxTotalScore     float64                                 `json:"maxTotalScore"`
	Percentage        float64                                 `json:"percentage"`
	WeightedScore     float64                                 `json:"weightedScore"`
	SkillScores       []domain.SkillScore                     `json:"skillScores,omitempty"`
	Plagiarism        domain.PlagiarismBlock                  `json:"plagiarism"`
	AIRecommendation  domain.Recommendation                   `json:"aiRecommendation"`
	AIConfidence      int                                     `json:"aiConfidence"`
	AIReason          string                                  `json:"aiReason,omitempty"`
	AdminDecision     domain.AdminDecision                    `json:"adminDecision"`
	AdminDecisionBy   string                                  `json:"adminDecisionBy,omitempty"`
	AdminDecisionNote string                                  `json:"adminDecisionNote,omitempty"`
	AdminDecisionAt   *time.Time                              `json:"adminDecisionAt,omitempty"`
	EvaluatedAt       time.Time                               `json:"evaluatedAt"`
	DurationMS        int64                                   `json:"durationMs"`
}

func toEvaluationView(ev domain.Evaluation) evaluationView {
	return evaluationView{
		ID:                ev.ID,
		CandidateID:       ev.CandidateAssessmentID,
		Sections:          ev.Sections,
		TotalScore:        ev.TotalScore,
		MaxTotalScore:     ev.MaxTotalScore,
		Percentage:        ev.Percentage,
		WeightedScore:     ev.WeightedScore,
		SkillScores:       ev.SkillScores,
		Plagiarism:        ev.Plagiarism,
		AIRecommendation:  ev.AIRecommendation,
		AIConfidence:      ev.AIConfidence,
		AIReason:          ev.AIReason,
		AdminDecision:     ev.AdminDecision,
		AdminDecisionBy:   ev.AdminDecisionBy,
		AdminDecisionNote: ev.AdminDecisionNote,
		AdminDecisionAt:   ev.AdminDecisionAt,
		EvaluatedAt:       ev.EvaluatedAt,
		DurationMS:        ev.DurationMS,
	}
}

type candidateDetailView struct {
	Candidate  candidateView   `json:"candidate"`
	Evaluation *evaluationView `json:"evaluation,omitempty"`
}

func toCandidateDetailView(d usecase.CandidateDetail) candidateDetailView {
	v := candidateDetailView{Candidate: toCandidateView(d.Candidate)}
	if d.Evaluation != nil {
		ev := toEvaluationView(*d.Evaluation)
		v.Evaluation = &ev
	}
	return v
}

type proctoringEventView struct {
	ID            string                     `json:"id"`
	CandidateID   string                     `json:"candidateId"`
	Type          domain.ProctoringEventType `json:"type"`
	Severity      domain.Severity            `json:"severity"`
	OccurredAt    time.Time                  `json:"occurredAt"`
	ScreenshotRef string                     `json:"screenshotRef,omitempty"`
	Evidence      map[string]any             `json:"evidence,omitempty"`
	Section       domain.Section             `json:"section,omitempty"`
	QuestionID    string                     `json:"questionId,omitempty"`
	AdminReviewed bool                       `json:"adminReviewed"`
	AdminNote     string                     `json:"adminNote,omitempty"`
	ReviewedBy    string                     `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time                 `json:"reviewedAt,omitempty"`
}

func toProctoringEventView(e domain.ProctoringEvent) proctoringEventView {
	return proctoringEventView{
		ID:            e.ID,
		CandidateID:   e.CandidateAssessmentID,
		Type:          e.Type,
		Severity:      e.Severity,
		OccurredAt:    e.OccurredAt,
		ScreenshotRef: e.ScreenshotRef,
		Evidence:      e.Evidence,
		Section:       e.Section,
		QuestionID:    e.QuestionID,
		AdminReviewed: e.AdminReviewed,
		AdminNote:     e.AdminNote,
		ReviewedBy:    e.ReviewedBy,
		ReviewedAt:    e.ReviewedAt,
	}
}

func toProctoringEventViews(events []domain.ProctoringEvent) []proctoringEventView {
	out := make([]proctoringEventView, 0, len(events))
	for _, e := range events {
		out = append(out, toProctoringEventView(e))
	}
	return out
}

type auditEntryView struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toAuditEntryViews(entries []domain.AuditEntry) []auditEntryView {
	out := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryView{
			ID: e.ID, Actor: e.Actor, Action: e.Action,
			Subject: e.Subject, Detail: e.Detail, CreatedAt: e.CreatedAt,
		})
	}
	return out
}
