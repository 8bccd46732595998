package usecase

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// AdminService serves the recruiter back office: candidate review, human
// decisions, CSV export, and the audit trail.
type AdminService struct {
	JDs        domain.JDRepository
	Candidates domain.CandidateRepository
	Evals      domain.EvaluationRepository
	Audit      domain.AuditRepository
	Now        func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(jds domain.JDRepository, cands domain.CandidateRepository, evals domain.EvaluationRepository, audit domain.AuditRepository) AdminService {
	return AdminService{JDs: jds, Candidates: cands, Evals: evals, Audit: audit, Now: time.Now}
}

func (s AdminService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CandidateDetail pairs a candidate with their evaluation when one exists.
type CandidateDetail struct {
	Candidate  domain.CandidateAssessment `json:"candidate"`
	Evaluation *domain.Evaluation         `json:"evaluation,omitempty"`
}

// ListCandidates returns a page of candidates for a JD.
func (s AdminService) ListCandidates(ctx domain.Context, jdID string, limit, offset int) ([]domain.CandidateAssessment, error) {
	return s.Candidates.ListByJD(ctx, jdID, limit, offset)
}

// GetCandidate returns a candidate with evaluation attached when present.
func (s AdminService) GetCandidate(ctx domain.Context, candidateID string) (CandidateDetail, error) {
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return CandidateDetail{}, err
	}
	detail := CandidateDetail{Candidate: c}
	if ev, err := s.Evals.GetByCandidate(ctx, candidateID); err == nil {
		detail.Evaluation = &ev
	} else if !isNotFound(err) {
		return CandidateDetail{}, fmt.Errorf("op=admin.getCandidate: %w", err)
	}
	return detail, nil
}

// SetDecision records the human decision on an evaluation, moves the
// candidate to decided, and appends an audit entry.
func (s AdminService) SetDecision(ctx domain.Context, candidateID string, decision domain.AdminDecision, by, note string) error {
	if !domain.ValidAdminDecision(decision) {
		return fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, decision)
	}
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return err
	}
	if err := s.Evals.SetAdminDecision(ctx, candidateID, decision, by, note, s.now()); err != nil {
		return fmt.Errorf("op=admin.setDecision: %w", err)
	}
	if decision != domain.DecisionReviewPending && c.Status == domain.CandidateEvaluated {
		if err := s.Candidates.UpdateStatus(ctx, candidateID, domain.CandidateEvaluated, domain.CandidateDecided); err != nil && !isConflict(err) {
			return fmt.Errorf("op=admin.setDecision: %w", err)
		}
	}
	if err := s.Audit.Append(ctx, by, "set_decision", candidateID, map[string]any{
		"decision": string(decision), "note": note,
	}); err != nil {
		slog.Error("audit append failed", slog.String("candidate_id", candidateID), slog.Any("error", err))
	}
	return nil
}

// ExportHeader is the fixed CSV header of the candidate export.
var ExportHeader = []string{"Name", "Email", "Status", "Resume Match Score", "Score", "Submitted"}

// ExportRows builds the candidate export for one JD, one row per candidate
// in the ExportHeader column order.
func (s AdminService) ExportRows(ctx domain.Context, jdID string) ([][]string, error) {
	if _, err := s.JDs.Get(ctx, jdID); err != nil {
		return nil, err
	}
	const pageSize = 500
	var rows [][]string
	for offset := 0; ; offset += pageSize {
		page, err := s.Candidates.ListByJD(ctx, jdID, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("op=admin.export: %w", err)
		}
		for _, c := range page {
			rows = append(rows, s.exportRow(ctx, c))
		}
		if len(page) < pageSize {
			break
		}
	}
	return rows, nil
}

func (s AdminService) exportRow(ctx domain.Context, c domain.CandidateAssessment) []string {
	resumeScore := ""
	if c.Resume != nil {
		resumeScore = strconv.Itoa(c.Resume.MatchScore)
	}
	score := ""
	if ev, err := s.Evals.GetByCandidate(ctx, c.ID); err == nil {
		score = strconv.FormatFloat(ev.WeightedScore, 'f', 1, 64)
	}
	submitted := ""
	if c.SubmittedAt != nil {
		submitted = c.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return []string{c.Name, c.Email, string(c.Status), resumeScore, score, submitted}
}

// JDAnalytics aggregates a JD's candidate funnel and outcomes. The score
// histogram buckets weighted scores by tens: bucket i counts scores in
// [i*10, i*10+10), with 100 landing in the last bucket.
type JDAnalytics struct {
	JDID             string                         `json:"jdId"`
	TotalCandidates  int                            `json:"totalCandidates"`
	StatusCounts     map[domain.CandidateStatus]int `json:"statusCounts"`
	Evaluated        int                            `json:"evaluated"`
	AverageScore     float64                        `json:"averageScore"`
	ScoreHistogram   []int                          `json:"scoreHistogram"`
	IntegrityFlagged int                            `json:"integrityFlagged"`
}

// Analytics computes the per-JD dashboard aggregates.
func (s AdminService) Analytics(ctx domain.Context, jdID string) (JDAnalytics, error) {
	if _, err := s.JDs.Get(ctx, jdID); err != nil {
		return JDAnalytics{}, err
	}
	out := JDAnalytics{
		JDID:           jdID,
		StatusCounts:   map[domain.CandidateStatus]int{},
		ScoreHistogram: make([]int, 10),
	}
	const pageSize = 500
	var scoreSum float64
	for offset := 0; ; offset += pageSize {
		page, err := s.Candidates.ListByJD(ctx, jdID, pageSize, offset)
		if err != nil {
			return JDAnalytics{}, fmt.Errorf("op=admin.analytics: %w", err)
		}
		for _, c := range page {
			out.TotalCandidates++
			out.StatusCounts[c.Status]++
			if c.IntegrityStatus == domain.IntegrityFlaggedUnderReview {
				out.IntegrityFlagged++
			}
			ev, err := s.Evals.GetByCandidate(ctx, c.ID)
			if err != nil {
				continue
			}
			out.Evaluated++
			scoreSum += ev.WeightedScore
			bucket := int(ev.WeightedScore / 10)
			if bucket < 0 {
				bucket = 0
			}
			if bucket > 9 {
				bucket = 9
			}
			out.ScoreHistogram[bucket]++
		}
		if len(page) < pageSize {
			break
		}
	}
	if out.Evaluated > 0 {
		out.AverageScore = scoreSum / float64(out.Evaluated)
	}
	return out, nil
}

// AuditLog returns a page of admin audit entries, newest first.
func (s AdminService) AuditLog(ctx domain.Context, limit, offset int) ([]domain.AuditEntry, error) {
	return s.Audit.List(ctx, limit, offset)
}
