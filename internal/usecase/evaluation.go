package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/adapter/observability"
	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// EvaluationService aggregates section scores, runs AI subjective grading and
// the plagiarism hook, and produces the banded recommendation for human
// review.
type EvaluationService struct {
	Candidates domain.CandidateRepository
	JDs        domain.JDRepository
	Sets       domain.SetRepository
	Answers    domain.AnswerRepository
	Evals      domain.EvaluationRepository
	AI         domain.AIClient
	Plagiarism domain.PlagiarismChecker
	Cfg        config.Config
	Now        func() time.Time
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(cands domain.CandidateRepository, jds domain.JDRepository, sets domain.SetRepository, answers domain.AnswerRepository, evals domain.EvaluationRepository, ai domain.AIClient, plag domain.PlagiarismChecker, cfg config.Config) EvaluationService {
	return EvaluationService{Candidates: cands, JDs: jds, Sets: sets, Answers: answers, Evals: evals, AI: ai, Plagiarism: plag, Cfg: cfg, Now: time.Now}
}

func (s EvaluationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RunEvaluation evaluates one submitted candidate end to end. A failure
// leaves the candidate in evaluating so the run can be retried; an already
// evaluated candidate returns the stored evaluation.
func (s EvaluationService) RunEvaluation(ctx domain.Context, candidateID string) (domain.Evaluation, error) {
	start := s.now()
	c, err := s.Candidates.Get(ctx, candidateID)
	if err != nil {
		return domain.Evaluation{}, err
	}
	switch c.Status {
	case domain.CandidateSubmitted:
		if err := s.Candidates.UpdateStatus(ctx, candidateID, domain.CandidateSubmitted, domain.CandidateEvaluating); err != nil && !isConflict(err) {
			return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: %w", err)
		}
	case domain.CandidateEvaluating:
		// Retry of a failed run.
	case domain.CandidateEvaluated, domain.CandidateDecided:
		return s.Evals.GetByCandidate(ctx, candidateID)
	default:
		return domain.Evaluation{}, fmt.Errorf("%w: cannot evaluate candidate in status %s", domain.ErrConflict, c.Status)
	}

	ev, err := s.evaluate(ctx, c)
	if err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return domain.Evaluation{}, err
	}
	ev.DurationMS = s.now().Sub(start).Milliseconds()

	if _, err := s.Evals.Upsert(ctx, ev); err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: persist: %w", err)
	}
	if err := s.Candidates.UpdateStatus(ctx, candidateID, domain.CandidateEvaluating, domain.CandidateEvaluated); err != nil && !isConflict(err) {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: %w", err)
	}
	observability.EvaluationsTotal.WithLabelValues("ok").Inc()
	slog.Info("candidate evaluated", slog.String("candidate_id", candidateID),
		slog.Float64("weighted_score", ev.WeightedScore),
		slog.String("recommendation", string(ev.AIRecommendation)))
	return ev, nil
}

func (s EvaluationService) evaluate(ctx domain.Context, c domain.CandidateAssessment) (domain.Evaluation, error) {
	jd, err := s.JDs.Get(ctx, c.JDID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: %w", err)
	}
	set, err := s.Sets.Get(ctx, c.AssignedSetID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: %w", err)
	}
	docs, err := s.Answers.ListByCandidate(ctx, c.ID)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("op=evaluation.run: %w", err)
	}
	byDoc := map[domain.Section]domain.AssessmentAnswer{}
	for _, d := range docs {
		byDoc[d.Section] = d
	}

	sections := map[domain.Section]domain.SectionResult{}
	skills := newSkillAccumulator()

	if sc, ok := jd.Config.Sections[domain.SectionObjective]; ok && sc.Enabled && sc.QuestionCount > 0 {
		doc := byDoc[domain.SectionObjective]
		res := sectionResult(doc.SectionScore, doc.SectionMaxScore)
		if doc.SectionMaxScore == 0 {
			// Never submitted: count the section against the candidate.
			max := 0.0
			for _, q := range set.Objective {
				max += float64(q.Points)
			}
			res = sectionResult(0, max)
		}
		sections[domain.SectionObjective] = res
		for _, q := range set.Objective {
			for _, a := range doc.Objective {
				if a.QuestionID == q.QuestionID && a.IsCorrect != nil {
					pct := 0.0
					if *a.IsCorrect {
						pct = 100
					}
					skills.add(q.Skill, pct)
				}
			}
		}
	}

	if sc, ok := jd.Config.Sections[domain.SectionSubjective]; ok && sc.Enabled && sc.QuestionCount > 0 {
		doc := byDoc[domain.SectionSubjective]
		res, err := s.gradeSubjective(ctx, jd, set, c.ID, doc, skills)
		if err != nil {
			return domain.Evaluation{}, err
		}
		sections[domain.SectionSubjective] = res
	}

	if sc, ok := jd.Config.Sections[domain.SectionProgramming]; ok && sc.Enabled && sc.QuestionCount > 0 {
		doc := byDoc[domain.SectionProgramming]
		score, max := programmingSectionScore(set.Programming, doc.Programming)
		sections[domain.SectionProgramming] = sectionResult(score, max)
		for _, q := range set.Programming {
			for _, a := range doc.Programming {
				if a.QuestionID == q.QuestionID {
					skills.add(q.Skill, a.CorrectnessScore)
				}
			}
		}
	}

	plag := s.checkPlagiarism(ctx, c.ID, byDoc)

	weights := map[domain.Section]int{}
	for sec, sc := range jd.Config.Sections {
		if sc.Enabled {
			weights[sec] = sc.Weight
		}
	}
	weighted := domain.WeightedScore(sections, weights)

	var total, maxTotal float64
	for _, r := range sections {
		total += r.Score
		maxTotal += r.MaxScore
	}
	pct := 0.0
	if maxTotal > 0 {
		pct = 100 * total / maxTotal
	}

	cutoff := jd.Config.CutoffScore
	if cutoff <= 0 {
		cutoff = domain.DefaultCutoffScore
	}
	rec, confidence := domain.BandRecommendation(weighted, cutoff)
	reason := fmt.Sprintf("weighted score %.1f against cutoff %d", weighted, cutoff)
	if plag.IsFlagged {
		rec = domain.RecommendReview
		reason = fmt.Sprintf("plagiarism flagged (subjective %.0f%%, code %.0f%%); manual review required", plag.SubjectivePct, plag.CodePct)
	}

	return domain.Evaluation{
		CandidateAssessmentID: c.ID,
		Sections:              sections,
		TotalScore:            total,
		MaxTotalScore:         maxTotal,
		Percentage:            pct,
		WeightedScore:         weighted,
		SkillScores:           skills.results(),
		Plagiarism:            plag,
		AIRecommendation:      rec,
		AIConfidence:          confidence,
		AIReason:              reason,
		AdminDecision:         domain.DecisionReviewPending,
		EvaluatedAt:           s.now(),
	}, nil
}

func sectionResult(score, max float64) domain.SectionResult {
	pct := 0.0
	if max > 0 {
		pct = 100 * score / max
	}
	return domain.SectionResult{Score: score, MaxScore: max, Percentage: pct}
}

const subjectiveGradeSystem = "You are a strict technical grader. Respond with JSON only."

const subjectiveGradeSchema = `{"score":0,"feedback":"..."}`

type subjectiveGrade struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// gradeSubjective scores each answered question against its rubric. An LLM
// failure aborts the evaluation so the run can be retried intact.
func (s EvaluationService) gradeSubjective(ctx domain.Context, jd domain.JobDescription, set domain.AssessmentSet, caID string, doc domain.AssessmentAnswer, skills *skillAccumulator) (domain.SectionResult, error) {
	answers := map[string]domain.SubjectiveAnswer{}
	for _, a := range doc.Subjective {
		answers[a.QuestionID] = a
	}
	var score, max float64
	for _, q := range set.Subjective {
		max += float64(q.Points)
		a, ok := answers[q.QuestionID]
		if !ok || a.Text == "" {
			continue
		}
		if a.AIScore != nil {
			// Re-run after partial failure: keep the stored grade.
			score += *a.AIScore
			skills.add(q.Skill, 100**a.AIScore/float64(q.Points))
			continue
		}
		g, err := s.gradeOne(ctx, jd, q, a)
		if err != nil {
			return domain.SectionResult{}, fmt.Errorf("op=evaluation.gradeSubjective: question %s: %w", q.QuestionID, err)
		}
		if g.Score < 0 {
			g.Score = 0
		}
		if g.Score > float64(q.Points) {
			g.Score = float64(q.Points)
		}
		if err := s.Answers.SetSubjectiveScore(ctx, caID, q.QuestionID, g.Score, g.Feedback); err != nil {
			return domain.SectionResult{}, fmt.Errorf("op=evaluation.gradeSubjective: persist: %w", err)
		}
		score += g.Score
		skills.add(q.Skill, 100*g.Score/float64(q.Points))
	}
	return sectionResult(score, max), nil
}

func (s EvaluationService) gradeOne(ctx domain.Context, jd domain.JobDescription, q domain.SubjectiveQuestion, a domain.SubjectiveAnswer) (subjectiveGrade, error) {
	rubric := q.Rubric
	if rubric == "" {
		rubric = jd.Rubric
	}
	prompt := fmt.Sprintf(
		"Grade this answer from 0 to %d points.\n\nQuestion: %s\n\nExpected answer: %s\n\nGrading rubric: %s\n\nCandidate answer (%d words):\n%s",
		q.Points, q.Text, q.ExpectedAnswer, rubric, a.WordCount, a.Text)
	res, err := s.AI.Call(ctx, domain.AICallRequest{
		System:        subjectiveGradeSystem,
		Prompt:        prompt,
		JSONMode:      true,
		Temperature:   0.1,
		SchemaExample: subjectiveGradeSchema,
	})
	if err != nil {
		return subjectiveGrade{}, err
	}
	var g subjectiveGrade
	if err := json.Unmarshal([]byte(res.Content), &g); err != nil {
		return subjectiveGrade{}, fmt.Errorf("decode grade: %v: %w", err, domain.ErrLLMBadJSON)
	}
	return g, nil
}

// checkPlagiarism runs the pluggable checker; a checker failure degrades to
// an unchecked report rather than failing the evaluation.
func (s EvaluationService) checkPlagiarism(ctx domain.Context, caID string, docs map[domain.Section]domain.AssessmentAnswer) domain.PlagiarismBlock {
	if s.Plagiarism == nil {
		return domain.PlagiarismBlock{}
	}
	var subjective, code []string
	for _, a := range docs[domain.SectionSubjective].Subjective {
		if a.Text != "" {
			subjective = append(subjective, a.Text)
		}
	}
	for _, a := range docs[domain.SectionProgramming].Programming {
		if a.Code != "" {
			code = append(code, a.Code)
		}
	}
	report, err := s.Plagiarism.Check(ctx, caID, subjective, code)
	if err != nil {
		slog.Error("plagiarism check failed", slog.String("candidate_id", caID), slog.Any("error", err))
		return domain.PlagiarismBlock{}
	}
	return domain.PlagiarismBlock{
		Checked:       true,
		SubjectivePct: report.SubjectivePct,
		CodePct:       report.CodePct,
		IsFlagged:     report.SubjectivePct > domain.PlagiarismFlagThreshold || report.CodePct > domain.PlagiarismFlagThreshold,
		Detail:        report.Detail,
	}
}

// skillAccumulator averages per-question percentages by skill tag.
type skillAccumulator struct {
	sum   map[string]float64
	count map[string]int
}

func newSkillAccumulator() *skillAccumulator {
	return &skillAccumulator{sum: map[string]float64{}, count: map[string]int{}}
}

func (a *skillAccumulator) add(skill string, pct float64) {
	if skill == "" {
		return
	}
	a.sum[skill] += pct
	a.count[skill]++
}

func (a *skillAccumulator) results() []domain.SkillScore {
	out := make([]domain.SkillScore, 0, len(a.sum))
	for skill, sum := range a.sum {
		out = append(out, domain.SkillScore{Skill: skill, Score: sum / float64(a.count[skill])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out
}

// NopPlagiarismChecker reports zero similarity; the default wiring until an
// external checker is configured.
type NopPlagiarismChecker struct{}

// Check implements domain.PlagiarismChecker.
func (NopPlagiarismChecker) Check(_ domain.Context, _ string, _, _ []string) (domain.PlagiarismReport, error) {
	return domain.PlagiarismReport{}, nil
}
