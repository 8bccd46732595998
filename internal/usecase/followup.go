package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/textx"
)

// recentQuestionWindow is how many prior questions the duplicate check
// compares against.
const recentQuestionWindow = 6

// FollowUpService is the adaptive follow-up engine: a detector LLM proposes,
// budget heuristics dispose, and a generator LLM produces the question. Every
// failure path degrades to "no follow-up" — the answer flow never breaks on
// this engine's account.
type FollowUpService struct {
	Interviews domain.InterviewRepository
	AI         domain.AIClient
}

// NewFollowUpService constructs a FollowUpService.
func NewFollowUpService(interviews domain.InterviewRepository, ai domain.AIClient) FollowUpService {
	return FollowUpService{Interviews: interviews, AI: ai}
}

// StartInterview provisions follow-up metadata for a candidate. Idempotent:
// an existing interview is returned unchanged.
func (s FollowUpService) StartInterview(ctx domain.Context, candidateID string, baseCount, minQuestions, maxQuestions int) (domain.InterviewMetadata, error) {
	if baseCount < 1 {
		return domain.InterviewMetadata{}, fmt.Errorf("%w: base question count required", domain.ErrValidation)
	}
	if maxQuestions < baseCount {
		return domain.InterviewMetadata{}, fmt.Errorf("%w: maxQuestions must cover the base questions", domain.ErrValidation)
	}
	m := domain.InterviewMetadata{
		CandidateAssessmentID: candidateID,
		MinQuestions:          minQuestions,
		MaxQuestions:          maxQuestions,
		BaseQuestionCount:     baseCount,
		CurrentTotalQuestions: baseCount,
		Status:                domain.InterviewActive,
	}
	id, err := s.Interviews.CreateMetadata(ctx, m)
	if err != nil {
		if isConflict(err) {
			return s.Interviews.GetMetadataByCandidate(ctx, candidateID)
		}
		return domain.InterviewMetadata{}, fmt.Errorf("op=followup.start: %w", err)
	}
	return s.Interviews.GetMetadata(ctx, id)
}

// Interview returns the follow-up metadata and questions for display.
func (s FollowUpService) Interview(ctx domain.Context, interviewID string) (domain.InterviewMetadata, []domain.FollowUpQuestion, error) {
	m, err := s.Interviews.GetMetadata(ctx, interviewID)
	if err != nil {
		return domain.InterviewMetadata{}, nil, err
	}
	fus, err := s.Interviews.ListFollowUps(ctx, interviewID)
	if err != nil {
		return domain.InterviewMetadata{}, nil, fmt.Errorf("op=followup.interview: %w", err)
	}
	return m, fus, nil
}

// ProcessAnswer runs the detector and heuristics for one completed base
// answer and, when admitted, generates and persists a follow-up. A nil
// question with nil error means "no follow-up"; detector and generator
// failures land there too.
func (s FollowUpService) ProcessAnswer(ctx domain.Context, interviewID string, baseIndex int, question, answer string) (*domain.FollowUpQuestion, error) {
	m, err := s.Interviews.GetMetadata(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.InterviewActive {
		return nil, nil
	}
	if baseIndex < 0 || baseIndex >= m.BaseQuestionCount {
		return nil, fmt.Errorf("%w: base index %d out of range", domain.ErrValidation, baseIndex)
	}

	det, err := s.detect(ctx, question, answer)
	if err != nil {
		slog.Warn("follow-up detector failed, skipping",
			slog.String("interview_id", interviewID), slog.Any("error", err))
		return nil, nil
	}

	perBase, err := s.Interviews.CountFollowUpsForBase(ctx, interviewID, baseIndex)
	if err != nil {
		slog.Error("follow-up count lookup failed", slog.String("interview_id", interviewID), slog.Any("error", err))
		return nil, nil
	}

	approved, reason := admitFollowUp(m, det, baseIndex, perBase)
	if err := s.Interviews.RecordDetectorCall(ctx, interviewID, det.Confidence, approved); err != nil {
		slog.Error("detector call record failed", slog.String("interview_id", interviewID), slog.Any("error", err))
	}
	if !approved {
		slog.Info("follow-up rejected", slog.String("interview_id", interviewID),
			slog.Int("base_index", baseIndex), slog.String("reason", reason),
			slog.Float64("confidence", det.Confidence))
		return nil, nil
	}

	summarized := det.SummarizedAnswer
	if summarized == "" {
		summarized = answer
	}
	gen, err := s.generate(ctx, question, summarized, det.Reason, false)
	if err != nil {
		slog.Warn("follow-up generator failed, skipping",
			slog.String("interview_id", interviewID), slog.Any("error", err))
		return nil, nil
	}
	if s.isDuplicate(ctx, interviewID, gen.FollowUpQuestion) {
		gen, err = s.generate(ctx, question, summarized, det.Reason, true)
		if err != nil || s.isDuplicate(ctx, interviewID, gen.FollowUpQuestion) {
			slog.Info("follow-up duplicate after regeneration, skipping",
				slog.String("interview_id", interviewID))
			return nil, nil
		}
	}

	f := domain.FollowUpQuestion{
		InterviewID:    interviewID,
		BaseIndex:      baseIndex,
		SortKey:        domain.FollowUpSortKey(baseIndex, perBase+1),
		Question:       gen.FollowUpQuestion,
		ExpectedAnswer: gen.ExpectedAnswer,
		DetectorReason: det.Reason,
		Confidence:     det.Confidence,
	}
	id, err := s.Interviews.InsertFollowUp(ctx, f)
	if err != nil {
		if isConflict(err) {
			// Lost the sort-key race to a concurrent processor; theirs stands.
			slog.Info("follow-up insert lost race", slog.String("interview_id", interviewID),
				slog.Int("sort_key", f.SortKey))
			return nil, nil
		}
		return nil, fmt.Errorf("op=followup.process: %w", err)
	}
	f.ID = id
	slog.Info("follow-up generated", slog.String("interview_id", interviewID),
		slog.Int("base_index", baseIndex), slog.Int("sort_key", f.SortKey))
	return &f, nil
}

// admitFollowUp applies the budget heuristics. The confidence bar rises for
// the admission that would reach the target count; once the target is
// reached or slots cannot cover the remaining bases, no confidence admits.
func admitFollowUp(m domain.InterviewMetadata, det domain.DetectorResult, baseIndex, perBase int) (bool, string) {
	if !det.NeedFollowUp {
		return false, "detector declined follow-up"
	}
	target := domain.TargetFollowUps(m.BaseQuestionCount, m.MaxQuestions)
	minConf := domain.DetectorConfidenceMin
	if m.FollowupCount+1 >= target {
		minConf = domain.DetectorConfidenceAtTarget
	}
	if det.Confidence < minConf {
		return false, fmt.Sprintf("confidence %.2f below %.2f threshold", det.Confidence, minConf)
	}
	slots := m.MaxQuestions - m.CurrentTotalQuestions
	if m.FollowupCount >= target || slots <= 0 {
		return false, "target follow-ups reached, limited slots remaining"
	}
	remainingBases := m.BaseQuestionCount - 1 - baseIndex
	if remainingBases < 0 {
		remainingBases = 0
	}
	if slots-1 < remainingBases {
		return false, "remaining slots reserved for later base questions"
	}
	if perBase >= domain.MaxFollowUpsPerBase {
		return false, fmt.Sprintf("per-question cap of %d follow-ups reached", domain.MaxFollowUpsPerBase)
	}
	return true, ""
}

const detectorSystem = "You are a follow-up detector for technical interviews. Judge whether the answer warrants one clarifying follow-up question. Respond with JSON only."

const detectorSchema = `{"need_follow_up":false,"confidence":0.0,"reason":"...","summarized_answer":"..."}`

func (s FollowUpService) detect(ctx domain.Context, question, answer string) (domain.DetectorResult, error) {
	prompt := fmt.Sprintf(
		"Question: %s\n\nCandidate answer:\n%s\n\nDecide whether a follow-up would reveal meaningfully more about the candidate's depth. Summarize the answer in at most 200 tokens for downstream use.",
		question, answer)
	res, err := s.AI.Call(ctx, domain.AICallRequest{
		System:        detectorSystem,
		Prompt:        prompt,
		JSONMode:      true,
		Temperature:   0.1,
		SchemaExample: detectorSchema,
	})
	if err != nil {
		return domain.DetectorResult{}, err
	}
	var det domain.DetectorResult
	if err := json.Unmarshal([]byte(res.Content), &det); err != nil {
		return domain.DetectorResult{}, fmt.Errorf("decode detector result: %v: %w", err, domain.ErrLLMBadJSON)
	}
	if det.Confidence < 0 {
		det.Confidence = 0
	}
	if det.Confidence > 1 {
		det.Confidence = 1
	}
	return det, nil
}

const generatorSystem = "You are a technical interviewer. Produce exactly one focused follow-up question with its expected answer. Respond with JSON only."

const generatorSchema = `{"follow_up_question":"...","expected_answer":"..."}`

func (s FollowUpService) generate(ctx domain.Context, question, summarizedAnswer, reason string, stricter bool) (domain.GeneratedFollowUp, error) {
	prompt := fmt.Sprintf(
		"Original question: %s\n\nSummarized candidate answer: %s\n\nDetector reasoning: %s\n\nGenerate one follow-up question probing the gap the detector identified.",
		question, summarizedAnswer, reason)
	if stricter {
		prompt += "\nThe previous attempt duplicated an earlier question. Produce a clearly different question on a different aspect of the answer."
	}
	res, err := s.AI.Call(ctx, domain.AICallRequest{
		System:        generatorSystem,
		Prompt:        prompt,
		JSONMode:      true,
		Temperature:   0.7,
		SchemaExample: generatorSchema,
	})
	if err != nil {
		return domain.GeneratedFollowUp{}, err
	}
	var gen domain.GeneratedFollowUp
	if err := json.Unmarshal([]byte(res.Content), &gen); err != nil {
		return domain.GeneratedFollowUp{}, fmt.Errorf("decode generated follow-up: %v: %w", err, domain.ErrLLMBadJSON)
	}
	if gen.FollowUpQuestion == "" {
		return domain.GeneratedFollowUp{}, fmt.Errorf("empty follow-up question: %w", domain.ErrLLMBadJSON)
	}
	return gen, nil
}

// isDuplicate compares the candidate question against the recent window
// under whitespace and case normalization.
func (s FollowUpService) isDuplicate(ctx domain.Context, interviewID, question string) bool {
	recent, err := s.Interviews.RecentQuestions(ctx, interviewID, recentQuestionWindow)
	if err != nil {
		slog.Error("recent question lookup failed", slog.String("interview_id", interviewID), slog.Any("error", err))
		return false
	}
	norm := normalizeQuestion(question)
	for _, q := range recent {
		if normalizeQuestion(q) == norm {
			return true
		}
	}
	return false
}

func normalizeQuestion(q string) string {
	return strings.ToLower(textx.CollapseSpaces(q))
}
