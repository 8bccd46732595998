package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// SetGenService produces N independent question sets for a JD by fanning out
// one LLM call per enabled section. Calls run strictly sequentially with a
// small inter-call delay to stay within provider rate limits.
type SetGenService struct {
	AI   domain.AIClient
	Sets domain.SetRepository
	Cfg  config.Config
}

// NewSetGenService constructs a SetGenService.
func NewSetGenService(ai domain.AIClient, sets domain.SetRepository, cfg config.Config) SetGenService {
	return SetGenService{AI: ai, Sets: sets, Cfg: cfg}
}

// GenerateSets builds and persists all requested sets and returns their ids
// in order. Failure in any section aborts the whole run; partial sets are
// never persisted.
func (s SetGenService) GenerateSets(ctx domain.Context, jd domain.JobDescription) ([]string, error) {
	numSets := jd.Config.NumSets
	if numSets < 1 {
		numSets = 1
	}
	if numSets > 10 {
		numSets = 10
	}

	ids := make([]string, 0, numSets)
	for i := 0; i < numSets; i++ {
		set, err := s.generateOne(ctx, jd, i)
		if err != nil {
			return nil, fmt.Errorf("op=setgen.generate: set %d: %w", i, err)
		}
		id, err := s.Sets.Create(ctx, set)
		if err != nil {
			return nil, fmt.Errorf("op=setgen.generate: persist set %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s SetGenService) generateOne(ctx domain.Context, jd domain.JobDescription, index int) (domain.AssessmentSet, error) {
	set := domain.AssessmentSet{JDID: jd.ID, Index: index, IsActive: true}
	for _, sec := range domain.SectionOrder {
		sc, ok := jd.Config.Sections[sec]
		if !ok || !sc.Enabled || sc.QuestionCount <= 0 {
			continue
		}
		if err := s.pause(ctx); err != nil {
			return domain.AssessmentSet{}, err
		}
		res, err := s.AI.Call(ctx, domain.AICallRequest{
			System:        sectionSystemPrompt,
			Prompt:        sectionPrompt(jd, sec, sc.QuestionCount, index),
			JSONMode:      true,
			Temperature:   0.7,
			SchemaExample: sectionSchemaExample(sec),
		})
		if err != nil {
			return domain.AssessmentSet{}, fmt.Errorf("section %s: %w", sec, err)
		}
		raw, err := decodeQuestionArray(res.Content)
		if err != nil {
			return domain.AssessmentSet{}, fmt.Errorf("section %s: %v: %w", sec, err, domain.ErrLLMBadJSON)
		}
		if len(raw) > sc.QuestionCount {
			raw = raw[:sc.QuestionCount]
		}
		switch sec {
		case domain.SectionObjective:
			for i, r := range raw {
				set.Objective = append(set.Objective, normalizeObjective(r, i))
			}
		case domain.SectionSubjective:
			for i, r := range raw {
				set.Subjective = append(set.Subjective, normalizeSubjective(r, i))
			}
		case domain.SectionProgramming:
			for i, r := range raw {
				set.Programming = append(set.Programming, normalizeProgramming(r, i))
			}
		}
		slog.Info("section generated",
			slog.String("jd_id", jd.ID), slog.Int("set", index),
			slog.String("section", string(sec)), slog.Int("questions", len(raw)))
	}
	set.Finalize()
	if err := set.Validate(); err != nil {
		return domain.AssessmentSet{}, err
	}
	return set, nil
}

func (s SetGenService) pause(ctx domain.Context) error {
	delay := s.Cfg.SetGenInterCallDelay
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

const sectionSystemPrompt = "You are a technical assessment author. Respond with JSON only, no prose, no markdown fences."

func sectionPrompt(jd domain.JobDescription, sec domain.Section, count, setIndex int) string {
	var b strings.Builder
	role, level := "software engineer", "mid"
	if jd.Parsed != nil {
		if jd.Parsed.Role != "" {
			role = jd.Parsed.Role
		}
		if jd.Parsed.ExperienceLevel != "" {
			level = jd.Parsed.ExperienceLevel
		}
	}
	skills := jd.SkillsOverride
	if len(skills) == 0 && jd.Parsed != nil {
		skills = jd.Parsed.TechnicalSkills
	}
	fmt.Fprintf(&b, "Create %d %s questions for a %s-level %s candidate.\n", count, sectionLabel(sec), level, role)
	if len(skills) > 0 {
		fmt.Fprintf(&b, "Target skills: %s.\n", strings.Join(skills, ", "))
	}
	if jd.Rubric != "" {
		fmt.Fprintf(&b, "Evaluation rubric to align with:\n%s\n", jd.Rubric)
	}
	fmt.Fprintf(&b, "This is variant %d; vary topics and phrasing from other variants.\n", setIndex+1)
	switch sec {
	case domain.SectionObjective:
		b.WriteString("Each question has 4 options with exactly one correct option.\n")
	case domain.SectionSubjective:
		b.WriteString("Each question includes an expected answer and a grading rubric. Candidates answer in at most 300 words.\n")
	case domain.SectionProgramming:
		b.WriteString("Each problem includes a description, starter code if helpful, and test cases: at least 1 visible sample (isHidden=false) and at least 2 hidden (isHidden=true), each with input, expectedOutput, and an integer weight.\n")
	}
	b.WriteString("Return a JSON array of question objects.")
	return b.String()
}

func sectionLabel(sec domain.Section) string {
	switch sec {
	case domain.SectionObjective:
		return "multiple-choice"
	case domain.SectionSubjective:
		return "open-ended written"
	case domain.SectionProgramming:
		return "programming"
	}
	return string(sec)
}

func sectionSchemaExample(sec domain.Section) string {
	switch sec {
	case domain.SectionObjective:
		return `[{"questionId":"objective_0","text":"...","options":[{"text":"...","isCorrect":true},{"text":"...","isCorrect":false}],"points":1,"difficulty":"medium"}]`
	case domain.SectionSubjective:
		return `[{"questionId":"subjective_0","text":"...","expectedAnswer":"...","rubric":"...","maxWords":300,"points":5,"difficulty":"medium"}]`
	case domain.SectionProgramming:
		return `[{"questionId":"programming_0","title":"...","description":"...","testCases":[{"input":"...","expectedOutput":"...","isHidden":false,"weight":1}],"points":10,"difficulty":"medium"}]`
	}
	return ""
}

// decodeQuestionArray accepts a top-level array, a {"questions": [...]} wrapper,
// or falls back to the first array-valued property of the object.
func decodeQuestionArray(content string) ([]json.RawMessage, error) {
	trim := strings.TrimSpace(content)
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(trim), &arr); err == nil {
		return arr, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trim), &obj); err != nil {
		return nil, fmt.Errorf("neither array nor object: %w", err)
	}
	if qs, ok := obj["questions"]; ok {
		if err := json.Unmarshal(qs, &arr); err == nil {
			return arr, nil
		}
	}
	for _, v := range obj {
		if json.Unmarshal(v, &arr) == nil && len(arr) > 0 {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no array-valued property found")
}

// Normalization treats every LLM field as optional and applies defaults; ids
// missing from the payload become <section>_<i>.

func normalizeObjective(raw json.RawMessage, i int) domain.ObjectiveQuestion {
	var aux struct {
		QuestionID string `json:"questionId"`
		Text       string `json:"text"`
		Question   string `json:"question"`
		Options    []struct {
			Text      string `json:"text"`
			IsCorrect bool   `json:"isCorrect"`
		} `json:"options"`
		Points     int    `json:"points"`
		Difficulty string `json:"difficulty"`
		Skill      string `json:"skill"`
	}
	_ = json.Unmarshal(raw, &aux)
	q := domain.ObjectiveQuestion{
		QuestionID: aux.QuestionID,
		Text:       firstNonEmpty(aux.Text, aux.Question),
		Points:     aux.Points,
		Difficulty: aux.Difficulty,
		Skill:      aux.Skill,
	}
	for _, o := range aux.Options {
		q.Options = append(q.Options, domain.ObjectiveOption{Text: o.Text, IsCorrect: o.IsCorrect})
	}
	if q.QuestionID == "" {
		q.QuestionID = fmt.Sprintf("objective_%d", i)
	}
	if q.Points <= 0 {
		q.Points = 1
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}
	return q
}

func normalizeSubjective(raw json.RawMessage, i int) domain.SubjectiveQuestion {
	var aux struct {
		QuestionID     string `json:"questionId"`
		Text           string `json:"text"`
		Question       string `json:"question"`
		ExpectedAnswer string `json:"expectedAnswer"`
		Rubric         string `json:"rubric"`
		MaxWords       int    `json:"maxWords"`
		Points         int    `json:"points"`
		Difficulty     string `json:"difficulty"`
		Skill          string `json:"skill"`
	}
	_ = json.Unmarshal(raw, &aux)
	q := domain.SubjectiveQuestion{
		QuestionID:     aux.QuestionID,
		Text:           firstNonEmpty(aux.Text, aux.Question),
		ExpectedAnswer: aux.ExpectedAnswer,
		Rubric:         aux.Rubric,
		MaxWords:       aux.MaxWords,
		Points:         aux.Points,
		Difficulty:     aux.Difficulty,
		Skill:          aux.Skill,
	}
	if q.QuestionID == "" {
		q.QuestionID = fmt.Sprintf("subjective_%d", i)
	}
	if q.MaxWords <= 0 {
		q.MaxWords = 300
	}
	if q.Points <= 0 {
		q.Points = 5
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}
	return q
}

func normalizeProgramming(raw json.RawMessage, i int) domain.ProgrammingQuestion {
	var aux struct {
		QuestionID  string `json:"questionId"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Text        string `json:"text"`
		StarterCode string `json:"starterCode"`
		TestCases   []struct {
			Input          string `json:"input"`
			ExpectedOutput string `json:"expectedOutput"`
			Output         string `json:"output"`
			IsHidden       bool   `json:"isHidden"`
			Weight         int    `json:"weight"`
		} `json:"testCases"`
		Points     int    `json:"points"`
		Difficulty string `json:"difficulty"`
		Skill      string `json:"skill"`
	}
	_ = json.Unmarshal(raw, &aux)
	q := domain.ProgrammingQuestion{
		QuestionID:  aux.QuestionID,
		Title:       aux.Title,
		Description: firstNonEmpty(aux.Description, aux.Text),
		StarterCode: aux.StarterCode,
		Points:      aux.Points,
		Difficulty:  aux.Difficulty,
		Skill:       aux.Skill,
	}
	for _, tc := range aux.TestCases {
		w := tc.Weight
		if w <= 0 {
			w = 1
		}
		q.TestCases = append(q.TestCases, domain.TestCase{
			Input:          tc.Input,
			ExpectedOutput: firstNonEmpty(tc.ExpectedOutput, tc.Output),
			IsHidden:       tc.IsHidden,
			Weight:         w,
		})
	}
	if q.QuestionID == "" {
		q.QuestionID = fmt.Sprintf("programming_%d", i)
	}
	if q.Points <= 0 {
		q.Points = 10
	}
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}
	return q
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
