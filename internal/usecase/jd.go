// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/textx"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/token"
)

// linkMintAttempts bounds re-mints when a freshly minted assessment link
// collides with an existing one.
const linkMintAttempts = 5

// defaultNumSets is used when parsing seeds the assessment config.
const defaultNumSets = 3

// JDService drives the job description lifecycle: upload, AI parsing,
// configuration, and link generation with set provisioning.
type JDService struct {
	JDs     domain.JDRepository
	Sets    domain.SetRepository
	AI      domain.AIClient
	Extract domain.TextExtractor
	SetGen  SetGenService
	Cfg     config.Config
	Now     func() time.Time
}

// NewJDService constructs a JDService.
func NewJDService(jds domain.JDRepository, sets domain.SetRepository, ai domain.AIClient, extract domain.TextExtractor, setgen SetGenService, cfg config.Config) JDService {
	return JDService{JDs: jds, Sets: sets, AI: ai, Extract: extract, SetGen: setgen, Cfg: cfg, Now: time.Now}
}

func (s JDService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Upload creates a draft JD from raw text or an uploaded file. When a file
// path is given its text is extracted and sanitized first.
func (s JDService) Upload(ctx domain.Context, companyID, recruiterID, rawText, fileName, filePath string) (domain.JobDescription, error) {
	if filePath != "" {
		extracted, err := s.Extract.ExtractPath(ctx, fileName, filePath)
		if err != nil {
			return domain.JobDescription{}, fmt.Errorf("op=jd.upload: extract: %w", err)
		}
		rawText = extracted
	}
	rawText = textx.SanitizeText(rawText)
	if len(rawText) < 50 {
		return domain.JobDescription{}, fmt.Errorf("%w: job description text too short", domain.ErrValidation)
	}
	jd := domain.JobDescription{
		CompanyID:   companyID,
		RecruiterID: recruiterID,
		RawText:     rawText,
		FileRef:     fileName,
		Status:      domain.JDDraft,
	}
	id, err := s.JDs.Create(ctx, jd)
	if err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.upload: %w", err)
	}
	return s.JDs.Get(ctx, id)
}

// Get returns the JD with its window-derived effective status applied.
func (s JDService) Get(ctx domain.Context, id string) (domain.JobDescription, error) {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return domain.JobDescription{}, err
	}
	jd.Status = jd.EffectiveStatus(s.now())
	return jd, nil
}

// List returns a page of JDs for a company, effective statuses applied.
func (s JDService) List(ctx domain.Context, companyID string, limit, offset int) ([]domain.JobDescription, error) {
	jds, err := s.JDs.List(ctx, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range jds {
		jds[i].Status = jds[i].EffectiveStatus(now)
	}
	return jds, nil
}

// Parse extracts structure from the raw JD text via the LLM and seeds the
// default assessment config for the detected experience level. Idempotent:
// an already parsed JD is returned as-is without an LLM call. A parse failure
// reverts the JD to draft and appends the error to parsing metadata.
func (s JDService) Parse(ctx domain.Context, id string) (domain.JobDescription, error) {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return domain.JobDescription{}, err
	}
	if jd.Status == domain.JDParsed && jd.Parsed != nil {
		return jd, nil
	}
	if jd.Status != domain.JDDraft {
		return domain.JobDescription{}, fmt.Errorf("%w: cannot parse jd in status %s", domain.ErrConflict, jd.Status)
	}
	if err := s.JDs.UpdateStatus(ctx, id, jd.Status, domain.JDParsing); err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.parse: %w", err)
	}

	parsed, res, err := s.parseWithLLM(ctx, jd.RawText)
	if err != nil {
		s.revertParse(ctx, id, err)
		return domain.JobDescription{}, fmt.Errorf("op=jd.parse: %w", err)
	}

	cfg := domain.AssessmentConfig{
		Sections:             domain.DefaultSectionConfig(parsed.ExperienceLevel),
		CutoffScore:          domain.DefaultCutoffScore,
		ResumeMatchThreshold: domain.DefaultResumeMatchThreshold,
		NumSets:              defaultNumSets,
	}
	cfg.RecomputeTotalTime()

	at := s.now()
	meta := domain.ParsingMeta{
		ParsedAt:   &at,
		Model:      res.Model,
		TokensUsed: res.PromptTokens + res.CompletionTokens,
	}
	if err := s.JDs.SetParsed(ctx, id, parsed, cfg, meta); err != nil {
		s.revertParse(ctx, id, err)
		return domain.JobDescription{}, fmt.Errorf("op=jd.parse: persist: %w", err)
	}
	if err := s.JDs.UpdateStatus(ctx, id, domain.JDParsing, domain.JDParsed); err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.parse: %w", err)
	}
	slog.Info("jd parsed", slog.String("jd_id", id),
		slog.String("level", parsed.ExperienceLevel), slog.String("model", res.Model))
	return s.JDs.Get(ctx, id)
}

func (s JDService) revertParse(ctx domain.Context, id string, cause error) {
	if err := s.JDs.UpdateStatus(ctx, id, domain.JDParsing, domain.JDDraft); err != nil {
		slog.Error("jd parse revert failed", slog.String("jd_id", id), slog.Any("error", err))
	}
	if err := s.JDs.AppendParseError(ctx, id, cause.Error()); err != nil {
		slog.Error("jd parse error append failed", slog.String("jd_id", id), slog.Any("error", err))
	}
}

const parseSystemPrompt = "You are a recruiting analyst. Extract structured data from job descriptions. Respond with JSON only."

const parseSchemaExample = `{"title":"...","role":"...","experienceLevel":"mid","technicalSkills":["..."],"softSkills":["..."],"responsibilities":["..."],"requirements":["..."],"summary":"..."}`

func (s JDService) parseWithLLM(ctx domain.Context, raw string) (domain.ParsedContent, domain.AICallResult, error) {
	prompt := fmt.Sprintf(
		"Extract the following from this job description: title, role, experienceLevel (one of %v), technicalSkills, softSkills, responsibilities, requirements, and a 2-3 sentence summary.\n\nJob description:\n%s",
		domain.ExperienceLevels, raw)
	res, err := s.AI.Call(ctx, domain.AICallRequest{
		System:        parseSystemPrompt,
		Prompt:        prompt,
		JSONMode:      true,
		Temperature:   0.2,
		SchemaExample: parseSchemaExample,
	})
	if err != nil {
		return domain.ParsedContent{}, res, err
	}
	var parsed domain.ParsedContent
	if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
		return domain.ParsedContent{}, res, fmt.Errorf("decode parsed content: %v: %w", err, domain.ErrLLMBadJSON)
	}
	if !validExperienceLevel(parsed.ExperienceLevel) {
		parsed.ExperienceLevel = "mid"
	}
	return parsed, res, nil
}

func validExperienceLevel(level string) bool {
	for _, l := range domain.ExperienceLevels {
		if l == level {
			return true
		}
	}
	return false
}

// UpdateConfig applies a recruiter config edit. Once the JD is locked or the
// test window has opened, every field except endTime is frozen; an extension
// of endTime is still allowed so recruiters can widen a live window.
func (s JDService) UpdateConfig(ctx domain.Context, id string, cfg domain.AssessmentConfig) (domain.JobDescription, error) {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return domain.JobDescription{}, err
	}
	now := s.now()
	if jd.ConfigFrozen(now) {
		if !onlyEndTimeChanged(jd.Config, cfg) {
			return domain.JobDescription{}, fmt.Errorf("%w: configuration frozen, only endTime may change", domain.ErrForbidden)
		}
		next := jd.Config
		next.EndTime = cfg.EndTime
		if err := s.validateWindow(next); err != nil {
			return domain.JobDescription{}, err
		}
		if err := s.JDs.UpdateConfig(ctx, id, next); err != nil {
			return domain.JobDescription{}, fmt.Errorf("op=jd.updateConfig: %w", err)
		}
		return s.JDs.Get(ctx, id)
	}
	if err := cfg.ValidateWeights(); err != nil {
		return domain.JobDescription{}, err
	}
	if err := s.validateWindow(cfg); err != nil {
		return domain.JobDescription{}, err
	}
	if cfg.NumSets < 1 || cfg.NumSets > 10 {
		return domain.JobDescription{}, fmt.Errorf("%w: numSets must be between 1 and 10", domain.ErrValidation)
	}
	cfg.RecomputeTotalTime()
	if err := s.JDs.UpdateConfig(ctx, id, cfg); err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.updateConfig: %w", err)
	}
	return s.JDs.Get(ctx, id)
}

func (s JDService) validateWindow(cfg domain.AssessmentConfig) error {
	if cfg.StartTime != nil && cfg.EndTime != nil && !cfg.StartTime.Before(*cfg.EndTime) {
		return fmt.Errorf("%w: startTime must be before endTime", domain.ErrValidation)
	}
	return nil
}

// onlyEndTimeChanged reports whether next differs from cur in no field other
// than EndTime.
func onlyEndTimeChanged(cur, next domain.AssessmentConfig) bool {
	cur.EndTime = nil
	next.EndTime = nil
	a, _ := json.Marshal(cur)
	b, _ := json.Marshal(next)
	return string(a) == string(b)
}

// UpdateSkills overrides the parsed skill list used for set generation.
// Frozen once the window opens or the JD is locked.
func (s JDService) UpdateSkills(ctx domain.Context, id string, skills []string) error {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return err
	}
	if jd.ConfigFrozen(s.now()) {
		return fmt.Errorf("%w: skills frozen after assessment start", domain.ErrForbidden)
	}
	if err := s.JDs.UpdateSkills(ctx, id, skills); err != nil {
		return fmt.Errorf("op=jd.updateSkills: %w", err)
	}
	return nil
}

// UpdateRubric replaces the evaluation rubric. Frozen once the window opens
// or the JD is locked.
func (s JDService) UpdateRubric(ctx domain.Context, id, rubric string) error {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return err
	}
	if jd.ConfigFrozen(s.now()) {
		return fmt.Errorf("%w: rubric frozen after assessment start", domain.ErrForbidden)
	}
	if err := s.JDs.UpdateRubric(ctx, id, rubric); err != nil {
		return fmt.Errorf("op=jd.updateRubric: %w", err)
	}
	return nil
}

// SetLocked toggles the recruiter lock that freezes configuration ahead of
// the window opening.
func (s JDService) SetLocked(ctx domain.Context, id string, locked bool) error {
	if _, err := s.JDs.Get(ctx, id); err != nil {
		return err
	}
	if err := s.JDs.SetLocked(ctx, id, locked, s.now()); err != nil {
		return fmt.Errorf("op=jd.setLocked: %w", err)
	}
	return nil
}

// GenerateLink mints the public assessment link and provisions question sets.
// Requires a parsed or ready JD with a valid window. The mint retries on link
// collision; set generation runs synchronously, and failure reverts the JD to
// parsed with the error recorded.
func (s JDService) GenerateLink(ctx domain.Context, id string) (domain.JobDescription, error) {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return domain.JobDescription{}, err
	}
	if jd.Status != domain.JDParsed && jd.Status != domain.JDReady {
		return domain.JobDescription{}, fmt.Errorf("%w: link generation requires a parsed jd, status is %s", domain.ErrConflict, jd.Status)
	}
	if jd.Config.StartTime == nil || jd.Config.EndTime == nil {
		return domain.JobDescription{}, fmt.Errorf("%w: startTime and endTime must be set before link generation", domain.ErrValidation)
	}
	if !jd.Config.StartTime.Before(*jd.Config.EndTime) {
		return domain.JobDescription{}, fmt.Errorf("%w: startTime must be before endTime", domain.ErrValidation)
	}

	if jd.AssessmentLink == "" {
		if err := s.mintLink(ctx, id); err != nil {
			return domain.JobDescription{}, err
		}
	}
	if err := s.JDs.UpdateStatus(ctx, id, jd.Status, domain.JDGeneratingSets); err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.generateLink: %w", err)
	}

	setIDs, err := s.SetGen.GenerateSets(ctx, jd)
	if err != nil {
		s.revertGeneration(ctx, id, err)
		return domain.JobDescription{}, fmt.Errorf("op=jd.generateLink: %w", err)
	}
	if err := s.JDs.SetSetIDs(ctx, id, setIDs); err != nil {
		s.revertGeneration(ctx, id, err)
		return domain.JobDescription{}, fmt.Errorf("op=jd.generateLink: persist set ids: %w", err)
	}
	if err := s.JDs.UpdateStatus(ctx, id, domain.JDGeneratingSets, domain.JDReady); err != nil {
		return domain.JobDescription{}, fmt.Errorf("op=jd.generateLink: %w", err)
	}
	slog.Info("assessment link ready", slog.String("jd_id", id), slog.Int("sets", len(setIDs)))
	return s.JDs.Get(ctx, id)
}

func (s JDService) mintLink(ctx domain.Context, id string) error {
	for attempt := 0; attempt < linkMintAttempts; attempt++ {
		err := s.JDs.SetLink(ctx, id, token.NewAssessmentLink())
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("op=jd.mintLink: %w", err)
		}
		slog.Warn("assessment link collision, re-minting", slog.String("jd_id", id), slog.Int("attempt", attempt+1))
	}
	return fmt.Errorf("op=jd.mintLink: %d collisions in a row: %w", linkMintAttempts, domain.ErrInternal)
}

func (s JDService) revertGeneration(ctx domain.Context, id string, cause error) {
	if err := s.JDs.UpdateStatus(ctx, id, domain.JDGeneratingSets, domain.JDParsed); err != nil {
		slog.Error("set generation revert failed", slog.String("jd_id", id), slog.Any("error", err))
	}
	if err := s.JDs.AppendParseError(ctx, id, cause.Error()); err != nil {
		slog.Error("set generation error append failed", slog.String("jd_id", id), slog.Any("error", err))
	}
}

// Close moves a JD to closed from any non-terminal status.
func (s JDService) Close(ctx domain.Context, id string) error {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return err
	}
	if jd.Status == domain.JDClosed {
		return nil
	}
	if !domain.CanTransitionJD(jd.Status, domain.JDClosed) {
		return fmt.Errorf("%w: cannot close jd in status %s", domain.ErrConflict, jd.Status)
	}
	if err := s.JDs.UpdateStatus(ctx, id, jd.Status, domain.JDClosed); err != nil {
		return fmt.Errorf("op=jd.close: %w", err)
	}
	return nil
}

// Delete removes a JD and its sets. Forbidden while the assessment window is
// live to protect in-flight candidates.
func (s JDService) Delete(ctx domain.Context, id string) error {
	jd, err := s.JDs.Get(ctx, id)
	if err != nil {
		return err
	}
	if jd.EffectiveStatus(s.now()) == domain.JDActive {
		return fmt.Errorf("%w: cannot delete a live jd", domain.ErrForbidden)
	}
	if err := s.Sets.DeleteByJD(ctx, id); err != nil {
		return fmt.Errorf("op=jd.delete: sets: %w", err)
	}
	if err := s.JDs.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=jd.delete: %w", err)
	}
	return nil
}
