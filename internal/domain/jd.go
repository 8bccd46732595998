package domain

import (
	"fmt"
	"time"
)

// JDStatus enumerates the job description lifecycle.
type JDStatus string

const (
	JDDraft          JDStatus = "draft"
	JDParsing        JDStatus = "parsing"
	JDParsed         JDStatus = "parsed"
	JDGeneratingSets JDStatus = "generating_sets"
	JDReady          JDStatus = "ready"
	JDActive         JDStatus = "active"
	JDExpired        JDStatus = "expired"
	JDClosed         JDStatus = "closed"
)

// Section names a question section. The fixed serving order is
// objective, subjective, programming.
type Section string

const (
	SectionObjective   Section = "objective"
	SectionSubjective  Section = "subjective"
	SectionProgramming Section = "programming"
)

// SectionOrder is the fixed serving order of sections.
var SectionOrder = []Section{SectionObjective, SectionSubjective, SectionProgramming}

// ValidSection reports whether s names a known section.
func ValidSection(s Section) bool {
	for _, k := range SectionOrder {
		if k == s {
			return true
		}
	}
	return false
}

// NextEnabledSection returns the first enabled section after cur in fixed
// order, or "" when none remain.
func NextEnabledSection(cfg AssessmentConfig, cur Section) Section {
	seen := cur == ""
	for _, s := range SectionOrder {
		if !seen {
			if s == cur {
				seen = true
			}
			continue
		}
		if sc, ok := cfg.Sections[s]; ok && sc.Enabled && sc.QuestionCount > 0 {
			return s
		}
	}
	return ""
}

// SectionConfig configures one section of the assessment.
type SectionConfig struct {
	Enabled       bool `json:"enabled"`
	QuestionCount int  `json:"questionCount"`
	TimeMinutes   int  `json:"timeMinutes"`
	Weight        int  `json:"weight"`
}

// AssessmentConfig is the recruiter-editable assessment configuration block.
type AssessmentConfig struct {
	Sections             map[Section]SectionConfig `json:"sections"`
	TotalTimeMinutes     int                       `json:"totalTimeMinutes"`
	CutoffScore          int                       `json:"cutoffScore"`
	ResumeMatchThreshold int                       `json:"resumeMatchThreshold"`
	NumSets              int                       `json:"numSets"`
	StartTime            *time.Time                `json:"startTime,omitempty"`
	EndTime              *time.Time                `json:"endTime,omitempty"`
}

// RecomputeTotalTime sets TotalTimeMinutes to the sum of enabled section minutes.
func (c *AssessmentConfig) RecomputeTotalTime() {
	total := 0
	for _, sc := range c.Sections {
		if sc.Enabled {
			total += sc.TimeMinutes
		}
	}
	c.TotalTimeMinutes = total
}

// ValidateWeights checks that enabled section weights sum to 100.
// Enforced at config-write time only.
func (c AssessmentConfig) ValidateWeights() error {
	sum := 0
	enabled := 0
	for _, sc := range c.Sections {
		if sc.Enabled {
			sum += sc.Weight
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: at least one section must be enabled", ErrValidation)
	}
	if sum != 100 {
		return fmt.Errorf("%w: enabled section weights must sum to 100, got %d", ErrValidation, sum)
	}
	return nil
}

// Started reports whether the assessment window has opened.
func (c AssessmentConfig) Started(now time.Time) bool {
	return c.StartTime != nil && !now.Before(*c.StartTime)
}

// WithinWindow reports whether now falls inside [StartTime, EndTime].
func (c AssessmentConfig) WithinWindow(now time.Time) bool {
	if c.StartTime == nil || c.EndTime == nil {
		return false
	}
	return !now.Before(*c.StartTime) && !now.After(*c.EndTime)
}

// ParsedContent is the AI-extracted structure of a raw job description.
type ParsedContent struct {
	Title            string   `json:"title"`
	Role             string   `json:"role"`
	ExperienceLevel  string   `json:"experienceLevel"`
	TechnicalSkills  []string `json:"technicalSkills"`
	SoftSkills       []string `json:"softSkills"`
	Responsibilities []string `json:"responsibilities"`
	Requirements     []string `json:"requirements"`
	Summary          string   `json:"summary"`
}

// ParsingMeta records parse provenance and errors.
type ParsingMeta struct {
	ParsedAt    *time.Time `json:"parsedAt,omitempty"`
	Model       string     `json:"model,omitempty"`
	TokensUsed  int        `json:"tokensUsed,omitempty"`
	ParseErrors []string   `json:"parseErrors,omitempty"`
}

// JDStats carries denormalized counters maintained by atomic increments.
type JDStats struct {
	TotalInvited         int `json:"totalInvited"`
	InProgress           int `json:"inProgress"`
	CompletedAssessments int `json:"completedAssessments"`
}

// JobDescription is the unit of hiring intent.
type JobDescription struct {
	ID             string
	CompanyID      string
	RecruiterID    string
	RawText        string
	FileRef        string
	Status         JDStatus
	Parsed         *ParsedContent
	Config         AssessmentConfig
	Meta           ParsingMeta
	Stats          JDStats
	AssessmentLink string
	SetIDs         []string
	SkillsOverride []string
	Rubric         string
	IsLocked       bool
	LockedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// jdTransitions encodes the legal JD state machine edges.
var jdTransitions = map[JDStatus][]JDStatus{
	JDDraft:          {JDParsing, JDClosed},
	JDParsing:        {JDParsed, JDDraft},
	JDParsed:         {JDGeneratingSets, JDParsing, JDClosed},
	JDGeneratingSets: {JDReady, JDParsed},
	JDReady:          {JDActive, JDGeneratingSets, JDClosed},
	JDActive:         {JDExpired, JDClosed},
	JDExpired:        {JDClosed},
	JDClosed:         {},
}

// CanTransitionJD reports whether from→to is a legal JD transition.
func CanTransitionJD(from, to JDStatus) bool {
	for _, t := range jdTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// EffectiveStatus derives the window-dependent status for read paths:
// ready becomes active once startTime is reached, active becomes expired
// once endTime passes. Closed is terminal.
func (jd JobDescription) EffectiveStatus(now time.Time) JDStatus {
	st := jd.Status
	if st != JDReady && st != JDActive {
		return st
	}
	if jd.Config.EndTime != nil && now.After(*jd.Config.EndTime) {
		return JDExpired
	}
	if st == JDReady && jd.Config.Started(now) {
		return JDActive
	}
	return st
}

// ConfigFrozen reports whether all config fields except endTime are frozen:
// either the recruiter locked the JD or the test window has opened.
func (jd JobDescription) ConfigFrozen(now time.Time) bool {
	return jd.IsLocked || jd.Config.Started(now)
}

// ExperienceLevels the parser may emit, in seniority order.
var ExperienceLevels = []string{"fresher", "junior", "mid", "senior", "lead", "executive"}

// DefaultSectionConfig returns the default per-section configuration for an
// experience level. Unknown levels fall back to "mid".
func DefaultSectionConfig(level string) map[Section]SectionConfig {
	type row struct{ objQ, objMin, subQ, subMin, progQ, progMin int }
	table := map[string]row{
		"fresher":   {15, 20, 3, 20, 1, 30},
		"junior":    {15, 20, 3, 25, 2, 40},
		"mid":       {20, 25, 4, 30, 2, 50},
		"senior":    {20, 25, 5, 35, 2, 60},
		"lead":      {15, 20, 6, 40, 2, 60},
		"executive": {10, 15, 8, 45, 1, 40},
	}
	r, ok := table[level]
	if !ok {
		r = table["mid"]
	}
	return map[Section]SectionConfig{
		SectionObjective:   {Enabled: true, QuestionCount: r.objQ, TimeMinutes: r.objMin, Weight: 30},
		SectionSubjective:  {Enabled: true, QuestionCount: r.subQ, TimeMinutes: r.subMin, Weight: 30},
		SectionProgramming: {Enabled: true, QuestionCount: r.progQ, TimeMinutes: r.progMin, Weight: 40},
	}
}

// DefaultSectionWeights are used by evaluation when a JD carries no weights.
var DefaultSectionWeights = map[Section]int{
	SectionObjective:   30,
	SectionSubjective:  30,
	SectionProgramming: 40,
}

// DefaultCutoffScore is the recommendation banding cutoff when unset.
const DefaultCutoffScore = 60

// DefaultResumeMatchThreshold gates resume review when unset.
const DefaultResumeMatchThreshold = 50
