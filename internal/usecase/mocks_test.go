package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/internal/service/ratelimiter"
)

// In-memory fakes for the domain ports. They enforce the same guards the
// postgres repos do (status-guarded updates, unique indexes) so concurrency
// semantics can be exercised without a database.

type fakeJDRepo struct {
	mu        sync.Mutex
	jds       map[string]domain.JobDescription
	seq       int
	linkFails int // forced link collisions before SetLink succeeds
}

func newFakeJDRepo() *fakeJDRepo {
	return &fakeJDRepo{jds: map[string]domain.JobDescription{}}
}

func (r *fakeJDRepo) Create(_ domain.Context, jd domain.JobDescription) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	jd.ID = fmt.Sprintf("jd-%d", r.seq)
	if jd.Status == "" {
		jd.Status = domain.JDDraft
	}
	jd.CreatedAt = time.Now()
	r.jds[jd.ID] = jd
	return jd.ID, nil
}

// cloneJD detaches the Sections map so callers mutating a returned
// JobDescription cannot reach the stored one, matching a real database read.
func cloneJD(jd domain.JobDescription) domain.JobDescription {
	if jd.Config.Sections != nil {
		sections := make(map[domain.Section]domain.SectionConfig, len(jd.Config.Sections))
		for k, v := range jd.Config.Sections {
			sections[k] = v
		}
		jd.Config.Sections = sections
	}
	return jd
}

func (r *fakeJDRepo) Get(_ domain.Context, id string) (domain.JobDescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd, ok := r.jds[id]
	if !ok {
		return domain.JobDescription{}, domain.ErrNotFound
	}
	return cloneJD(jd), nil
}

func (r *fakeJDRepo) GetByLink(_ domain.Context, link string) (domain.JobDescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, jd := range r.jds {
		if jd.AssessmentLink == link && link != "" {
			return cloneJD(jd), nil
		}
	}
	return domain.JobDescription{}, domain.ErrNotFound
}

func (r *fakeJDRepo) List(_ domain.Context, companyID string, _, _ int) ([]domain.JobDescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobDescription
	for _, jd := range r.jds {
		if companyID == "" || jd.CompanyID == companyID {
			out = append(out, cloneJD(jd))
		}
	}
	return out, nil
}

func (r *fakeJDRepo) UpdateStatus(_ domain.Context, id string, from, to domain.JDStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd, ok := r.jds[id]
	if !ok {
		return domain.ErrNotFound
	}
	if jd.Status != from {
		return fmt.Errorf("%w: status is %s, not %s", domain.ErrConflict, jd.Status, from)
	}
	jd.Status = to
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) SetParsed(_ domain.Context, id string, parsed domain.ParsedContent, cfg domain.AssessmentConfig, meta domain.ParsingMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.Parsed = &parsed
	jd.Config = cfg
	jd.Meta = meta
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) UpdateConfig(_ domain.Context, id string, cfg domain.AssessmentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.Config = cfg
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) UpdateSkills(_ domain.Context, id string, skills []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.SkillsOverride = skills
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) UpdateRubric(_ domain.Context, id, rubric string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.Rubric = rubric
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) SetLocked(_ domain.Context, id string, locked bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.IsLocked = locked
	if locked {
		jd.LockedAt = &at
	} else {
		jd.LockedAt = nil
	}
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) SetLink(_ domain.Context, id, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkFails > 0 {
		r.linkFails--
		return fmt.Errorf("%w: link taken", domain.ErrConflict)
	}
	for other, jd := range r.jds {
		if other != id && jd.AssessmentLink == link {
			return fmt.Errorf("%w: link taken", domain.ErrConflict)
		}
	}
	jd := r.jds[id]
	jd.AssessmentLink = link
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) SetSetIDs(_ domain.Context, id string, setIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.SetIDs = setIDs
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) AppendParseError(_ domain.Context, id, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	jd.Meta.ParseErrors = append(jd.Meta.ParseErrors, msg)
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) IncrementStat(_ domain.Context, id, stat string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	jd := r.jds[id]
	switch stat {
	case "totalInvited":
		jd.Stats.TotalInvited += delta
	case "inProgress":
		jd.Stats.InProgress += delta
	case "completedAssessments":
		jd.Stats.CompletedAssessments += delta
	default:
		return fmt.Errorf("%w: unknown stat %s", domain.ErrValidation, stat)
	}
	r.jds[id] = jd
	return nil
}

func (r *fakeJDRepo) Delete(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jds[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jds, id)
	return nil
}

type fakeSetRepo struct {
	mu   sync.Mutex
	sets map[string]domain.AssessmentSet
	seq  int
}

func newFakeSetRepo() *fakeSetRepo {
	return &fakeSetRepo{sets: map[string]domain.AssessmentSet{}}
}

func (r *fakeSetRepo) Create(_ domain.Context, s domain.AssessmentSet) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	s.ID = fmt.Sprintf("set-%d", r.seq)
	s.CreatedAt = time.Now()
	r.sets[s.ID] = s
	return s.ID, nil
}

func (r *fakeSetRepo) Get(_ domain.Context, id string) (domain.AssessmentSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[id]
	if !ok {
		return domain.AssessmentSet{}, domain.ErrNotFound
	}
	return s, nil
}

func (r *fakeSetRepo) ListByJD(_ domain.Context, jdID string) ([]domain.AssessmentSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AssessmentSet
	for _, s := range r.sets {
		if s.JDID == jdID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSetRepo) ListActiveByJD(ctx domain.Context, jdID string) ([]domain.AssessmentSet, error) {
	all, _ := r.ListByJD(ctx, jdID)
	var out []domain.AssessmentSet
	for _, s := range all {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSetRepo) SetActive(_ domain.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.IsActive = active
	r.sets[id] = s
	return nil
}

func (r *fakeSetRepo) DeleteByJD(_ domain.Context, jdID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sets {
		if s.JDID == jdID {
			delete(r.sets, id)
		}
	}
	return nil
}

type fakeCandidateRepo struct {
	mu    sync.Mutex
	cands map[string]domain.CandidateAssessment
	seq   int
}

func newFakeCandidateRepo() *fakeCandidateRepo {
	return &fakeCandidateRepo{cands: map[string]domain.CandidateAssessment{}}
}

func (r *fakeCandidateRepo) Create(_ domain.Context, c domain.CandidateAssessment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.cands {
		if e.Email == c.Email && e.JDID == c.JDID {
			return "", fmt.Errorf("%w: email already registered for jd", domain.ErrConflict)
		}
	}
	r.seq++
	c.ID = fmt.Sprintf("ca-%d", r.seq)
	if c.Status == "" {
		c.Status = domain.CandidateOnboarding
	}
	if c.IntegrityStatus == "" {
		c.IntegrityStatus = domain.IntegrityClear
	}
	if c.SectionProgress == nil {
		c.SectionProgress = map[domain.Section]domain.SectionProgress{}
	}
	c.CreatedAt = time.Now()
	r.cands[c.ID] = c
	return c.ID, nil
}

func (r *fakeCandidateRepo) Get(_ domain.Context, id string) (domain.CandidateAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[id]
	if !ok {
		return domain.CandidateAssessment{}, domain.ErrNotFound
	}
	return c, nil
}

func (r *fakeCandidateRepo) GetByEmailAndJD(_ domain.Context, email, jdID string) (domain.CandidateAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cands {
		if c.Email == email && c.JDID == jdID {
			return c, nil
		}
	}
	return domain.CandidateAssessment{}, domain.ErrNotFound
}

func (r *fakeCandidateRepo) GetBySessionToken(_ domain.Context, tok string) (domain.CandidateAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cands {
		if c.SessionToken != nil && *c.SessionToken == tok {
			return c, nil
		}
	}
	return domain.CandidateAssessment{}, domain.ErrNotFound
}

func (r *fakeCandidateRepo) ListByJD(_ domain.Context, jdID string, _, offset int) ([]domain.CandidateAssessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset > 0 {
		return nil, nil
	}
	var out []domain.CandidateAssessment
	for _, c := range r.cands {
		if c.JDID == jdID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCandidateRepo) UpdateStatus(_ domain.Context, id string, from, to domain.CandidateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != from {
		return fmt.Errorf("%w: status is %s, not %s", domain.ErrConflict, c.Status, from)
	}
	c.Status = to
	r.cands[id] = c
	return nil
}

func (r *fakeCandidateRepo) SetEmailVerified(_ domain.Context, id string, at time.Time) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.Onboarding.EmailVerified = true
		c.Onboarding.EmailVerifiedAt = &at
	})
}

func (r *fakeCandidateRepo) SetProfilePhoto(_ domain.Context, id, ref string, at time.Time) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.Onboarding.ProfilePhotoCaptured = true
		c.Onboarding.ProfilePhotoRef = ref
		c.Onboarding.PhotoCapturedAt = &at
	})
}

func (r *fakeCandidateRepo) SetConsent(_ domain.Context, id string, at time.Time) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.Onboarding.ConsentAccepted = true
		c.Onboarding.ConsentAcceptedAt = &at
	})
}

func (r *fakeCandidateRepo) SetResume(_ domain.Context, id string, rb domain.ResumeBlock) error {
	return r.update(id, func(c *domain.CandidateAssessment) { c.Resume = &rb })
}

func (r *fakeCandidateRepo) StartSession(_ domain.Context, id, setID, tok string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.CandidateReady {
		return fmt.Errorf("%w: not ready", domain.ErrConflict)
	}
	c.Status = domain.CandidateInProgress
	c.AssignedSetID = setID
	c.SessionToken = &tok
	c.StartedAt = &startedAt
	c.LastHeartbeat = &startedAt
	r.cands[id] = c
	return nil
}

func (r *fakeCandidateRepo) Heartbeat(_ domain.Context, id string, at time.Time) error {
	return r.update(id, func(c *domain.CandidateAssessment) { c.LastHeartbeat = &at })
}

func (r *fakeCandidateRepo) SetCurrentSection(_ domain.Context, id string, s domain.Section) error {
	return r.update(id, func(c *domain.CandidateAssessment) { c.CurrentSection = s })
}

func (r *fakeCandidateRepo) SetSectionProgress(_ domain.Context, id string, s domain.Section, p domain.SectionProgress) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		if c.SectionProgress == nil {
			c.SectionProgress = map[domain.Section]domain.SectionProgress{}
		}
		c.SectionProgress[s] = p
	})
}

func (r *fakeCandidateRepo) FinishSession(_ domain.Context, id string, submittedAt time.Time, timeSpent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[id]
	if !ok {
		return domain.ErrNotFound
	}
	if c.Status != domain.CandidateInProgress {
		return fmt.Errorf("%w: not in progress", domain.ErrConflict)
	}
	c.Status = domain.CandidateSubmitted
	c.SubmittedAt = &submittedAt
	c.TimeSpentSeconds = timeSpent
	c.CurrentSection = ""
	r.cands[id] = c
	return nil
}

func (r *fakeCandidateRepo) IncrementProctoring(_ domain.Context, id string, total, tabSwitches, faceIssues, high int) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.Proctoring.TotalEvents += total
		c.Proctoring.TabSwitches += tabSwitches
		c.Proctoring.FaceDetectionIssues += faceIssues
		c.Proctoring.HighSeverityEvents += high
	})
}

func (r *fakeCandidateRepo) FlagIntegrity(_ domain.Context, id string) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.IntegrityStatus = domain.IntegrityFlaggedUnderReview
	})
}

func (r *fakeCandidateRepo) ClearIntegrity(_ domain.Context, id string) error {
	return r.update(id, func(c *domain.CandidateAssessment) {
		c.IntegrityStatus = domain.IntegrityClear
	})
}

func (r *fakeCandidateRepo) AppendCommLog(_ domain.Context, id string, e domain.CommEntry) error {
	return r.update(id, func(c *domain.CandidateAssessment) { c.CommLog = append(c.CommLog, e) })
}

func (r *fakeCandidateRepo) update(id string, fn func(*domain.CandidateAssessment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cands[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&c)
	r.cands[id] = c
	return nil
}

type fakeAnswerRepo struct {
	mu   sync.Mutex
	docs map[string]domain.AssessmentAnswer
}

func newFakeAnswerRepo() *fakeAnswerRepo {
	return &fakeAnswerRepo{docs: map[string]domain.AssessmentAnswer{}}
}

func answerKey(caID string, s domain.Section) string { return caID + "/" + string(s) }

func (r *fakeAnswerRepo) EnsureSection(_ domain.Context, caID string, s domain.Section, startedAt time.Time) (domain.AssessmentAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, s)
	doc, ok := r.docs[key]
	if !ok {
		doc = domain.AssessmentAnswer{
			ID:                    key,
			CandidateAssessmentID: caID,
			Section:               s,
			SectionStartedAt:      &startedAt,
		}
		r.docs[key] = doc
	}
	return doc, nil
}

func (r *fakeAnswerRepo) Get(_ domain.Context, caID string, s domain.Section) (domain.AssessmentAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[answerKey(caID, s)]
	if !ok {
		return domain.AssessmentAnswer{}, domain.ErrNotFound
	}
	return doc, nil
}

func (r *fakeAnswerRepo) ListByCandidate(_ domain.Context, caID string) ([]domain.AssessmentAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AssessmentAnswer
	for _, s := range domain.SectionOrder {
		if doc, ok := r.docs[answerKey(caID, s)]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *fakeAnswerRepo) UpsertObjective(_ domain.Context, caID string, a domain.ObjectiveAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, domain.SectionObjective)
	doc := r.docs[key]
	for i := range doc.Objective {
		if doc.Objective[i].QuestionID == a.QuestionID {
			doc.Objective[i] = a
			r.docs[key] = doc
			return nil
		}
	}
	doc.Objective = append(doc.Objective, a)
	r.docs[key] = doc
	return nil
}

func (r *fakeAnswerRepo) UpsertSubjective(_ domain.Context, caID string, a domain.SubjectiveAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, domain.SectionSubjective)
	doc := r.docs[key]
	for i := range doc.Subjective {
		if doc.Subjective[i].QuestionID == a.QuestionID {
			doc.Subjective[i] = a
			r.docs[key] = doc
			return nil
		}
	}
	doc.Subjective = append(doc.Subjective, a)
	r.docs[key] = doc
	return nil
}

func (r *fakeAnswerRepo) UpsertProgramming(_ domain.Context, caID string, a domain.ProgrammingAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, domain.SectionProgramming)
	doc := r.docs[key]
	for i := range doc.Programming {
		if doc.Programming[i].QuestionID == a.QuestionID {
			doc.Programming[i] = a
			r.docs[key] = doc
			return nil
		}
	}
	doc.Programming = append(doc.Programming, a)
	r.docs[key] = doc
	return nil
}

func (r *fakeAnswerRepo) CountEntries(_ domain.Context, caID string, s domain.Section) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[answerKey(caID, s)].EntryCount(), nil
}

func (r *fakeAnswerRepo) SubmitSection(_ domain.Context, caID string, s domain.Section, at time.Time, timeSpent int, score, maxScore float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, s)
	doc, ok := r.docs[key]
	if !ok {
		return domain.ErrNotFound
	}
	if doc.IsSubmitted {
		return fmt.Errorf("%w: already submitted", domain.ErrConflict)
	}
	doc.IsSubmitted = true
	doc.SectionSubmittedAt = &at
	doc.TimeSpentSeconds = timeSpent
	doc.SectionScore = score
	doc.SectionMaxScore = maxScore
	r.docs[key] = doc
	return nil
}

func (r *fakeAnswerRepo) SetSubjectiveScore(_ domain.Context, caID, questionID string, score float64, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := answerKey(caID, domain.SectionSubjective)
	doc := r.docs[key]
	for i := range doc.Subjective {
		if doc.Subjective[i].QuestionID == questionID {
			doc.Subjective[i].AIScore = &score
			doc.Subjective[i].AIFeedback = feedback
			r.docs[key] = doc
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeEvalRepo struct {
	mu    sync.Mutex
	evals map[string]domain.Evaluation
}

func newFakeEvalRepo() *fakeEvalRepo {
	return &fakeEvalRepo{evals: map[string]domain.Evaluation{}}
}

func (r *fakeEvalRepo) Upsert(_ domain.Context, e domain.Evaluation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.evals[e.CandidateAssessmentID]; ok {
		e.AdminDecision = prev.AdminDecision
		e.AdminDecisionBy = prev.AdminDecisionBy
		e.AdminDecisionNote = prev.AdminDecisionNote
		e.AdminDecisionAt = prev.AdminDecisionAt
	}
	e.ID = "eval-" + e.CandidateAssessmentID
	r.evals[e.CandidateAssessmentID] = e
	return e.ID, nil
}

func (r *fakeEvalRepo) GetByCandidate(_ domain.Context, caID string) (domain.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.evals[caID]
	if !ok {
		return domain.Evaluation{}, domain.ErrNotFound
	}
	return e, nil
}

func (r *fakeEvalRepo) SetAdminDecision(_ domain.Context, caID string, d domain.AdminDecision, by, note string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.evals[caID]
	if !ok {
		return domain.ErrNotFound
	}
	e.AdminDecision = d
	e.AdminDecisionBy = by
	e.AdminDecisionNote = note
	e.AdminDecisionAt = &at
	r.evals[caID] = e
	return nil
}

type fakeInterviewRepo struct {
	mu        sync.Mutex
	meta      map[string]domain.InterviewMetadata
	followups []domain.FollowUpQuestion
	seq       int
}

func newFakeInterviewRepo() *fakeInterviewRepo {
	return &fakeInterviewRepo{meta: map[string]domain.InterviewMetadata{}}
}

func (r *fakeInterviewRepo) CreateMetadata(_ domain.Context, m domain.InterviewMetadata) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.meta {
		if e.CandidateAssessmentID == m.CandidateAssessmentID {
			return "", fmt.Errorf("%w: interview exists", domain.ErrConflict)
		}
	}
	r.seq++
	m.ID = fmt.Sprintf("iv-%d", r.seq)
	if m.Status == "" {
		m.Status = domain.InterviewActive
	}
	r.meta[m.ID] = m
	return m.ID, nil
}

func (r *fakeInterviewRepo) GetMetadata(_ domain.Context, id string) (domain.InterviewMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meta[id]
	if !ok {
		return domain.InterviewMetadata{}, domain.ErrNotFound
	}
	return m, nil
}

func (r *fakeInterviewRepo) GetMetadataByCandidate(_ domain.Context, caID string) (domain.InterviewMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.meta {
		if m.CandidateAssessmentID == caID {
			return m, nil
		}
	}
	return domain.InterviewMetadata{}, domain.ErrNotFound
}

func (r *fakeInterviewRepo) RecordDetectorCall(_ domain.Context, id string, confidence float64, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meta[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.AvgDetectorConfidence = (m.AvgDetectorConfidence*float64(m.DetectorCallCount) + confidence) / float64(m.DetectorCallCount+1)
	m.DetectorCallCount++
	if approved {
		m.ApprovedCount++
	} else {
		m.RejectedCount++
	}
	r.meta[id] = m
	return nil
}

func (r *fakeInterviewRepo) InsertFollowUp(_ domain.Context, f domain.FollowUpQuestion) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.followups {
		if e.InterviewID == f.InterviewID && e.SortKey == f.SortKey {
			return "", fmt.Errorf("%w: sort key %d taken", domain.ErrConflict, f.SortKey)
		}
	}
	r.seq++
	f.ID = fmt.Sprintf("fu-%d", r.seq)
	f.CreatedAt = time.Now()
	r.followups = append(r.followups, f)
	m := r.meta[f.InterviewID]
	m.FollowupCount++
	m.CurrentTotalQuestions++
	if f.SortKey > m.LastFollowupPosition {
		m.LastFollowupPosition = f.SortKey
	}
	r.meta[f.InterviewID] = m
	return f.ID, nil
}

func (r *fakeInterviewRepo) ListFollowUps(_ domain.Context, interviewID string) ([]domain.FollowUpQuestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FollowUpQuestion
	for _, f := range r.followups {
		if f.InterviewID == interviewID {
			out = append(out, f)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].SortKey < out[i].SortKey {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeInterviewRepo) CountFollowUpsForBase(_ domain.Context, interviewID string, baseIndex int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.followups {
		if f.InterviewID == interviewID && f.BaseIndex == baseIndex {
			n++
		}
	}
	return n, nil
}

func (r *fakeInterviewRepo) RecentQuestions(ctx domain.Context, interviewID string, n int) ([]string, error) {
	all, _ := r.ListFollowUps(ctx, interviewID)
	if n <= 0 {
		n = 5
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]string, len(all))
	for i, f := range all {
		out[i] = f.Question
	}
	return out, nil
}

type fakeProctoringRepo struct {
	mu     sync.Mutex
	events []domain.ProctoringEvent
	seq    int
}

func (r *fakeProctoringRepo) Append(_ domain.Context, e domain.ProctoringEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.ID = fmt.Sprintf("ev-%d", r.seq)
	r.events = append(r.events, e)
	return e.ID, nil
}

func (r *fakeProctoringRepo) ListByCandidate(_ domain.Context, caID string, _, _ int) ([]domain.ProctoringEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ProctoringEvent
	for _, e := range r.events {
		if e.CandidateAssessmentID == caID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeProctoringRepo) Review(_ domain.Context, id, reviewer, note string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].AdminReviewed = true
			r.events[i].ReviewedBy = reviewer
			r.events[i].AdminNote = note
			r.events[i].ReviewedAt = &at
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (r *fakeAuditRepo) Append(_ domain.Context, actor, action, subject string, detail map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, domain.AuditEntry{
		Actor: actor, Action: action, Subject: subject, Detail: detail, CreatedAt: time.Now(),
	})
	return nil
}

func (r *fakeAuditRepo) List(_ domain.Context, _, _ int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// aiSpy records every LLM request and answers via a pluggable handler.
type aiSpy struct {
	mu      sync.Mutex
	calls   []domain.AICallRequest
	handler func(req domain.AICallRequest) (string, error)
}

func (a *aiSpy) Call(_ domain.Context, req domain.AICallRequest) (domain.AICallResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	if a.handler == nil {
		return domain.AICallResult{Content: "{}", Model: "spy", Calls: 1}, nil
	}
	content, err := a.handler(req)
	if err != nil {
		return domain.AICallResult{}, err
	}
	return domain.AICallResult{Content: content, Model: "spy", Calls: 1}, nil
}

func (a *aiSpy) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// fakeSandbox passes or fails test cases via a pluggable judge; the default
// passes everything.
type fakeSandbox struct {
	judge func(code string, tc domain.TestCase) bool
}

func (s *fakeSandbox) Execute(_ domain.Context, _ string, _ int, _ string, _ domain.SandboxLimits) (domain.SandboxRun, error) {
	return domain.SandboxRun{Status: "Accepted"}, nil
}

func (s *fakeSandbox) RunTestCases(_ domain.Context, code string, _ int, tests []domain.TestCase) ([]domain.TestCaseResult, error) {
	out := make([]domain.TestCaseResult, 0, len(tests))
	for _, tc := range tests {
		passed := true
		if s.judge != nil {
			passed = s.judge(code, tc)
		}
		actual := tc.ExpectedOutput
		if !passed {
			actual = "wrong"
		}
		out = append(out, domain.TestCaseResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   actual,
			Passed:         passed,
			Hidden:         tc.IsHidden,
			Weight:         tc.Weight,
		})
	}
	return out, nil
}

func (s *fakeSandbox) Languages(_ domain.Context) ([]domain.SandboxLanguage, error) {
	return []domain.SandboxLanguage{{ID: 71, Name: "Python (3.8.1)"}}, nil
}

type fakeOTP struct {
	mu    sync.Mutex
	codes map[string]string
}

func newFakeOTP() *fakeOTP { return &fakeOTP{codes: map[string]string{}} }

func (o *fakeOTP) Issue(_ domain.Context, email, purpose string, _ time.Duration) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	code := "123456"
	o.codes[email+"/"+purpose] = code
	return code, nil
}

func (o *fakeOTP) Verify(_ domain.Context, email, purpose, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := email + "/" + purpose
	if o.codes[key] != code || code == "" {
		return domain.ErrAuthInvalid
	}
	delete(o.codes, key)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sends []string
}

func (m *fakeMailer) Send(_ domain.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, to+": "+subject)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (e *fakeExtractor) ExtractPath(_ domain.Context, _, _ string) (string, error) {
	return e.text, e.err
}

// stubLimiter returns a fixed verdict.
type stubLimiter struct {
	allowed bool
	retry   time.Duration
}

func (l stubLimiter) Allow(_ context.Context, _ string, _ int64) (bool, time.Duration, error) {
	return l.allowed, l.retry, nil
}

// openLimiter fails open, for tests that do not exercise rate limits.
var openLimiter = (*ratelimiter.RedisLuaLimiter)(nil)

// allSectionsConfig enables all three sections with weights 30/30/40.
func allSectionsConfig() domain.AssessmentConfig {
	return domain.AssessmentConfig{
		Sections: map[domain.Section]domain.SectionConfig{
			domain.SectionObjective:   {Enabled: true, QuestionCount: 3, TimeMinutes: 10, Weight: 30},
			domain.SectionSubjective:  {Enabled: true, QuestionCount: 1, TimeMinutes: 10, Weight: 30},
			domain.SectionProgramming: {Enabled: true, QuestionCount: 1, TimeMinutes: 10, Weight: 40},
		},
		TotalTimeMinutes:     30,
		CutoffScore:          60,
		ResumeMatchThreshold: 50,
		NumSets:              1,
	}
}

func openWindow(now time.Time) (*time.Time, *time.Time) {
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	return &start, &end
}

// sampleSet is a small valid set: three MCQs worth 1, 2, and 3 points with
// correct options 0, 1, and 2, one subjective question, and one programming
// question with one sample and two hidden test cases.
func sampleSet(jdID string) domain.AssessmentSet {
	set := domain.AssessmentSet{
		JDID:     jdID,
		IsActive: true,
		Objective: []domain.ObjectiveQuestion{
			{QuestionID: "objective_0", Text: "q0", Points: 1, Difficulty: "easy", Skill: "go",
				Options: []domain.ObjectiveOption{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}, {Text: "d"}}},
			{QuestionID: "objective_1", Text: "q1", Points: 2, Difficulty: "medium", Skill: "go",
				Options: []domain.ObjectiveOption{{Text: "a"}, {Text: "b", IsCorrect: true}, {Text: "c"}, {Text: "d"}}},
			{QuestionID: "objective_2", Text: "q2", Points: 3, Difficulty: "hard", Skill: "sql",
				Options: []domain.ObjectiveOption{{Text: "a"}, {Text: "b"}, {Text: "c", IsCorrect: true}, {Text: "d"}}},
		},
		Subjective: []domain.SubjectiveQuestion{
			{QuestionID: "subjective_0", Text: "explain indexes", ExpectedAnswer: "btree tradeoffs",
				Rubric: "depth and correctness", MaxWords: 300, Points: 5, Difficulty: "medium", Skill: "sql"},
		},
		Programming: []domain.ProgrammingQuestion{
			{QuestionID: "programming_0", Title: "sum", Description: "sum two ints", Points: 10, Difficulty: "medium", Skill: "go",
				TestCases: []domain.TestCase{
					{Input: "1 2", ExpectedOutput: "3", Weight: 1},
					{Input: "5 5", ExpectedOutput: "10", IsHidden: true, Weight: 2},
					{Input: "0 0", ExpectedOutput: "0", IsHidden: true, Weight: 2},
				}},
		},
	}
	set.Finalize()
	return set
}
