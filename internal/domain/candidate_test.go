package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionCandidate(t *testing.T) {
	assert.True(t, CanTransitionCandidate(CandidateInvited, CandidateOnboarding))
	assert.True(t, CanTransitionCandidate(CandidateReady, CandidateInProgress))
	assert.True(t, CanTransitionCandidate(CandidateInProgress, CandidateSubmitted))
	assert.True(t, CanTransitionCandidate(CandidateOnboarding, CandidateDecided), "forward jumps are legal")

	assert.False(t, CanTransitionCandidate(CandidateSubmitted, CandidateInProgress), "no going back")
	assert.False(t, CanTransitionCandidate(CandidateDecided, CandidateEvaluated))
	assert.False(t, CanTransitionCandidate(CandidateReady, CandidateReady), "self transition is not a move")
	assert.False(t, CanTransitionCandidate("bogus", CandidateReady))
}

func TestIsOnboardingComplete(t *testing.T) {
	c := CandidateAssessment{
		Onboarding: OnboardingState{EmailVerified: true, ProfilePhotoCaptured: true, ConsentAccepted: true},
		Resume:     &ResumeBlock{PassedThreshold: true},
	}
	assert.True(t, c.IsOnboardingComplete())

	c.Resume.PassedThreshold = false
	assert.False(t, c.IsOnboardingComplete())

	c.Resume = nil
	assert.False(t, c.IsOnboardingComplete())

	c = CandidateAssessment{Resume: &ResumeBlock{PassedThreshold: true}}
	assert.False(t, c.IsOnboardingComplete(), "all four gates are required")
}
