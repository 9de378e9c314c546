package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ubifsck/ubifsck/internal/problem"
	"github.com/ubifsck/ubifsck/internal/session"
)

func TestNewAssignsRunID(t *testing.T) {
	s := session.New()
	assert.NotEqual(t, [16]byte{}, s.RunID)
}

func TestReasonSetClearHas(t *testing.T) {
	s := session.New()
	assert.False(t, s.HasReason(session.ReasonTncCorrupted))

	s.SetReason(session.ReasonTncCorrupted)
	assert.True(t, s.HasReason(session.ReasonTncCorrupted))
	assert.False(t, s.HasReason(session.ReasonLptCorrupted))

	s.ClearReason(session.ReasonTncCorrupted)
	assert.False(t, s.HasReason(session.ReasonTncCorrupted))
}

func TestReasonBitsAreDistinct(t *testing.T) {
	assert.NotEqual(t, session.ReasonDataCorrupted, session.ReasonTncCorrupted)
	assert.NotEqual(t, session.ReasonTncCorrupted, session.ReasonLptCorrupted)
	assert.NotEqual(t, session.ReasonLptCorrupted, session.ReasonLptIncorrect)
}

func TestAssertHookOverride(t *testing.T) {
	s := session.New()
	var called bool
	s.SetAssertHook(func(format string, args ...interface{}) { called = true })

	s.Assert(false, "should not happen: %d", 42)
	assert.True(t, called)
}

func TestAssertDoesNotFireWhenOK(t *testing.T) {
	s := session.New()
	var called bool
	s.SetAssertHook(func(format string, args ...interface{}) { called = true })

	s.Assert(true, "fine")
	assert.False(t, called)
}

func TestExitCodeAccumulatorRecordsDecisions(t *testing.T) {
	s := session.New()
	s.ExitCode.RecordDecision(problem.Decision{Kind: problem.LpIncorrect, Fix: true})
	assert.Equal(t, problem.ExitErrorsCorrected, s.ExitCode.Code())
}
