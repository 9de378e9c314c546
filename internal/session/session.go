// Package session holds the explicit, per-run mutable state ubifsck
// threads through every package instead of a process-wide global
// (spec.md §9, "Shared mutable state": "pass a session context
// explicitly; keep the exit-code accumulator as a field on it rather
// than a global. The assertion-failure callback becomes a
// session-installed hook.").
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ubifsck/ubifsck/internal/auth"
	"github.com/ubifsck/ubifsck/internal/device"
	"github.com/ubifsck/ubifsck/internal/logger"
	"github.com/ubifsck/ubifsck/internal/metrics"
	"github.com/ubifsck/ubifsck/internal/problem"
)

// AssertFunc is installed by the caller to translate an internal
// invariant violation into whatever the embedding program wants
// (panic, log-and-exit, test failure) rather than the session package
// making that call itself.
type AssertFunc func(format string, args ...interface{})

// Reason is the small consistency-failure-reason bitset spec.md §7
// describes: low-level code sets a reason, higher-level code inspects,
// clears, and decides.
type Reason uint8

const (
	ReasonNone Reason = 0
	ReasonDataCorrupted Reason = 1 << (iota - 1)
	ReasonTncCorrupted
	ReasonLptCorrupted
	ReasonLptIncorrect
)

// Session is the explicit state threaded through a single ubifsck run.
type Session struct {
	RunID uuid.UUID

	Volume device.Volume
	Auth   auth.Signer
	Metrics metrics.Handle

	Mode problem.Mode

	ExitCode problem.Accumulator

	reason Reason

	assert AssertFunc

	// TryRebuild is set by the consistency engine to request escalation
	// to the scavenging rebuilder; the top-level driver checks it after
	// each stage (spec.md §9, "Escalation from consistency engine to
	// rebuilder").
	TryRebuild bool
}

// New constructs a Session with a fresh run id and sane defaults; callers
// override Volume/Auth/Metrics/Mode before running any stage.
func New() *Session {
	return &Session{
		RunID:   uuid.New(),
		Auth:    auth.None{},
		Metrics: metrics.NoOp{},
		Mode:    problem.ModeNormal,
		assert:  defaultAssert,
	}
}

func defaultAssert(format string, args ...interface{}) {
	logger.Errorf("assertion failed: "+format, args...)
	panic(fmt.Sprintf(format, args...))
}

// SetAssertHook overrides the assertion-failure callback.
func (s *Session) SetAssertHook(f AssertFunc) { s.assert = f }

// Assert invokes the installed assertion hook if ok is false.
func (s *Session) Assert(ok bool, format string, args ...interface{}) {
	if !ok {
		s.assert(format, args...)
	}
}

// SetReason ORs bit into the session's consistency-failure reason set.
func (s *Session) SetReason(bit Reason) { s.reason |= bit }

// ReasonBits returns the currently-set consistency-failure reasons.
func (s *Session) ReasonBits() Reason { return s.reason }

// ClearReason clears bit from the reason set, the "inspect, clear, and
// decide" step of spec.md §7's propagation policy.
func (s *Session) ClearReason(bit Reason) { s.reason &^= bit }

// HasReason reports whether bit is currently set.
func (s *Session) HasReason(bit Reason) bool { return s.reason&bit != 0 }
