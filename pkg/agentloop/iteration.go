// Package agentloop implements the Tier 3 bounded tool-calling reasoning
// loop (spec §4.4): prompt → tool decision → execute → re-prompt, up to
// MAX_ITER iterations, using a native function-calling loop with a
// separate controller/strategy split.
package agentloop

// MaxConsecutiveTimeouts is the number of consecutive iteration timeouts
// that abort the loop early rather than burning through the remaining
// iteration budget on a provider that has stopped responding.
const MaxConsecutiveTimeouts = 2

// IterationState tracks the bounded loop's progress and consecutive
// failure streak.
type IterationState struct {
	CurrentIteration           int
	MaxIterations              int
	LastInteractionFailed      bool
	LastErrorMessage           string
	ConsecutiveTimeoutFailures int
}

// ShouldAbortOnTimeouts reports whether the consecutive-timeout streak
// has reached MaxConsecutiveTimeouts.
func (s *IterationState) ShouldAbortOnTimeouts() bool {
	return s.ConsecutiveTimeoutFailures >= MaxConsecutiveTimeouts
}

// RecordSuccess clears the failure streak after a successful iteration.
func (s *IterationState) RecordSuccess() {
	s.LastInteractionFailed = false
	s.LastErrorMessage = ""
	s.ConsecutiveTimeoutFailures = 0
}

// RecordFailure records a failed iteration, bumping the consecutive
// timeout counter only when the failure was a timeout.
func (s *IterationState) RecordFailure(errMsg string, wasTimeout bool) {
	s.LastInteractionFailed = true
	s.LastErrorMessage = errMsg
	if wasTimeout {
		s.ConsecutiveTimeoutFailures++
	} else {
		s.ConsecutiveTimeoutFailures = 0
	}
}
