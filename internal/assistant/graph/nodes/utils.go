package nodes

import (
	"github.com/voice-assistant/server/internal/assistant/model"
)

const DefaultMaxToolCalls = 6

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit evaluates whether another tool round would exceed the
// limit and, if so, marks the loop accordingly. Returns true when marked now.
func checkAndMarkToolLimit(loop *model.LoopState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !loop.LimitReached && loop.Calls >= max {
		loop.LimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck counts one tool round and marks the loop if it
// exceeds the limit after incrementing. Returns true when exceeded.
func incrementToolCallAndCheck(loop *model.LoopState, max int) bool {
	max = normalizeMaxToolCalls(max)
	loop.Calls++
	if loop.Calls > max {
		loop.LimitReached = true
		return true
	}
	return false
}

// MaxRunSteps bounds one graph run: routing and leaf nodes plus two steps per tool round.
func MaxRunSteps(maxToolCalls int) int {
	steps := 14 + 2*normalizeMaxToolCalls(maxToolCalls)
	if steps < 20 {
		steps = 20
	}
	return steps
}
