package testutil

import "testing"

// Given opens a scenario step. The step names read as one sentence in
// `go test -v` output, for example
// "Given_a_failing_health_check/Then_GET_/healthz_is_unavailable".
func Given(t *testing.T, precondition string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+precondition, fn)
}

// When nests the action under a Given.
func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+action, fn)
}

// Then nests the expected outcome.
func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+outcome, fn)
}
