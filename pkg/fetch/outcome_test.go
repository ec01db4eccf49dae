package fetch

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	retryable := RetryableFailure{Reason: ReasonNetworkError, Err: errors.New("reset")}

	tests := []struct {
		name       string
		outcome    Outcome
		attempt    int
		maxRetries int
		want       Decision
	}{
		{"success on first attempt", Success{Response: &http.Response{StatusCode: 200}}, 0, 3, DecisionReturn},
		{"success on last attempt", Success{}, 3, 3, DecisionReturn},
		{"retryable with budget left", retryable, 0, 3, DecisionRetry},
		{"retryable one before last", retryable, 2, 3, DecisionRetry},
		{"retryable on last attempt", retryable, 3, 3, DecisionExhausted},
		{"retryable with no retries", retryable, 0, 0, DecisionExhausted},
		{"timeout counts the same", RetryableFailure{Reason: ReasonAttemptTimeout}, 1, 1, DecisionExhausted},
		{"fatal", FatalFailure{Err: errors.New("cancelled")}, 0, 3, DecisionAbort},
		{"nil outcome", nil, 0, 3, DecisionAbort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.outcome, tt.attempt, tt.maxRetries))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "return", DecisionReturn.String())
	assert.Equal(t, "retry", DecisionRetry.String())
	assert.Equal(t, "exhausted", DecisionExhausted.String())
	assert.Equal(t, "abort", DecisionAbort.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
