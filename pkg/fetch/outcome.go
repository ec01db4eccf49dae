package fetch

import "net/http"

// Outcome is the classified result of a single attempt. It is one of
// Success, RetryableFailure or FatalFailure.
type Outcome interface {
	outcome()
}

// Success means the attempt settled with a response the caller should see:
// a 2xx/3xx, or a status outside the retryable set.
type Success struct {
	Response *http.Response
}

// Reason explains why an attempt may be retried
type Reason string

const (
	ReasonRetryableStatus Reason = "retryable_status"
	ReasonNetworkError    Reason = "network_error"
	ReasonAttemptTimeout  Reason = "attempt_timeout"
)

// RetryableFailure means another attempt may succeed. Response is set only
// for ReasonRetryableStatus; Err is set for the other reasons.
type RetryableFailure struct {
	Reason   Reason
	Response *http.Response
	Err      error
}

// FatalFailure ends the call immediately, e.g. on caller cancellation
type FatalFailure struct {
	Err error
}

func (Success) outcome()          {}
func (RetryableFailure) outcome() {}
func (FatalFailure) outcome()     {}

// Decision is what the attempt loop does next
type Decision int

const (
	// DecisionReturn hands the response to the caller
	DecisionReturn Decision = iota
	// DecisionRetry backs off and issues another attempt
	DecisionRetry
	// DecisionExhausted means a retryable failure happened on the last allowed attempt
	DecisionExhausted
	// DecisionAbort surfaces a fatal error without further attempts
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionReturn:
		return "return"
	case DecisionRetry:
		return "retry"
	case DecisionExhausted:
		return "exhausted"
	case DecisionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decide maps an attempt outcome to the next step. attempt is the 0-based
// index of the attempt that produced the outcome; every attempt, whatever
// its reason, consumes one unit of the same maxRetries budget.
func Decide(outcome Outcome, attempt, maxRetries int) Decision {
	switch outcome.(type) {
	case Success:
		return DecisionReturn
	case RetryableFailure:
		if attempt < maxRetries {
			return DecisionRetry
		}
		return DecisionExhausted
	default:
		return DecisionAbort
	}
}
