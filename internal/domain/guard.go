package domain

import "time"

// GuardResult is the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
	// RetryAfter is set by guards that know when the caller may try again.
	RetryAfter time.Duration `json:"-"`
}
