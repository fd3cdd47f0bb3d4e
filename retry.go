package loom

import "time"

// PolicyBuilder provides a fluent way to construct Policy values for use
// with WithPolicy.
type PolicyBuilder struct {
	policy Policy
}

// Retrying creates a PolicyBuilder that retries a failing node up to
// maxRetries times after the initial attempt.
//
// maxRetries < 0 is treated as 0 (single attempt, no retries).
func Retrying(maxRetries int) PolicyBuilder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return PolicyBuilder{
		policy: Policy{
			MaxRetries: maxRetries,
		},
	}
}

// WithDelay sets a fixed pause between attempts.
//
// Example:
//
//	Retrying(3).WithDelay(100 * time.Millisecond)
func (p PolicyBuilder) WithDelay(d time.Duration) PolicyBuilder {
	pol := p.policy
	pol.Delay = d
	return PolicyBuilder{policy: pol}
}

// WithTimeout caps the duration of each individual attempt. An attempt that
// exceeds the cap fails and counts against the retry budget.
func (p PolicyBuilder) WithTimeout(d time.Duration) PolicyBuilder {
	pol := p.policy
	pol.Timeout = d
	return PolicyBuilder{policy: pol}
}

// Policy returns the underlying Policy to be passed to WithPolicy.
func (p PolicyBuilder) Policy() Policy {
	return p.policy
}
