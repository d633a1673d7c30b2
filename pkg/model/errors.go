package model

import (
	"errors"
	"strconv"
	"strings"
)

// ConfigurationError means a provider cannot be called at all, usually due to a missing credential.
// It is never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return "provider " + e.Provider + " is misconfigured: " + e.Reason
}

// UpstreamError is a failed attempt against a provider: non-2xx status, transport failure,
// timeout or a payload that does not pass the shape check.
type UpstreamError struct {
	Provider string
	Outcome  Outcome
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := "provider " + e.Provider + " " + string(e.Outcome)
	if e.Status != 0 {
		msg += " (status " + strconv.Itoa(e.Status) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ProviderFailure is the final reason a single provider of a chain was given up on.
type ProviderFailure struct {
	Provider string  `json:"provider"`
	Index    int     `json:"index"`
	Outcome  Outcome `json:"outcome"`
	Attempts int     `json:"attempts"`
	Reason   string  `json:"reason"`
}

// ExhaustionError is returned when every provider of a chain failed.
// Failures keep the declared chain order.
type ExhaustionError struct {
	Key      string
	Failures []ProviderFailure
}

func (e *ExhaustionError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, f.Provider+": "+f.Reason)
	}
	return "all providers failed for " + e.Key + " [" + strings.Join(reasons, "; ") + "]"
}

// OnlyConfigErrors reports whether no provider was reachable because of configuration alone.
func (e *ExhaustionError) OnlyConfigErrors() bool {
	return e.all(OutcomeConfigError)
}

// OnlyTimeouts reports whether every provider failed by timing out.
func (e *ExhaustionError) OnlyTimeouts() bool {
	return e.all(OutcomeTimeout)
}

func (e *ExhaustionError) all(outcome Outcome) bool {
	if len(e.Failures) == 0 {
		return false
	}
	for _, f := range e.Failures {
		if f.Outcome != outcome {
			return false
		}
	}
	return true
}

// CacheError wraps a store read or write failure. It is absorbed by callers and logged.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return "cache " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// IsCacheError reports whether err carries a *CacheError.
func IsCacheError(err error) bool {
	var cacheErr *CacheError
	return errors.As(err, &cacheErr)
}
