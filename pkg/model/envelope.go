package model

import (
	"encoding/json"
	"time"
)

// Error codes carried by Envelope.Error.
const (
	ErrCodeInvalidOperation  = "invalid-operation"
	ErrCodeInvalidResource   = "invalid-resource"
	ErrCodeMissingCredential = "missing-credential"
	ErrCodeUpstreamExhausted = "upstream-exhausted"
	ErrCodeTimeout           = "timeout"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeInternal          = "internal"
)

// Envelope is the response shape of every dispatched operation.
type Envelope struct {
	Status     int             `json:"status"`
	Operation  string          `json:"operation,omitempty"`
	Resource   string          `json:"resource,omitempty"`
	Provenance Provenance      `json:"provenance,omitempty"`
	Timestamp  *time.Time      `json:"timestamp,omitempty"`
	Count      *int            `json:"count,omitempty"`
	Grade      Grade           `json:"grade,omitempty"`
	Warning    string          `json:"warning,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the structured user-visible failure.
type EnvelopeError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Supported []string          `json:"supported,omitempty"`
	Providers []ProviderFailure `json:"providers,omitempty"`
}

// IsSuccess reports whether the envelope carries served data.
func (e *Envelope) IsSuccess() bool {
	return e.Error == nil && e.Status >= 200 && e.Status < 300
}
