package model

import "time"

// Provenance tags which tier produced a served payload.
type Provenance string

const (
	ProvenanceCache      Provenance = "cache"
	ProvenanceStaleCache Provenance = "stale-cache"
	ProvenanceSynthetic  Provenance = "synthetic"
	// ProvenanceAggregate marks summary envelopes built from many resources.
	ProvenanceAggregate Provenance = "aggregate"
)

// ProvenanceOf converts the tier of a live fetch into its provenance tag.
func ProvenanceOf(tier Tier) Provenance {
	return Provenance(tier)
}

// IsLive reports whether the payload was fetched upstream during this call.
func (p Provenance) IsLive() bool {
	switch p {
	case ProvenanceCache, ProvenanceStaleCache, ProvenanceSynthetic, ProvenanceAggregate, "":
		return false
	}
	return true
}

// State is the freshness decision for an entry.
type State string

const (
	Fresh  State = "fresh"
	Stale  State = "stale"
	Absent State = "absent"
)

// Verdict is computed on every read and never stored.
type Verdict struct {
	State State
	Age   time.Duration
	TTL   time.Duration
}

// Grade is an observability-only bucket of entry age relative to its TTL.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Outcome classifies a single provider attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeHttpError    Outcome = "http-error"
	OutcomeNetworkError Outcome = "network-error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeMalformed    Outcome = "malformed"
	OutcomeConfigError  Outcome = "config-error"
)

// Attempt is a transient record of one provider attempt, kept for logs and telemetry.
type Attempt struct {
	Provider      string        `json:"provider"`
	ProviderIndex int           `json:"provider_index"`
	Number        int           `json:"attempt"`
	Outcome       Outcome       `json:"outcome"`
	Status        int           `json:"status,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}
