package freshness

import (
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/model"
)

// Grade thresholds as fractions of the TTL.
const (
	gradeA = 0.25
	gradeB = 0.5
	gradeC = 1.0
	gradeD = 2.0
)

// Evaluator decides whether a cached entry can be served as is.
type Evaluator struct {
	now func() time.Time
}

// New builds an evaluator over the wall clock.
func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewWithClock builds an evaluator over a custom clock.
func NewWithClock(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Evaluate classifies an entry: absent when there is none, stale when forced or
// when its age reached the ttl, fresh otherwise.
func (e *Evaluator) Evaluate(entry *model.Entry, ttl time.Duration, force bool) model.Verdict {
	if entry == nil {
		return model.Verdict{State: model.Absent, TTL: ttl}
	}

	age := entry.Age(e.now())
	if force || age >= ttl {
		return model.Verdict{State: model.Stale, Age: age, TTL: ttl}
	}
	return model.Verdict{State: model.Fresh, Age: age, TTL: ttl}
}

// Grade buckets the entry age relative to ttl. Used for reporting only.
func (e *Evaluator) Grade(entry *model.Entry, ttl time.Duration) model.Grade {
	if entry == nil || ttl <= 0 {
		return model.GradeF
	}

	ratio := float64(entry.Age(e.now())) / float64(ttl)
	switch {
	case ratio < gradeA:
		return model.GradeA
	case ratio < gradeB:
		return model.GradeB
	case ratio < gradeC:
		return model.GradeC
	case ratio < gradeD:
		return model.GradeD
	default:
		return model.GradeF
	}
}

// Now exposes the evaluator clock so callers stamp summaries consistently.
func (e *Evaluator) Now() time.Time {
	return e.now()
}
