package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	"github.com/Borislavv/sports-data-aggregator/pkg/shape"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultBaseDelay = 500 * time.Millisecond

var anyShape = shape.MustParse("any")

// Request is what a chain is fetched for.
type Request struct {
	Key   string
	Vars  map[string]string
	Check shape.Check
}

// Fetched is the first usable provider answer.
type Fetched struct {
	Payload  []byte
	Shape    shape.Result
	Index    int
	Tier     model.Tier
	Provider string
	Attempts []model.Attempt
}

// Fetcher walks a provider chain until one provider answers with a usable payload.
type Fetcher interface {
	Fetch(ctx context.Context, chain []catalog.Endpoint, req Request) (*Fetched, error)
}

// Fallback tries providers strictly in declared order, retrying each with a linear
// backoff of baseDelay * attempt. Missing credentials skip a provider without a request.
type Fallback struct {
	backend   Backender
	secrets   catalog.Secrets
	baseDelay time.Duration
	recorder  metrics.Recorder

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFallback builds a chain fetcher. A non-positive baseDelay falls back to 500ms.
func NewFallback(backend Backender, secrets catalog.Secrets, baseDelay time.Duration, recorder metrics.Recorder) *Fallback {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Fallback{
		backend:   backend,
		secrets:   secrets,
		baseDelay: baseDelay,
		recorder:  recorder,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Fetch returns the first provider payload passing its shape check, or a *model.ExhaustionError
// listing every provider failure in chain order.
func (f *Fallback) Fetch(ctx context.Context, chain []catalog.Endpoint, req Request) (*Fetched, error) {
	failures := make([]model.ProviderFailure, 0, len(chain))
	attempts := make([]model.Attempt, 0, len(chain))

	for index, ep := range chain {
		secret, cfgErr := f.credential(ep)
		if cfgErr != nil {
			attempts = append(attempts, model.Attempt{Provider: ep.Provider, ProviderIndex: index, Outcome: model.OutcomeConfigError})
			f.recorder.ObserveAttempt(ep.Provider, model.OutcomeConfigError, 0)
			failures = append(failures, model.ProviderFailure{
				Provider: ep.Provider,
				Index:    index,
				Outcome:  model.OutcomeConfigError,
				Reason:   cfgErr.Error(),
			})
			log.Warn().Msgf("[fetcher] %s: skipping provider %s: %s", req.Key, ep.Provider, cfgErr.Reason)
			continue
		}

		check := req.Check
		if ep.Check != nil {
			check = ep.Check
		}
		if check == nil {
			check = anyShape
		}

		maxAttempts := ep.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		var (
			lastErr     error
			lastOutcome model.Outcome
			made        int
		)
		for n := 1; n <= maxAttempts; n++ {
			if err := f.throttle(ctx, ep); err != nil {
				lastErr = &model.UpstreamError{Provider: ep.Provider, Outcome: model.OutcomeTimeout, Err: err}
				lastOutcome = model.OutcomeTimeout
				break
			}

			made = n
			from := time.Now()
			payload, res, err := f.attempt(ctx, ep, req.Vars, secret, check)
			elapsed := time.Since(from)
			outcome := outcomeOf(err)

			attempts = append(attempts, model.Attempt{
				Provider:      ep.Provider,
				ProviderIndex: index,
				Number:        n,
				Outcome:       outcome,
				Status:        statusOf(err),
				Elapsed:       elapsed,
			})
			f.recorder.ObserveAttempt(ep.Provider, outcome, elapsed)

			if err == nil {
				tier := model.TierOf(index)
				log.Debug().Msgf("[fetcher] %s: served by %s (%s) on attempt %d in %s", req.Key, ep.Provider, tier, n, elapsed)
				return &Fetched{
					Payload:  payload,
					Shape:    res,
					Index:    index,
					Tier:     tier,
					Provider: ep.Provider,
					Attempts: attempts,
				}, nil
			}

			lastErr, lastOutcome = err, outcome
			log.Debug().Msgf("[fetcher] %s: provider %s attempt %d/%d failed: %s", req.Key, ep.Provider, n, maxAttempts, err.Error())

			if outcome == model.OutcomeConfigError || n == maxAttempts {
				break
			}
			if !sleep(ctx, f.baseDelay*time.Duration(n)) {
				lastErr = &model.UpstreamError{Provider: ep.Provider, Outcome: model.OutcomeTimeout, Err: ctx.Err()}
				lastOutcome = model.OutcomeTimeout
				break
			}
		}

		failures = append(failures, model.ProviderFailure{
			Provider: ep.Provider,
			Index:    index,
			Outcome:  lastOutcome,
			Attempts: made,
			Reason:   lastErr.Error(),
		})
		log.Warn().Msgf("[fetcher] %s: provider %s exhausted after %d attempt(s): %s", req.Key, ep.Provider, made, lastErr.Error())
	}

	return nil, &model.ExhaustionError{Key: req.Key, Failures: failures}
}

func (f *Fallback) attempt(
	ctx context.Context,
	ep catalog.Endpoint,
	vars map[string]string,
	secret string,
	check shape.Check,
) ([]byte, shape.Result, error) {
	payload, err := f.backend.Do(ctx, ep, vars, secret)
	if err != nil {
		return nil, shape.Result{}, err
	}
	res, err := check(payload)
	if err != nil {
		return nil, shape.Result{}, &model.UpstreamError{Provider: ep.Provider, Outcome: model.OutcomeMalformed, Err: err}
	}
	return payload, res, nil
}

func (f *Fallback) credential(ep catalog.Endpoint) (string, *model.ConfigurationError) {
	if ep.Credential == nil {
		return "", nil
	}
	secret, found := f.secrets.Lookup(ep.Credential.Env)
	if !found {
		return "", &model.ConfigurationError{Provider: ep.Provider, Reason: "missing credential " + ep.Credential.Env}
	}
	return secret, nil
}

// throttle waits for the provider rate limiter, no longer than one attempt timeout.
func (f *Fallback) throttle(ctx context.Context, ep catalog.Endpoint) error {
	if ep.RateLimit <= 0 {
		return nil
	}

	f.mu.Lock()
	limiter, ok := f.limiters[ep.Provider]
	if !ok {
		burst := int(ep.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ep.RateLimit), burst)
		f.limiters[ep.Provider] = limiter
	}
	f.mu.Unlock()

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return limiter.Wait(ctx)
}

func outcomeOf(err error) model.Outcome {
	if err == nil {
		return model.OutcomeSuccess
	}
	var upstreamErr *model.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Outcome
	}
	var cfgErr *model.ConfigurationError
	if errors.As(err, &cfgErr) {
		return model.OutcomeConfigError
	}
	return model.OutcomeNetworkError
}

func statusOf(err error) int {
	var upstreamErr *model.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Status
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
