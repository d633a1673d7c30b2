package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/shape"
)

type upstream struct {
	*httptest.Server
	hits atomic.Int32
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

func endpoint(name string, u *upstream, attempts int) catalog.Endpoint {
	return catalog.Endpoint{
		Provider:    name,
		URL:         u.URL + "/{sport}",
		Timeout:     time.Second,
		MaxAttempts: attempts,
	}
}

func newTestFallback(secrets catalog.Secrets) *Fallback {
	if secrets == nil {
		secrets = catalog.StaticSecrets{}
	}
	return NewFallback(NewBackend(nil), secrets, time.Millisecond, nil)
}

func TestFallbackStopsAtFirstUsableProvider(t *testing.T) {
	a := newUpstream(t, http.StatusInternalServerError, `{"error":"boom"}`)
	b := newUpstream(t, http.StatusOK, `[{"id":1},{"id":2},{"id":3}]`)
	c := newUpstream(t, http.StatusOK, `[]`)

	chain := []catalog.Endpoint{endpoint("a", a, 1), endpoint("b", b, 1), endpoint("c", c, 1)}
	req := Request{Key: "roster:nfl", Vars: map[string]string{"sport": "nfl"}, Check: shape.MustParse("array")}

	got, err := newTestFallback(nil).Fetch(context.Background(), chain, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Tier != "fallback-1" || got.Provider != "b" || got.Index != 1 {
		t.Fatalf("served by %s (%s, index %d), want b (fallback-1)", got.Provider, got.Tier, got.Index)
	}
	if got.Shape.Items != 3 || !got.Shape.Collection {
		t.Fatalf("shape = %+v, want 3 collection items", got.Shape)
	}
	if c.hits.Load() != 0 {
		t.Fatalf("provider c was hit %d times after b succeeded", c.hits.Load())
	}
	if len(got.Attempts) != 2 || got.Attempts[0].Outcome != model.OutcomeHttpError || got.Attempts[0].Status != 500 {
		t.Fatalf("attempts = %+v", got.Attempts)
	}
}

func TestFallbackRetriesUnauthorizedThenFallsBack(t *testing.T) {
	primary := newUpstream(t, http.StatusUnauthorized, `{"message":"invalid key"}`)

	items := make([]string, 1700)
	for i := range items {
		items[i] = `{"id":` + strconv.Itoa(i) + `}`
	}
	secondary := newUpstream(t, http.StatusOK, `{"count":1700,"items":[`+strings.Join(items, ",")+`]}`)

	primaryEp := endpoint("sportsdataio", primary, 2)
	primaryEp.Credential = &catalog.Credential{Env: "SPORTSDATAIO_KEY", Header: "Ocp-Apim-Subscription-Key"}
	secondaryEp := endpoint("espn-core", secondary, 1)
	secondaryEp.Check = shape.MustParse("array:items")

	req := Request{Key: "roster:nfl", Vars: map[string]string{"sport": "nfl"}, Check: shape.MustParse("array")}
	secrets := catalog.StaticSecrets{"SPORTSDATAIO_KEY": "bad-key"}

	got, err := newTestFallback(secrets).Fetch(context.Background(), []catalog.Endpoint{primaryEp, secondaryEp}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.hits.Load() != 2 {
		t.Fatalf("primary hit %d times, want 2", primary.hits.Load())
	}
	if got.Tier != "fallback-1" || got.Shape.Items != 1700 {
		t.Fatalf("got tier %s with %d items, want fallback-1 with 1700", got.Tier, got.Shape.Items)
	}
	if len(got.Attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(got.Attempts))
	}
	for i, attempt := range got.Attempts[:2] {
		if attempt.Status != http.StatusUnauthorized || attempt.Number != i+1 {
			t.Fatalf("attempt %d = %+v", i, attempt)
		}
	}
}

func TestFallbackSkipsProviderWithoutCredential(t *testing.T) {
	keyed := newUpstream(t, http.StatusOK, `[]`)
	open := newUpstream(t, http.StatusOK, `[{"id":1}]`)

	keyedEp := endpoint("the-odds-api", keyed, 3)
	keyedEp.Credential = &catalog.Credential{Env: "ODDS_API_KEY", Query: "apiKey"}
	chain := []catalog.Endpoint{keyedEp, endpoint("open", open, 1)}

	got, err := newTestFallback(nil).Fetch(context.Background(), chain, Request{Key: "odds:nfl"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keyed.hits.Load() != 0 {
		t.Fatalf("provider without credential was requested %d times", keyed.hits.Load())
	}
	if got.Provider != "open" || got.Tier != "fallback-1" {
		t.Fatalf("served by %s (%s)", got.Provider, got.Tier)
	}
	if got.Attempts[0].Outcome != model.OutcomeConfigError {
		t.Fatalf("first attempt outcome = %s, want config-error", got.Attempts[0].Outcome)
	}
}

func TestFallbackSendsQueryCredential(t *testing.T) {
	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.URL.Query().Get("apiKey"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ep := catalog.Endpoint{
		Provider:    "the-odds-api",
		URL:         srv.URL + "/v4/sports/{sport}/odds",
		Query:       map[string]string{"regions": "us"},
		Credential:  &catalog.Credential{Env: "ODDS_API_KEY", Query: "apiKey"},
		MaxAttempts: 1,
	}
	secrets := catalog.StaticSecrets{"ODDS_API_KEY": "s3cr3t"}
	vars := map[string]string{"sport": "americanfootball_nfl"}

	if _, err := newTestFallback(secrets).Fetch(context.Background(), []catalog.Endpoint{ep}, Request{Key: "odds", Vars: vars}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := gotKey.Load().(string); v != "s3cr3t" {
		t.Fatalf("apiKey = %q", v)
	}
}

func TestFallbackExhaustion(t *testing.T) {
	broken := newUpstream(t, http.StatusBadGateway, `bad gateway`)
	garbage := newUpstream(t, http.StatusOK, `<html>maintenance</html>`)

	keyedEp := endpoint("keyed", broken, 1)
	keyedEp.Credential = &catalog.Credential{Env: "MISSING_KEY", Header: "X-Key"}
	chain := []catalog.Endpoint{endpoint("broken", broken, 2), endpoint("garbage", garbage, 1), keyedEp}

	_, err := newTestFallback(nil).Fetch(context.Background(), chain, Request{Key: "roster:nba", Check: shape.MustParse("array")})

	var exhausted *model.ExhaustionError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustionError, got %v", err)
	}
	if len(exhausted.Failures) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(exhausted.Failures))
	}

	want := []struct {
		provider string
		outcome  model.Outcome
		attempts int
	}{
		{"broken", model.OutcomeHttpError, 2},
		{"garbage", model.OutcomeMalformed, 1},
		{"keyed", model.OutcomeConfigError, 0},
	}
	for i, w := range want {
		f := exhausted.Failures[i]
		if f.Provider != w.provider || f.Outcome != w.outcome || f.Attempts != w.attempts || f.Index != i {
			t.Errorf("failure %d = %+v, want %s/%s/%d", i, f, w.provider, w.outcome, w.attempts)
		}
	}
	if exhausted.OnlyConfigErrors() || exhausted.OnlyTimeouts() {
		t.Fatal("mixed failures must not classify as config-only or timeout-only")
	}
	if broken.hits.Load() != 2 {
		t.Fatalf("broken hit %d times, want 2", broken.hits.Load())
	}
}

func TestFallbackTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	ep := catalog.Endpoint{Provider: "slow", URL: slow.URL, Timeout: 50 * time.Millisecond, MaxAttempts: 1}
	_, err := newTestFallback(nil).Fetch(context.Background(), []catalog.Endpoint{ep}, Request{Key: "odds:nhl"})

	var exhausted *model.ExhaustionError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustionError, got %v", err)
	}
	if !exhausted.OnlyTimeouts() {
		t.Fatalf("expected timeout-only failures, got %+v", exhausted.Failures)
	}
}

func TestRedactURL(t *testing.T) {
	ep := catalog.Endpoint{Credential: &catalog.Credential{Env: "ODDS_API_KEY", Query: "apiKey"}}
	got := redactURL("https://api.example.com/v4/odds?apiKey=s3cr3t&regions=us", ep)
	if strings.Contains(got, "s3cr3t") || !strings.Contains(got, "apiKey=REDACTED") {
		t.Fatalf("redacted url = %s", got)
	}
}

func TestAbbreviateBody(t *testing.T) {
	long := strings.Repeat("x", 500)
	if got := abbreviateBody([]byte(long)); len(got) != abbreviateLimit+3 {
		t.Fatalf("abbreviated length = %d", len(got))
	}
	if got := abbreviateBody([]byte("  short  ")); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestFallbackRetriesTrailingGarbageThenFallsBack(t *testing.T) {
	broken := newUpstream(t, http.StatusOK, `[1,2]}garbage`)
	healthy := newUpstream(t, http.StatusOK, `[1,2,3]`)

	chain := []catalog.Endpoint{endpoint("broken", broken, 2), endpoint("healthy", healthy, 1)}
	req := Request{Key: "roster:nfl", Vars: map[string]string{"sport": "nfl"}, Check: shape.MustParse("array")}

	got, err := newTestFallback(nil).Fetch(context.Background(), chain, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if broken.hits.Load() != 2 {
		t.Fatalf("broken provider hit %d times, want 2", broken.hits.Load())
	}
	if got.Provider != "healthy" || string(got.Payload) != `[1,2,3]` {
		t.Fatalf("served %q by %s", got.Payload, got.Provider)
	}
	for _, attempt := range got.Attempts[:2] {
		if attempt.Outcome != model.OutcomeMalformed {
			t.Fatalf("attempt %d outcome %s, want malformed", attempt.Number, attempt.Outcome)
		}
	}
}
