package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/dispatcher"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/valyala/fasthttp"
)

type recordingHandler struct {
	got []dispatcher.Request
	env *model.Envelope
}

func (h *recordingHandler) Handle(_ context.Context, req dispatcher.Request) *model.Envelope {
	h.got = append(h.got, req)
	if h.env != nil {
		return h.env
	}
	return &model.Envelope{Status: http.StatusOK, Operation: req.Operation}
}

func (h *recordingHandler) Operations() []string { return nil }

func newController(h dispatcher.Handler) *AggregateController {
	return NewAggregateController(context.Background(), &config.Config{}, h)
}

func get(uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func TestQueryArgumentsBecomeRequest(t *testing.T) {
	h := &recordingHandler{}
	c := newController(h)

	ctx := get(AggregatePath + "?operation=getOdds&sport=nfl&regions=us&forceRefresh=true")
	c.Index(ctx)

	if ctx.Response.StatusCode() != http.StatusOK {
		t.Fatalf("status %d", ctx.Response.StatusCode())
	}
	if len(h.got) != 1 {
		t.Fatalf("handler called %d times", len(h.got))
	}
	req := h.got[0]
	if req.Operation != "getOdds" || req.Sport != "nfl" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Options["regions"] != "us" || req.Options["forceRefresh"] != "true" {
		t.Fatalf("unexpected options %v", req.Options)
	}
	if _, ok := req.Options["operation"]; ok {
		t.Fatal("operation leaked into options")
	}
}

func TestOperationFromPath(t *testing.T) {
	h := &recordingHandler{}
	c := newController(h)

	ctx := get("/api/v1/aggregate/roster?sport=nba")
	ctx.SetUserValue("operation", "roster")
	c.Index(ctx)

	if len(h.got) != 1 || h.got[0].Operation != "roster" || h.got[0].Sport != "nba" {
		t.Fatalf("unexpected requests %+v", h.got)
	}
}

func TestJsonBody(t *testing.T) {
	h := &recordingHandler{}
	c := newController(h)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI(AggregatePath)
	ctx.Request.Header.SetContentType("application/json")
	ctx.Request.SetBodyString(`{"operation":"syncRoster","sport":"nhl","options":{"forceRefresh":true,"limit":5,"skip":null}}`)
	c.Index(ctx)

	if len(h.got) != 1 {
		t.Fatalf("handler called %d times, body %s", len(h.got), ctx.Response.Body())
	}
	req := h.got[0]
	if req.Operation != "syncRoster" || req.Sport != "nhl" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Options["forceRefresh"] != "true" || req.Options["limit"] != "5" {
		t.Fatalf("unexpected options %v", req.Options)
	}
	if _, ok := req.Options["skip"]; ok {
		t.Fatal("null option was kept")
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		uri         string
	}{
		{name: "no operation", uri: AggregatePath},
		{name: "malformed body", contentType: "application/json", body: `{"operation":`, uri: AggregatePath},
		{name: "not json", contentType: "text/plain", body: `operation=health`, uri: AggregatePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			c := newController(h)

			ctx := &fasthttp.RequestCtx{}
			ctx.Request.SetRequestURI(tt.uri)
			if tt.body != "" {
				ctx.Request.Header.SetMethod(fasthttp.MethodPost)
				ctx.Request.Header.SetContentType(tt.contentType)
				ctx.Request.SetBodyString(tt.body)
			}
			c.Index(ctx)

			if ctx.Response.StatusCode() != http.StatusBadRequest {
				t.Fatalf("status %d", ctx.Response.StatusCode())
			}
			if len(h.got) != 0 {
				t.Fatal("handler must not be called")
			}
			var resp struct {
				Status int `json:"status"`
				Error  struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(ctx.Response.Body(), &resp); err != nil {
				t.Fatalf("response is not json: %v: %s", err, ctx.Response.Body())
			}
			if resp.Status != http.StatusBadRequest || resp.Error.Code != "bad-request" {
				t.Fatalf("unexpected response %s", ctx.Response.Body())
			}
		})
	}
}

func TestEnvelopeStatusAndBody(t *testing.T) {
	createdAt := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	h := &recordingHandler{env: &model.Envelope{
		Status:    http.StatusFailedDependency,
		Operation: "getOdds",
		Resource:  "odds:americanfootball_nfl",
		Timestamp: &createdAt,
		Error: &model.EnvelopeError{
			Code:    model.ErrCodeMissingCredential,
			Message: "every provider failed",
		},
	}}
	c := newController(h)

	ctx := get(AggregatePath + "?operation=odds")
	c.Index(ctx)

	if ctx.Response.StatusCode() != http.StatusFailedDependency {
		t.Fatalf("status %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Response.Header.Peek("Last-Modified")); got != "Sun, 07 Sep 2025 12:00:00 GMT" {
		t.Fatalf("Last-Modified %q", got)
	}
	var env model.Envelope
	if err := json.Unmarshal(ctx.Response.Body(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error == nil || env.Error.Code != model.ErrCodeMissingCredential {
		t.Fatalf("unexpected envelope %s", ctx.Response.Body())
	}
}

func TestHealthShortcut(t *testing.T) {
	h := &recordingHandler{}
	c := newController(h)

	ctx := get(HealthPath)
	c.Health(ctx)

	if len(h.got) != 1 || h.got[0].Operation != "health" {
		t.Fatalf("unexpected requests %+v", h.got)
	}
	if !strings.Contains(string(ctx.Response.Body()), `"operation":"health"`) {
		t.Fatalf("unexpected body %s", ctx.Response.Body())
	}
}
