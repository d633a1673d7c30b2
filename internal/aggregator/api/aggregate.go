package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/dispatcher"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	serverutils "github.com/Borislavv/sports-data-aggregator/pkg/server/utils"
	"github.com/Borislavv/sports-data-aggregator/pkg/utils"
	"github.com/fasthttp/router"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	gotilsstrconv "github.com/savsgio/gotils/strconv"
	"github.com/valyala/fasthttp"
)

const (
	AggregatePath          = "/api/v1/aggregate"
	AggregateOperationPath = "/api/v1/aggregate/{operation}"
	HealthPath             = "/api/v1/health"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	badRequestResponseBytes = []byte(`{
	  "status": 400,
	  "error": {"code": "bad-request", "message": "` + string(messagePlaceholder) + `"}
	}`)
	internalErrorResponseBytes = []byte(`{
	  "status": 500,
	  "error": {"code": "internal", "message": "` + string(messagePlaceholder) + `"}
	}`)
	messagePlaceholder = []byte("${message}")
	zeroLiteral        = "0"
)

// body is the POST form of an operation request. Option values may be any JSON scalar.
type body struct {
	Operation string         `json:"operation"`
	Sport     string         `json:"sport"`
	Options   map[string]any `json:"options"`
}

type AggregateController struct {
	ctx     context.Context
	cfg     *config.Config
	handler dispatcher.Handler
	durCh   chan time.Duration
}

func NewAggregateController(ctx context.Context, cfg *config.Config, handler dispatcher.Handler) *AggregateController {
	c := &AggregateController{
		ctx:     ctx,
		cfg:     cfg,
		handler: handler,
	}
	if c.cfg.IsDebugOn() {
		c.runLogDebugInfo(ctx)
	}
	return c
}

// Index serves an operation named by the path, the query or a JSON body.
// Every other query argument becomes an option.
func (c *AggregateController) Index(r *fasthttp.RequestCtx) {
	f := time.Now()

	req, err := c.request(r)
	if err != nil {
		c.respondThatTheRequestIsBad(err, r)
		return
	}

	c.respond(c.handler.Handle(c.ctx, req), r)

	if c.durCh != nil {
		select {
		case c.durCh <- time.Since(f):
		default:
		}
	}
}

// Health is a shortcut for the health operation.
func (c *AggregateController) Health(r *fasthttp.RequestCtx) {
	c.respond(c.handler.Handle(c.ctx, dispatcher.Request{Operation: "health"}), r)
}

func (c *AggregateController) request(r *fasthttp.RequestCtx) (dispatcher.Request, error) {
	req := dispatcher.Request{Options: make(map[string]string)}

	if r.IsPost() && len(r.PostBody()) > 0 {
		if !strings.HasPrefix(gotilsstrconv.B2S(r.Request.Header.ContentType()), "application/json") {
			return req, fmt.Errorf("unsupported content type %q", r.Request.Header.ContentType())
		}
		var b body
		if err := json.Unmarshal(r.PostBody(), &b); err != nil {
			return req, fmt.Errorf("malformed request body: %w", err)
		}
		req.Operation = b.Operation
		req.Sport = b.Sport
		for name, value := range b.Options {
			switch v := value.(type) {
			case nil:
			case string:
				req.Options[name] = v
			default:
				req.Options[name] = fmt.Sprint(v)
			}
		}
	}

	r.QueryArgs().VisitAll(func(key, value []byte) {
		switch gotilsstrconv.B2S(key) {
		case "operation":
			req.Operation = string(value)
		case "sport":
			req.Sport = string(value)
		default:
			req.Options[string(key)] = string(value)
		}
	})

	if op, ok := r.UserValue("operation").(string); ok && op != "" {
		req.Operation = op
	}
	if req.Operation == "" {
		return req, errors.New("operation is required")
	}
	return req, nil
}

func (c *AggregateController) respond(env *model.Envelope, r *fasthttp.RequestCtx) {
	if !env.IsSuccess() && env.Error != nil {
		log.Warn().
			Str("requestId", serverutils.RequestId(r)).
			Str("code", env.Error.Code).
			Msgf("[api] %s %s: %s", env.Operation, env.Resource, env.Error.Message)
	}

	b, err := json.Marshal(env)
	if err != nil {
		c.respondThatSomethingWentWrong(err, r)
		return
	}

	r.SetStatusCode(env.Status)
	if env.Timestamp != nil {
		r.Response.Header.Set("Last-Modified", env.Timestamp.UTC().Format(http.TimeFormat))
	}
	if _, err = serverutils.Write(b, r); err != nil {
		log.Err(err).Msg("[api] failed to write into *fasthttp.RequestCtx")
	}
}

func (c *AggregateController) respondThatSomethingWentWrong(err error, ctx *fasthttp.RequestCtx) {
	log.Err(err).Str("requestId", serverutils.RequestId(ctx)).Msg("[api] error occurred while processing request")

	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	if _, err = serverutils.Write(c.resolveMessagePlaceholder(internalErrorResponseBytes, err), ctx); err != nil {
		log.Err(err).Msg("[api] failed to write into *fasthttp.RequestCtx")
	}
}

func (c *AggregateController) respondThatTheRequestIsBad(err error, ctx *fasthttp.RequestCtx) {
	log.Warn().Err(err).Str("requestId", serverutils.RequestId(ctx)).Msg("[api] bad request was caught")

	ctx.SetStatusCode(fasthttp.StatusBadRequest)
	if _, err = serverutils.Write(c.resolveMessagePlaceholder(badRequestResponseBytes, err), ctx); err != nil {
		log.Err(err).Msg("[api] failed to write into *fasthttp.RequestCtx")
	}
}

func (c *AggregateController) resolveMessagePlaceholder(msg []byte, err error) []byte {
	escaped, _ := json.Marshal(err.Error())
	return bytes.ReplaceAll(msg, messagePlaceholder, escaped[1:len(escaped)-1])
}

func (c *AggregateController) AddRoute(router *router.Router) {
	router.GET(AggregatePath, c.Index)
	router.POST(AggregatePath, c.Index)
	router.GET(AggregateOperationPath, c.Index)
	router.GET(HealthPath, c.Health)
}

type stat struct {
	label    string
	divider  int // in seconds
	tickerCh <-chan time.Time
	count    int
	total    time.Duration
}

func (c *AggregateController) runLogDebugInfo(ctx context.Context) {
	c.durCh = make(chan time.Duration, runtime.GOMAXPROCS(0))

	go func() {
		stats := []*stat{
			{label: "5s", divider: 5, tickerCh: utils.NewTicker(ctx, 5*time.Second)},
			{label: "1m", divider: 60, tickerCh: utils.NewTicker(ctx, time.Minute)},
			{label: "5m", divider: 300, tickerCh: utils.NewTicker(ctx, 5*time.Minute)},
			{label: "1h", divider: 3600, tickerCh: utils.NewTicker(ctx, time.Hour)},
		}

		for {
			select {
			case <-ctx.Done():
				return
			case dur := <-c.durCh:
				for _, s := range stats {
					s.count++
					s.total += dur
				}
			case <-stats[0].tickerCh:
				c.logAndReset(stats[0])
			case <-stats[1].tickerCh:
				c.logAndReset(stats[1])
			case <-stats[2].tickerCh:
				c.logAndReset(stats[2])
			case <-stats[3].tickerCh:
				c.logAndReset(stats[3])
			}
		}
	}()
}

func (c *AggregateController) logAndReset(s *stat) {
	var avg string
	if s.count > 0 {
		avg = (s.total / time.Duration(s.count)).String()
	} else {
		avg = zeroLiteral
	}
	log.Info().Msgf(
		"[stat] RPS: %d, total req: %d (%s), avg duration %s",
		s.count/s.divider, s.count, s.label, avg,
	)
	s.count = 0
	s.total = 0
}
