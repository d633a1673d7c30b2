// Package dispatcher maps operation requests onto catalog resources, drives them through
// the refresh coordinator and shapes the response envelope.
package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/freshness"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/service"
	"github.com/Borislavv/sports-data-aggregator/pkg/storage"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSport is used when a request names none. Every kind declares it as a sport or alias.
const DefaultSport = "nfl"

// Request is a single inbound operation.
type Request struct {
	Operation string
	Sport     string
	Options   map[string]string
}

// Handler serves operation requests. Handle never returns nil.
type Handler interface {
	Handle(ctx context.Context, req Request) *model.Envelope
	Operations() []string
}

type operation struct {
	name    string
	aliases []string
	handle  func(ctx context.Context, req Request) *model.Envelope
}

// Dispatcher is the Handler over the refresh coordinator.
type Dispatcher struct {
	cfg         *config.Config
	catalog     *catalog.Catalog
	coordinator *service.Coordinator
	store       storage.Storage
	evaluator   *freshness.Evaluator
	secrets     catalog.Secrets
	startedAt   time.Time

	operations map[string]*operation
	names      []string
}

func New(
	cfg *config.Config,
	catalog *catalog.Catalog,
	coordinator *service.Coordinator,
	store storage.Storage,
	evaluator *freshness.Evaluator,
	secrets catalog.Secrets,
) *Dispatcher {
	d := &Dispatcher{
		cfg:         cfg,
		catalog:     catalog,
		coordinator: coordinator,
		store:       store,
		evaluator:   evaluator,
		secrets:     secrets,
		startedAt:   evaluator.Now(),
		operations:  make(map[string]*operation),
	}

	d.register("getOdds", []string{"odds"}, d.data(model.KindOdds))
	d.register("getProps", []string{"props"}, d.data(model.KindProps))
	d.register("getRoster", []string{"roster"}, d.data(model.KindRoster))
	d.register("getRosterStatus", []string{"rosterStatus"}, d.rosterStatus(false))
	d.register("syncRoster", []string{"rosterSync", "refreshRoster", "rosterRefresh"}, d.rosterStatus(true))
	d.register("refreshAll", []string{"refresh", "scheduler"}, d.refreshAll)
	d.register("cacheStatus", []string{"cache"}, d.cacheStatus)
	d.register("health", []string{"status"}, d.health)

	return d
}

func (d *Dispatcher) register(name string, aliases []string, handle func(context.Context, Request) *model.Envelope) {
	op := &operation{name: name, aliases: aliases, handle: handle}
	for _, n := range append([]string{name}, aliases...) {
		d.operations[strings.ToLower(n)] = op
		d.names = append(d.names, n)
	}
}

// Operations lists every accepted operation name and alias.
func (d *Dispatcher) Operations() []string {
	return d.names
}

// Handle resolves the operation and runs it within the dispatch timeout.
func (d *Dispatcher) Handle(ctx context.Context, req Request) *model.Envelope {
	op, ok := d.operations[strings.ToLower(strings.TrimSpace(req.Operation))]
	if !ok {
		return &model.Envelope{
			Status:    http.StatusBadRequest,
			Operation: req.Operation,
			Error: &model.EnvelopeError{
				Code:      model.ErrCodeInvalidOperation,
				Message:   "unsupported operation " + strconv.Quote(req.Operation),
				Supported: d.Operations(),
			},
		}
	}

	if d.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DispatchTimeout)
		defer cancel()
	}

	env := op.handle(ctx, req)
	env.Operation = op.name
	return env
}

// resolve finds the declared resource for the request sport.
func (d *Dispatcher) resolve(kind model.Kind, req Request) (*catalog.Resource, *model.Envelope) {
	sport := strings.ToLower(strings.TrimSpace(req.Sport))
	if sport == "" {
		sport = DefaultSport
	}
	def, ok := d.catalog.Lookup(kind, sport)
	if !ok {
		return nil, &model.Envelope{
			Status: http.StatusBadRequest,
			Error: &model.EnvelopeError{
				Code:      model.ErrCodeInvalidResource,
				Message:   "unsupported " + string(kind) + " sport " + strconv.Quote(req.Sport),
				Supported: d.catalog.Sports(kind),
			},
		}
	}
	return def, nil
}

// data serves the payload of a resource of the given kind.
func (d *Dispatcher) data(kind model.Kind) func(context.Context, Request) *model.Envelope {
	return func(ctx context.Context, req Request) *model.Envelope {
		def, failed := d.resolve(kind, req)
		if failed != nil {
			return failed
		}

		res, err := def.Resolve(req.Options)
		if err != nil {
			return invalidParam(err)
		}
		result, err := d.coordinator.GetOrRefresh(ctx, def, res, isForced(req.Options))
		if err != nil {
			return failure(res.Key(), err)
		}
		return d.served(def, res, result)
	}
}

func (d *Dispatcher) served(def *catalog.Resource, res model.Resource, result *service.Result) *model.Envelope {
	entry := result.Entry
	createdAt := entry.CreatedAt

	env := &model.Envelope{
		Status:     http.StatusOK,
		Resource:   res.Key(),
		Provenance: result.Provenance,
		Timestamp:  &createdAt,
		Grade:      d.evaluator.Grade(entry, def.TTL),
		Warning:    result.Warning,
		Data:       entry.Payload,
	}
	if entry.Collection {
		count := entry.Count
		env.Count = &count
	}
	return env
}

// invalidParam converts a rejected option into its envelope.
func invalidParam(err error) *model.Envelope {
	env := &model.Envelope{
		Status: http.StatusBadRequest,
		Error:  &model.EnvelopeError{Code: model.ErrCodeInvalidResource, Message: err.Error()},
	}
	var perr *catalog.ParamError
	if errors.As(err, &perr) {
		env.Error.Supported = perr.Allowed
	}
	return env
}

func isForced(options map[string]string) bool {
	for _, name := range []string{"forceRefresh", "force"} {
		if v, ok := options[name]; ok {
			if forced, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && forced {
				return true
			}
		}
	}
	return false
}

// failure converts a hard error into its envelope.
func failure(resource string, err error) *model.Envelope {
	env := &model.Envelope{Resource: resource}

	var exhausted *model.ExhaustionError
	switch {
	case errors.As(err, &exhausted):
		env.Error = &model.EnvelopeError{Message: exhausted.Error(), Providers: exhausted.Failures}
		switch {
		case exhausted.OnlyConfigErrors():
			env.Status = http.StatusFailedDependency
			env.Error.Code = model.ErrCodeMissingCredential
		case exhausted.OnlyTimeouts():
			env.Status = http.StatusGatewayTimeout
			env.Error.Code = model.ErrCodeTimeout
		default:
			env.Status = http.StatusBadGateway
			env.Error.Code = model.ErrCodeUpstreamExhausted
		}
	case errors.Is(err, service.ErrStopped):
		env.Status = http.StatusServiceUnavailable
		env.Error = &model.EnvelopeError{Code: model.ErrCodeUnavailable, Message: "service is shutting down"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		env.Status = http.StatusGatewayTimeout
		env.Error = &model.EnvelopeError{Code: model.ErrCodeTimeout, Message: "no data within the dispatch timeout"}
	default:
		log.Error().Err(err).Msgf("[dispatcher] %s: unexpected failure", resource)
		env.Status = http.StatusInternalServerError
		env.Error = &model.EnvelopeError{Code: model.ErrCodeInternal, Message: err.Error()}
	}
	return env
}

// aggregate builds the envelope of a summary operation. A negative count is omitted.
func (d *Dispatcher) aggregate(resource string, data any, count int, warning string) *model.Envelope {
	b, err := json.Marshal(data)
	if err != nil {
		return failure(resource, err)
	}
	env := &model.Envelope{
		Status:     http.StatusOK,
		Resource:   resource,
		Provenance: model.ProvenanceAggregate,
		Timestamp:  timestamp(d.evaluator.Now()),
		Warning:    warning,
		Data:       b,
	}
	if count >= 0 {
		env.Count = &count
	}
	return env
}

func timestamp(t time.Time) *time.Time {
	return &t
}
