package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Borislavv/sports-data-aggregator/pkg/catalog"
	"github.com/Borislavv/sports-data-aggregator/pkg/model"
	"github.com/Borislavv/sports-data-aggregator/pkg/utils"
)

const (
	defaultRequestTimeout = time.Second * 10
	redacted              = "REDACTED"
	abbreviateLimit       = 240
)

// Backender performs exactly one request against one provider endpoint.
type Backender interface {
	Do(ctx context.Context, ep catalog.Endpoint, vars map[string]string, secret string) ([]byte, error)
}

// Backend implements Backender over net/http.
type Backend struct {
	client *http.Client
}

// NewBackend creates a new instance of Backend. A nil client means a default one.
func NewBackend(client *http.Client) *Backend {
	if client == nil {
		client = &http.Client{}
	}
	return &Backend{client: client}
}

// Do requests the endpoint under its own timeout and returns the raw body of a 2xx response.
// Failures are *model.UpstreamError, or *model.ConfigurationError when no request could be built.
func (b *Backend) Do(ctx context.Context, ep catalog.Endpoint, vars map[string]string, secret string) ([]byte, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	// Apply a hard timeout for the attempt.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := ep.Render(vars)
	if ep.Credential != nil && ep.Credential.Query != "" {
		target = withQueryParam(target, ep.Credential.Query, secret)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &model.ConfigurationError{Provider: ep.Provider, Reason: "invalid request url " + ep.URL}
	}
	request.Header.Set("Accept", "application/json")
	for name, value := range ep.Headers {
		request.Header.Set(name, value)
	}
	if ep.Credential != nil && ep.Credential.Header != "" {
		request.Header.Set(ep.Credential.Header, secret)
	}

	response, err := b.client.Do(request)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL, ep)
		}
		return nil, &model.UpstreamError{Provider: ep.Provider, Outcome: classify(ctx, err), Err: err}
	}
	defer func() { _ = response.Body.Close() }()

	body, err := utils.ReadResponseBody(response)
	if err != nil {
		return nil, &model.UpstreamError{Provider: ep.Provider, Outcome: classify(ctx, err), Status: response.StatusCode, Err: err}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, &model.UpstreamError{
			Provider: ep.Provider,
			Outcome:  model.OutcomeHttpError,
			Status:   response.StatusCode,
			Err:      fmt.Errorf("body=%s", abbreviateBody(body)),
		}
	}

	return body, nil
}

func classify(ctx context.Context, err error) model.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.OutcomeTimeout
	}
	return model.OutcomeNetworkError
}

func withQueryParam(target, name, value string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + url.QueryEscape(name) + "=" + url.QueryEscape(value)
}

// redactURL hides the credential query param of the endpoint in s.
func redactURL(s string, ep catalog.Endpoint) string {
	if ep.Credential == nil || ep.Credential.Query == "" {
		return s
	}
	parsed, err := url.Parse(s)
	if err != nil || parsed.RawQuery == "" {
		return s
	}
	query := parsed.Query()
	if query.Has(ep.Credential.Query) {
		query.Set(ep.Credential.Query, redacted)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= abbreviateLimit {
		return text
	}
	return text[:abbreviateLimit] + "..."
}
