package middleware

import (
	"strconv"

	"github.com/Borislavv/sports-data-aggregator/pkg/prometheus/metrics"
	"github.com/valyala/fasthttp"
)

type PrometheusMetrics struct {
	metrics metrics.Meter
}

func NewPrometheusMetrics(metrics metrics.Meter) *PrometheusMetrics {
	return &PrometheusMetrics{metrics: metrics}
}

func (m *PrometheusMetrics) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		// copies: label values outlive the request buffers
		path := string(ctx.Path())
		method := string(ctx.Method())

		timer := m.metrics.NewResponseTimeTimer(path, method)

		m.metrics.IncTotal(path, method, "")

		next(ctx)

		status := strconv.Itoa(ctx.Response.StatusCode())
		m.metrics.IncStatus(path, method, status)
		m.metrics.IncTotal(path, method, status)

		m.metrics.FlushResponseTimeTimer(timer)
	}
}
