package middleware

import (
	serverutils "github.com/Borislavv/sports-data-aggregator/pkg/server/utils"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const RequestIdHeader = "X-Request-Id"

// RequestIdMiddleware keeps the caller's request id or issues a new one, exposes it
// to handlers and echoes it in the response.
type RequestIdMiddleware struct{}

func NewRequestIdMiddleware() *RequestIdMiddleware {
	return &RequestIdMiddleware{}
}

func (m *RequestIdMiddleware) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek(RequestIdHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		ctx.SetUserValue(serverutils.RequestIdKey, id)
		ctx.Response.Header.Set(RequestIdHeader, id)

		next(ctx)
	}
}
