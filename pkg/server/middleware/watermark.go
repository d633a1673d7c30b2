package middleware

import (
	"github.com/Borislavv/sports-data-aggregator/pkg/server/config"
	"github.com/valyala/fasthttp"
)

type WatermarkMiddleware struct {
	config fasthttpconfig.Configurator
}

func NewWatermarkMiddleware(config fasthttpconfig.Configurator) *WatermarkMiddleware {
	return &WatermarkMiddleware{config: config}
}

func (m *WatermarkMiddleware) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Add("X-Server-Name", m.config.GetHttpServerName())

		next(ctx)
	}
}
