package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
)

// Duration reports the handling time in the Server-Timing header.
type Duration struct{}

func NewDuration() *Duration {
	return &Duration{}
}

func (m *Duration) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		from := time.Now()

		next(ctx)

		ctx.Response.Header.Add("Server-Timing", "p;dur="+strconv.Itoa(int(time.Since(from).Milliseconds())))
	}
}
