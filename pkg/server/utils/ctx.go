package serverutils

import (
	"github.com/valyala/fasthttp"
)

// RequestIdKey is the user value under which the request id is stored.
const RequestIdKey = "requestId"

// RequestId returns the id assigned by the request id middleware, or an empty string.
func RequestId(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(RequestIdKey).(string)
	return id
}

// Write writes b as the response body.
func Write(b []byte, ctx *fasthttp.RequestCtx) (int, error) {
	return ctx.Write(b)
}
