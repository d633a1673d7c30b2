package middleware

import "github.com/valyala/fasthttp"

// HttpMiddleware wraps a handler. Middlewares are applied in declared order,
// the first one is the outermost.
type HttpMiddleware interface {
	Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler
}
