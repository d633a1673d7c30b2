package controller

import "github.com/fasthttp/router"

// HttpController registers its handlers on the server router.
type HttpController interface {
	AddRoute(router *router.Router)
}
