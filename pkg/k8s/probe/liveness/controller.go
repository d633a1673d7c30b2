package liveness

import (
	"net/http"

	"github.com/fasthttp/router"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const K8SProbeGetPath = "/k8s/probe"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Controller struct {
	prober Prober
}

func NewController(prober Prober) *Controller {
	return &Controller{prober: prober}
}

func (c *Controller) Probe(ctx *fasthttp.RequestCtx) {
	isAlive := c.prober.IsAlive()

	resp := make(map[string]map[string]bool, 1)
	resp["data"] = make(map[string]bool, 1)
	resp["data"]["success"] = isAlive

	b, err := json.Marshal(resp)
	if err != nil {
		log.Err(err).Msg("[probe] unable to handle request, error occurred while marshaling data into []byte")
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}

	if !isAlive {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
	}

	if _, err = ctx.Write(b); err != nil {
		log.Err(err).Msg("[probe] unable to handle request, error occurred while writing data into *fasthttp.RequestCtx")
	}
}

func (c *Controller) AddRoute(router *router.Router) {
	router.GET(K8SProbeGetPath, c.Probe)
}
