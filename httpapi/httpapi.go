// Package httpapi exposes the Engine over HTTP: graph lifecycle control
// and a Prometheus scrape endpoint. Routing is httprouter directly, the
// teacher's own choice of router (internal/httpserver in
// brunotm-streams); the thin Server/Config wrapper that package built
// around it added nothing graph-specific, so its surface is folded
// straight into API here instead of carried as a separate untouched
// package. The request-decoding shape — register a per-path handler
// that decodes a JSON body and forwards it — is reused from the
// teacher's processor/source/http, decoding into an ObjectMetadata and
// forwarding it into a source element instead of a stream topology.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sophon-stream/graphrt"
	"github.com/sophon-stream/graphrt/frame"
	"github.com/sophon-stream/graphrt/metrics"
	"github.com/sophon-stream/graphrt/xerr"
)

// Handle and Params are the httprouter types this package's handlers
// are written against, aliased here so callers never need to import
// httprouter themselves to compose additional routes on the same API.
type Handle = httprouter.Handle
type Params = httprouter.Params

// Config controls the serving address, server timeouts, and an
// optional Basic Auth gate on the graph-mutating endpoints (add/start/
// stop/pause/resume/push). /graphs (GET) and /metrics stay open
// regardless, since they're read-only.
type Config struct {
	Addr              string
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	AuthUser          string
	AuthPassword      string
}

// pushRequest is the wire shape accepted by the source-push endpoint.
// Detections/Tracked are intentionally omitted: external pushes seed a
// channel with a bare frame, detections are produced by algorithm
// elements downstream.
type pushRequest struct {
	ChannelID         string `json:"channel_id"`
	ChannelIDInternal int    `json:"channel_id_internal"`
	FrameID           uint64 `json:"frame_id"`
	EOS               bool   `json:"eos"`
}

// API wraps an Engine with an HTTP control surface.
type API struct {
	engine *graphrt.Engine
	router *httprouter.Router
	http   *http.Server
}

// New builds an API bound to engine per cfg, optionally exposing reg's
// metrics at /metrics when reg is non-nil.
func New(engine *graphrt.Engine, cfg Config, reg *metrics.Registry) *API {
	router := httprouter.New()
	a := &API{
		engine: engine,
		router: router,
		http:   &http.Server{Addr: cfg.Addr, Handler: router},
	}
	if cfg.WriteTimeout != 0 {
		a.http.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ReadTimeout != 0 {
		a.http.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.ReadHeaderTimeout != 0 {
		a.http.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	}

	mutate := func(h Handle) Handle {
		if cfg.AuthUser == "" {
			return h
		}
		return basicAuth(h, cfg.AuthUser, cfg.AuthPassword)
	}

	router.Handle(http.MethodPost, "/graphs", mutate(a.addGraph))
	router.Handle(http.MethodGet, "/graphs", a.listGraphs)
	router.Handle(http.MethodPost, "/graphs/:id/start", mutate(a.transition(engine.Start)))
	router.Handle(http.MethodPost, "/graphs/:id/stop", mutate(a.transition(engine.Stop)))
	router.Handle(http.MethodPost, "/graphs/:id/pause", mutate(a.transition(engine.Pause)))
	router.Handle(http.MethodPost, "/graphs/:id/resume", mutate(a.transition(engine.Resume)))
	router.Handle(http.MethodPost, "/graphs/:id/elements/:eid/ports/:port/push", mutate(a.pushSourceData))

	if reg != nil {
		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		router.Handle(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ Params) {
			handler.ServeHTTP(w, r)
		})
	}

	return a
}

// Start serves until Close is called.
func (a *API) Start() error {
	if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the server down.
func (a *API) Close() error {
	return a.http.Shutdown(context.Background())
}

// ServeHTTP lets tests and embedding callers drive the router directly
// without binding a real listener.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// basicAuth wraps h so it only runs once the request carries matching
// HTTP Basic credentials, used to gate mutating endpoints when
// Config.AuthUser is set.
func basicAuth(h Handle, requiredUser, requiredPassword string) Handle {
	return func(w http.ResponseWriter, r *http.Request, ps Params) {
		user, password, hasAuth := r.BasicAuth()
		if hasAuth && user == requiredUser && password == requiredPassword {
			h(w, r, ps)
			return
		}
		w.Header().Set("WWW-Authenticate", "Basic realm=Restricted")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
}

func (a *API) addGraph(w http.ResponseWriter, r *http.Request, _ Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, xerr.Wrap(xerr.ParseConfigureFail, err))
		return
	}

	id, xe := a.engine.AddGraph(body)
	if xe != nil {
		writeError(w, xe)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"graph_id": id})
}

func (a *API) listGraphs(w http.ResponseWriter, r *http.Request, _ Params) {
	writeJSON(w, http.StatusOK, map[string][]int{"graph_ids": a.engine.GetGraphIds()})
}

func (a *API) transition(fn func(int) *xerr.Error) Handle {
	return func(w http.ResponseWriter, r *http.Request, ps Params) {
		id, err := strconv.Atoi(ps.ByName("id"))
		if err != nil {
			writeError(w, xerr.New(xerr.NoSuchGraphID, "invalid graph id"))
			return
		}
		if xe := fn(id); xe != nil {
			writeError(w, xe)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (a *API) pushSourceData(w http.ResponseWriter, r *http.Request, ps Params) {
	graphID, err1 := strconv.Atoi(ps.ByName("id"))
	elementID, err2 := strconv.Atoi(ps.ByName("eid"))
	port, err3 := strconv.Atoi(ps.ByName("port"))
	if err1 != nil || err2 != nil || err3 != nil {
		writeError(w, xerr.New(xerr.NoSuchElementID, "invalid id in path"))
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerr.Wrap(xerr.ParseConfigureFail, err))
		return
	}

	var payload *frame.ObjectMetadata
	if req.EOS {
		payload = frame.EOSFrame(req.ChannelID, req.ChannelIDInternal, req.FrameID)
	} else {
		payload = frame.New(req.ChannelID, req.ChannelIDInternal, req.FrameID)
	}

	if xe := a.engine.PushSourceData(graphID, elementID, port, payload); xe != nil {
		writeError(w, xe)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, xe *xerr.Error) {
	status := http.StatusInternalServerError
	switch xe.Code {
	case xerr.NoSuchGraphID, xerr.NoSuchElementID, xerr.NoSuchWorker:
		status = http.StatusNotFound
	case xerr.ParseConfigureFail:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": xe.Code.String(), "detail": xe.Error()})
}
