package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/offline-agent/application"
	"github.com/felixgeelhaar/offline-agent/application/lifecycle"
	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	"github.com/felixgeelhaar/offline-agent/domain/version"
	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
)

// ControlPrefix is the path prefix of the agent's own endpoints. Every
// other path is intercepted and served for the origin.
const ControlPrefix = "/_agent/"

// HeaderFetchDest carries the browser's resource-type hint.
const HeaderFetchDest = "Sec-Fetch-Dest"

// DefaultMaxRequestBody bounds request bodies accepted by the server.
const DefaultMaxRequestBody = 8 << 20

// Server exposes an agent over HTTP.
type Server struct {
	agent   *application.Agent
	origin  *url.URL
	metrics http.Handler
	maxBody int64
	mux     *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h at /_agent/metrics. A nil handler disables
// the endpoint.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxRequestBody bounds accepted request bodies.
func WithMaxRequestBody(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer creates a handler for agent. Intercepted paths are resolved
// against origin. The agent's event loop must be running.
func NewServer(agent *application.Agent, origin string, opts ...ServerOption) (*Server, error) {
	if agent == nil {
		return nil, errors.New("agent is required")
	}
	u, err := url.Parse(origin)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}

	s := &Server{agent: agent, origin: u, maxBody: DefaultMaxRequestBody}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+ControlPrefix+"install", s.handleInstall)
	mux.HandleFunc("POST "+ControlPrefix+"activate", s.handleActivate)
	mux.HandleFunc("POST "+ControlPrefix+"online", s.handleOnline)
	mux.HandleFunc("POST "+ControlPrefix+"push", s.handlePush)
	mux.HandleFunc("GET "+ControlPrefix+"queue", s.handleQueueList)
	mux.HandleFunc("POST "+ControlPrefix+"queue", s.handleQueueAppend)
	mux.HandleFunc("GET "+ControlPrefix+"healthz", s.handleHealth)
	mux.HandleFunc("GET "+ControlPrefix+"metrics", s.handleMetrics)
	mux.HandleFunc(ControlPrefix, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("unknown agent endpoint"))
	})
	mux.HandleFunc("/", s.handleIntercept)
	s.mux = mux

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleIntercept serves any non-control request as if it were bound for
// the origin.
func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	target := s.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	req := request.New(r.Method, target.String())
	req.Header = r.Header.Clone()
	req.Hint = request.Hint(r.Header.Get(HeaderFetchDest))
	if len(body) > 0 {
		req.Body = body
	}

	res, err := s.agent.Submit(r.Context(), event.NewRequest(req))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	resp := res.Response
	if resp == nil {
		writeError(w, http.StatusBadGateway, res.Err)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

type installRequest struct {
	Version  cache.VersionTag `json:"version"`
	Manifest []string         `json:"manifest,omitempty"`
}

type versionReply struct {
	Version cache.VersionTag `json:"version"`
	Phase   version.Phase    `json:"phase,omitempty"`
	Purged  []string         `json:"purged,omitempty"`
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var in installRequest
	if !s.decode(w, r, &in) {
		return
	}
	if _, ok := s.submit(w, r, event.NewInstall(in.Version, in.Manifest)); !ok {
		return
	}
	writeJSON(w, http.StatusOK, versionReply{Version: in.Version, Phase: version.PhaseInstalled})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var in installRequest
	if !s.decode(w, r, &in) {
		return
	}
	res, ok := s.submit(w, r, event.NewActivate(in.Version))
	if !ok {
		return
	}
	purged := res.Purged
	if purged == nil {
		purged = []string{}
	}
	writeJSON(w, http.StatusOK, versionReply{Version: in.Version, Phase: version.PhaseActivated, Purged: purged})
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	res, ok := s.submit(w, r, event.NewConnectivityRestored())
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Drain)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	res, ok := s.submit(w, r, event.NewPush(payload))
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": res.PushID})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	ops, err := s.agent.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ops == nil {
		ops = []queue.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleQueueAppend(w http.ResponseWriter, r *http.Request) {
	var in request.Request
	if !s.decode(w, r, &in) {
		return
	}
	if u, err := url.Parse(in.URL); err == nil && !u.IsAbs() {
		in.URL = s.origin.ResolveReference(u).String()
	}
	res, ok := s.submit(w, r, event.NewEnqueue(in))
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, res.Operation)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.agent.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, errors.New("metrics exporter is not prometheus"))
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

// submit sends e through the event loop and writes an error reply when
// the event fails.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, e event.Event) (event.Result, bool) {
	res, err := s.agent.Submit(r.Context(), e)
	if err == nil {
		err = res.Err
	}
	if err != nil {
		logging.Debug().
			Add(logging.EventKind(e.Kind)).
			Add(logging.ErrorField(err)).
			Msg("control request failed")
		writeError(w, statusFor(err), err)
		return res, false
	}
	return res, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cache.ErrInvalidVersion),
		errors.Is(err, lifecycle.ErrInvalidManifest),
		errors.Is(err, event.ErrInvalidEvent),
		errors.Is(err, queue.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNotInstalled),
		errors.Is(err, lifecycle.ErrActiveVersion),
		errors.Is(err, version.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrManifestFetch):
		return http.StatusBadGateway
	case errors.Is(err, event.ErrLoopStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
