// Package server exposes collections over HTTP: a server rendered snapshot
// with its hydration handoff, and a WebSocket that continues the handoff
// live.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	squid "github.com/squidcloud/squid-go"
	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/config"
	"github.com/squidcloud/squid-go/pkg/constants"
	"github.com/squidcloud/squid-go/pkg/hydrate"
	"github.com/squidcloud/squid-go/pkg/logger"
)

const writeWait = 10 * time.Second

// Server serves the collections of one client.
type Server struct {
	cfg      config.ServerConfig
	provider *squid.Provider
	opts     client.Options
	log      logger.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New wires the routes. Clients are obtained from provider with opts.
func New(cfg config.ServerConfig, provider *squid.Provider, opts client.Options, log logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		opts:     opts,
		log:      logger.OrNop(log),
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/collections/{name}", s.collection).Methods(http.MethodGet)
	s.router.HandleFunc("/live", s.live).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type collectionResponse struct {
	Data    []client.DocumentData `json:"data"`
	Handoff string                `json:"handoff,omitempty"`
}

// collection renders a snapshot of the collection. Query parameters:
// integration, limit, sort (field, or -field for descending) and
// subscribe=false to skip the handoff.
func (s *Server) collection(w http.ResponseWriter, r *http.Request) {
	c, err := s.provider.Client(r.Context(), s.opts)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	params := r.URL.Query()
	desc := client.NewQuery(mux.Vars(r)["name"], params.Get("integration"))
	for _, field := range params["sort"] {
		desc = desc.SortBy(strings.TrimPrefix(field, "-"), !strings.HasPrefix(field, "-"))
	}
	if l := params.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		desc = desc.WithLimit(n)
	}
	query, err := client.DeserializeQuery(c, desc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var resp collectionResponse
	render := func(p hydrate.Props[struct{}]) { resp.Data = p.Data }
	h, err := hydrate.Server(r.Context(), query, render, struct{}{},
		hydrate.WithSubscribe(params.Get("subscribe") != "false"),
		hydrate.WithLogger(s.log))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	if h != nil {
		if resp.Handoff, err = h.Encode(); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type liveMessage struct {
	Data []client.DocumentData `json:"data"`
}

// live continues a handoff: every render of the hydrated query is written
// to the socket, at most LiveRate per second. Renders that arrive faster
// collapse into the latest one.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	h, err := hydrate.DecodeHandoff(r.URL.Query().Get("handoff"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, err := s.provider.Context(context.WithoutCancel(r.Context()), s.opts)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &latest{signal: make(chan struct{}, 1)}
	view, err := hydrate.Client(ctx, h, func(p hydrate.Props[struct{}]) { out.set(p.Data) }, struct{}{},
		hydrate.WithLogger(s.log))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer view.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.LiveRate), max(s.cfg.LiveBurst, 1))
	for {
		select {
		case <-ctx.Done():
			return
		case <-out.signal:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		msg, err := json.Marshal(liveMessage{Data: out.take()})
		if err != nil {
			s.log.Warn("encode live message", "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.log.Debug("live socket closed", "error", err)
			return
		}
	}
}

// latest keeps only the newest render.
type latest struct {
	mu     sync.Mutex
	data   []client.DocumentData
	signal chan struct{}
}

func (l *latest) set(data []client.DocumentData) {
	l.mu.Lock()
	l.data = data
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *latest) take() []client.DocumentData {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if errors.Is(err, constants.ErrPrecondition) || errors.Is(err, constants.ErrInvalidHandoff) {
		status = http.StatusBadRequest
	}
	s.log.Warn("request failed", "status", status, "error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
