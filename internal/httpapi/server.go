// Package httpapi exposes the custody service over HTTP: call endpoints for
// mutations, view endpoints for queries, a websocket feed and operational
// endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracefood/internal/auth"
	"tracefood/internal/core"
	"tracefood/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Options configures a Server. Auth is required; everything else defaults.
type Options struct {
	Auth        *auth.Manager
	Logger      core.Logger
	Feed        *Feed
	Registry    *prometheus.Registry // serves /metrics; a fresh one when nil
	CorsOrigins []string
}

// Server routes HTTP requests to a core.Service.
type Server struct {
	svc      *core.Service
	auth     *auth.Manager
	logger   core.Logger
	feed     *Feed
	registry *prometheus.Registry
	handler  http.Handler
}

// New builds a server and registers its HTTP metrics on opts.Registry.
func New(svc *core.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service required")
	}
	if opts.Auth == nil {
		return nil, errors.New("auth manager required")
	}
	s := &Server{svc: svc, auth: opts.Auth, logger: opts.Logger, feed: opts.Feed, registry: opts.Registry}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.feed == nil {
		s.feed = NewFeed(s.logger, opts.CorsOrigins...)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	metrics, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Use(metrics.middleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, requestError{kind: KindUnknownMethod, err: errors.New("no such route")})
	})
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/feed", s.feed).Methods(http.MethodGet)
	api.HandleFunc("/view/{method}", s.view).Methods(http.MethodGet, http.MethodPost)
	calls := api.PathPrefix("/call").Subrouter()
	calls.Use(s.authenticate)
	calls.HandleFunc("/{method}", s.call).Methods(http.MethodPost)

	var h http.Handler = r
	h = newCORS(opts.CorsOrigins)(h)
	h = logRequests(s.logger)(h)
	h = requestID(h)
	h = recoverPanics(s.logger)(h)
	s.handler = h
	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Feed returns the websocket hub the server publishes on.
func (s *Server) Feed() *Feed { return s.feed }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	initialized := false
	err := s.svc.Store().View(r.Context(), func(v domain.TransactionView) error {
		_, initialized = v.Registry()
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialized": initialized,
		"subscribers": s.feed.Clients(),
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return malformed(errors.New("request body required"))
		}
		return malformed(fmt.Errorf("decode request body: %w", err))
	}
	return nil
}

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	ctx := r.Context()
	var err error
	switch method := mux.Vars(r)["method"]; method {
	case "initialize":
		var req core.InitializeRequest
		if err = decodeBody(r, &req); err == nil {
			if req.StageTransitions == nil {
				err = malformed(errors.New("stage_transitions required"))
			} else {
				_, err = s.svc.Initialize(ctx, caller, req.StageTransitions)
			}
		}
	case "mint_lot":
		var req core.MintRequest
		if err = decodeBody(r, &req); err == nil {
			_, _, err = s.svc.MintLot(ctx, caller, req)
		}
	case "confirm_stage":
		var req core.ConfirmRequest
		if err = decodeBody(r, &req); err == nil {
			_, _, err = s.svc.ConfirmStage(ctx, caller, req)
		}
	default:
		err = requestError{kind: KindUnknownMethod, err: fmt.Errorf("unknown call method %q", method)}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// viewArgs accepts arguments from a JSON body (POST) or the query string.
type viewArgs struct {
	LotID   string `json:"lot_id"`
	ActorID string `json:"actor_id"`
}

func readViewArgs(r *http.Request) (viewArgs, error) {
	var args viewArgs
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := decodeBody(r, &args); err != nil {
			return args, err
		}
	}
	q := r.URL.Query()
	if args.LotID == "" {
		args.LotID = q.Get("lot_id")
	}
	if args.ActorID == "" {
		args.ActorID = q.Get("actor_id")
	}
	return args, nil
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	args, err := readViewArgs(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	var out any
	switch method := mux.Vars(r)["method"]; method {
	case "get_lot_state":
		var lot *core.FoodLot
		lot, err = s.svc.GetLotState(ctx, args.LotID)
		out = lot
	case "get_all_lot_ids":
		var ids []string
		ids, err = s.svc.GetAllLotIDs(ctx)
		out = nonNil(ids)
	case "lots_pending_actor":
		var ids []string
		ids, err = s.svc.LotsPendingActor(ctx, args.ActorID)
		out = nonNil(ids)
	default:
		err = requestError{kind: KindUnknownMethod, err: fmt.Errorf("unknown view method %q", method)}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := writeError(w, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err, "request_id", RequestIDFromContext(r.Context()))
	}
}

// ServeConfig holds listener settings for ListenAndServe.
type ServeConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// and disconnects feed subscribers.
func (s *Server) ListenAndServe(ctx context.Context, cfg ServeConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.feed.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
