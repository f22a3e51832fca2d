package wrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
)

type HTTPServer struct {
	done chan struct{}

	// Set before done is closed.
	err error
}

type HTTPServerConfig struct {
	Listener net.Listener

	Handler ProposalHandler

	// Optional JSON snapshot served at GET /status.
	Status func(context.Context) (any, error)

	// Optional handler served at GET /metrics.
	Metrics http.Handler
}

// NewHTTPServer starts serving on cfg.Listener in the background.
// The server is closed when ctx is cancelled; use Wait to block until it has stopped.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) (*HTTPServer, error) {
	m, err := newMux(log, cfg)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler: m,

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h, nil
}

func (h *HTTPServer) Wait() {
	<-h.done
}

// Err blocks until the server has stopped and returns the error that stopped it,
// or nil if it was shut down through its context.
func (h *HTTPServer) Err() error {
	<-h.done
	return h.err
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
			h.err = fmt.Errorf("http server: %w", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) (http.Handler, error) {
	if cfg.Handler == nil {
		return nil, errors.New("wrpc: proposal handler is required")
	}

	s := rpc.NewServer()
	s.RegisterCodec(newCodec(), "application/json")
	if err := s.RegisterService(&service{log: log, h: cfg.Handler}, serviceName); err != nil {
		return nil, fmt.Errorf("failed to register RPC service: %w", err)
	}

	r := mux.NewRouter()
	r.Handle("/p2p", s).Methods("POST")

	if cfg.Status != nil {
		r.HandleFunc("/status", handleStatus(log, cfg.Status)).Methods("GET")
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods("GET")
	}

	return r, nil
}

func handleStatus(log *slog.Logger, status func(context.Context) (any, error)) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		st, err := status(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			log.Warn("Failed to marshal status", "err", err)
			return
		}
	}
}
