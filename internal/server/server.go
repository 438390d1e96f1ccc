package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ktl-XV/account-monitor/internal/model"
	"github.com/Ktl-XV/account-monitor/internal/registry"
)

const maxRequestBodyBytes = 16 * 1024

// Server hosts the admin surface: account registration and the Prometheus
// metrics endpoint.
type Server struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// New builds the admin server.
func New(reg *registry.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: reg,
		logger:   logger.With(zap.String("component", "admin")),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", s.handleAddAccount)
	metricsHandler := promhttp.Handler()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		metricsHandler.ServeHTTP(w, r)
	})
	return mux
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("admin server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type addAccountRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addAccountRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Address == "" || req.Label == "" {
		http.Error(w, "address and label are required", http.StatusBadRequest)
		return
	}
	if !validAddress(req.Address) {
		http.Error(w, "invalid account address", http.StatusBadRequest)
		return
	}

	account := model.Account{
		Address: common.HexToAddress(req.Address),
		Label:   req.Label,
	}
	s.registry.Insert(account)

	count := s.registry.Len()
	s.logger.Info("watched accounts updated",
		zap.String("label", account.Label),
		zap.Int("count", count),
	)

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Watching %d accounts\n", count)
}

func validAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) == 42 && common.IsHexAddress(s)
}
