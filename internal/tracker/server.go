package tracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/netvoice/tracker/internal/tracker/channel"
	"github.com/netvoice/tracker/internal/tracker/history"
	"github.com/netvoice/tracker/internal/tracker/store"
	"github.com/netvoice/tracker/pkg/log"
)

/*
Server serves the local read-only console surface:
- /api/v1/status returns the tracker's connection and action state
- /api/v1/operation returns the live operation
- /api/v1/operations/recent returns the recent-operations cache
- /metrics exposes prometheus metrics
Nothing served here mutates tracked state.
*/
type Server struct {
	port       int
	restServer *http.Server
}

func NewServer(port int) *Server {
	return &Server{port: port}
}

func (s *Server) Start(st *store.Store, ch *channel.Channel, hist *history.Controller) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(log.Logger(zap.L(), "server"))
	router.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}))

	RegisterApi(router, st, ch, hist)
	router.Handle("/metrics", promhttp.Handler())

	s.restServer = &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", s.port), Handler: router}

	err := s.restServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		zap.S().Named("server").Fatalf("failed to start server: %v", err)
	}
}

func (s *Server) Stop(stopCh chan any) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	doneCh := make(chan any)

	go func() {
		if s.restServer != nil {
			if err := s.restServer.Shutdown(shutdownCtx); err != nil {
				zap.S().Named("server").Errorf("failed to graceful shutdown the server: %s", err)
			}
		}
		close(doneCh)
	}()

	<-doneCh

	close(stopCh)
}
