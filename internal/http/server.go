package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	infraMetrics "github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// ServerParams are the dependencies of NewServer.
type ServerParams struct {
	fx.In
	Cfg     *config.Config
	Jobs    *usecase.BatchJobService
	Records *usecase.RecordQueryService
	Exports *usecase.ExportService
	Scrape  *infraMetrics.ScrapeHandler
}

// NewServer builds the HTTP server from surfin.server.
func NewServer(p ServerParams) *http.Server {
	sc := p.Cfg.Surfin.Server
	return &http.Server{
		Addr:         sc.Address,
		Handler:      Handler(p.Jobs, p.Records, p.Exports, p.Cfg.Surfin.Metrics.Path, p.Scrape.Handler),
		ReadTimeout:  time.Duration(sc.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(sc.WriteTimeoutSeconds) * time.Second,
	}
}

// Start binds the listener and serves in the background.
func Start(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	logger.Infof("HTTP server listening on %s.", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server stopped: %v", err)
		}
	}()
	return nil
}

// Module provides the HTTP server and ties it to the application lifecycle.
var Module = fx.Options(
	fx.Provide(NewServer),
	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error { return Start(ctx, srv) },
			OnStop: func(ctx context.Context) error {
				logger.Infof("Shutting down HTTP server.")
				return srv.Shutdown(ctx)
			},
		})
	}),
)
