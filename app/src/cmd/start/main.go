package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	grpcapi "airflow-service/app/src/api/grpc"
	httpapi "airflow-service/app/src/api/http"
	"airflow-service/app/src/domain"
	"airflow-service/app/src/infra"
	_ "airflow-service/app/src/infra/utils/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	logger := app.Logger
	defer func() { _ = logger.Sync() }()

	infra.LogConfig(ctx, logger, cfg)
	infra.StartMetricsServer(cfg.MetricsPort, logger)

	var workers sync.WaitGroup
	startPipelines(ctx, &workers, app.Pipelines, cfg.ReadingBufferSize)

	workers.Add(1)
	go func() {
		defer workers.Done()
		app.Reporter.Run(ctx)
	}()

	httpServer := newHTTPServer(cfg.HTTPPort, app.Service, app.History, logger)
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		stop()
		workers.Wait()
		logger.Fatalf(ctx, "failed to listen on HTTP port %s: %v", cfg.HTTPPort, err)
	}

	grpcServer := grpcapi.NewServer(app.Service, logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		stop()
		workers.Wait()
		logger.Fatalf(ctx, "failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf(ctx, "HTTP server shutdown error: %v", err)
		}

		grpcServer.GracefulStop()
	}()

	serverErrs := make(chan error, 2)
	var serverGroup sync.WaitGroup

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "HTTP server listening on %s", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "gRPC server listening on %s", grpcListener.Addr())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverErrs:
	}

	stop()
	workers.Wait()
	serverGroup.Wait()

	if serveErr != nil {
		logger.Errorf(ctx, "server error: %v", serveErr)
	}

	logger.Println(ctx, "server stopped")
}

// startPipelines gives every source its own channel. The source closes it on
// return, which lets the pool drain and exit.
func startPipelines(ctx context.Context, workers *sync.WaitGroup, ingest pipelines, bufferSize int) {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	for _, p := range ingest {
		batches := make(chan domain.ReadingBatch, bufferSize)

		workers.Add(2)
		go func(source domain.ReadingSource) {
			defer workers.Done()
			source.Run(ctx, batches)
		}(p.Source)
		go func(pool domain.IngestPool) {
			defer workers.Done()
			pool.Run(ctx, batches)
		}(p.Pool)
	}
}

func newHTTPServer(port string, service domain.AirflowService, history domain.EstimateReader, logger *infra.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           httpapi.NewServer(service, history, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
