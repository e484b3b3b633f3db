package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"synctree/internal/api"
)

const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags commonFlags
	flags.register(fs)
	httpPort := fs.String("http-port", "", "HTTP listen port (overrides HTTP_SERVER_PORT)")
	grpcPort := fs.String("grpc-port", "", "gRPC listen port (overrides GRPC_SERVER_PORT)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	a, err := newApp(ctx, flags, stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg
	if *httpPort != "" {
		cfg.HttpServer.Port = *httpPort
	}
	if *grpcPort != "" {
		cfg.GrpcServer.Port = *grpcPort
	}
	logger.Info("starting service",
		zap.String("app_env", cfg.AppEnv),
		zap.Strings("suppliers", a.svc.Suppliers()),
		zap.Bool("history", a.history != nil),
		zap.Bool("dry_run", flags.dryRun))

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, logger)
	api.NewHTTPHandler(a.svc, cfg, logger).RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, api.NewGRPCHandler(a.svc, logger))
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("listen for gRPC on port %s: %w", cfg.GrpcServer.Port, err)
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HttpServer.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		logger.Info("HTTP server has stopped")
	}()
	go func() {
		logger.Info("gRPC server listening", zap.String("port", cfg.GrpcServer.Port))
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
			return
		}
		logger.Info("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serveErr:
		logger.Error("server failed", zap.Error(runErr))
	}
	shutdown(logger, httpServer, grpcServer)
	return runErr
}

func setupBaseMiddleware(router *chi.Mux, logger *zap.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(api.RequestLogger(logger.Named("http")))
	router.Use(middleware.Recoverer)
	// No global middleware.Timeout: resync responses stream for as long as the batch runs.
	logger.Debug("base HTTP middleware registered")
}

func setupGRPCServer(logger *zap.Logger, handler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(logger.Named("grpc"))),
		grpc.ChainStreamInterceptor(api.StreamLoggingInterceptor(logger.Named("grpc"))),
	)

	api.RegisterSyncServiceServer(s, handler)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	// Reflection serves descriptors for grpcurl; SyncService itself has no registered
	// file descriptor, so clients must address it by name.
	reflection.Register(s)
	logger.Debug("gRPC services registered", zap.String("service", api.SyncServiceName))

	return s
}

func shutdown(logger *zap.Logger, httpServer *http.Server, grpcServer *grpc.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server graceful shutdown timed out, forcing stop", zap.Error(shutdownCtx.Err()))
		grpcServer.Stop()
	}
	logger.Info("graceful shutdown sequence completed")
}
