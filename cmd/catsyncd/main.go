package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catsync/pkg/app"
	"catsync/pkg/config"
	"catsync/pkg/server"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "catsyncd:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.catsync/config.yaml)")
	addr := flag.String("addr", "", "gRPC listen address (default server.addr)")
	flag.Parse()

	if _, err := config.Load(*cfgFile); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if *addr != "" {
		viper.Set("server.addr", *addr)
	}
	// 服务端自己就是 catalog，永远使用本地模式
	viper.Set("catalog.mode", app.ModeLocal)

	// 2. Init Core Application
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()
	log := application.Log

	// 3. Setup Network
	listenAddr := viper.GetString("server.addr")
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}

	// 4. Setup gRPC Server
	svc := server.NewCatalogService(application.Connector, log)
	grpcServer := server.NewGRPCServer(svc, log, application.Metrics)

	// 5. Metrics endpoint (可选)
	var metricsSrv *http.Server
	if maddr := viper.GetString("metrics.addr"); maddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: maddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", maddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// 6. Start Server (Async)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listenAddr).Msg("catsyncd listening")
		serveErr <- grpcServer.Serve(lis)
	}()

	// 7. Graceful Shutdown
	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	grpcServer.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Info().Msg("server stopped")
	return nil
}
