package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"hgimport/pkg/app"
	"hgimport/pkg/config"
	"hgimport/pkg/importer"
	"hgimport/pkg/server"

	"github.com/spf13/viper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.hgimport/config.yaml)")
	flag.Parse()
	if err := config.Load(*cfgFile); err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.LogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	application, err := app.NewApp(ctx, log)
	if err != nil {
		return err
	}
	defer application.Close()

	// 3. 预先启动 helper 进程池
	factory := func(ctx context.Context) (*importer.Importer, error) {
		return application.NewImporter(ctx)
	}
	pool, err := server.NewPool(ctx, viper.GetInt("server.instances"), factory, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 4. Setup Network
	addr := viper.GetString("server.addr")
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	grpcServer := server.New(pool, log)

	// 5. Start Server (Async)
	errCh := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening", slog.String("addr", addr))
		errCh <- grpcServer.Serve(lis)
	}()

	// 6. Graceful Shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")
	grpcServer.GracefulStop()
	return nil
}
