package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/adapter/gateway"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and reconciliation sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the MySQL schema before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if migrate && a.mysql != nil {
		if err := a.mysql.Migrate(ctx); err != nil {
			return err
		}
		a.logger.Info("schema migrated")
	}

	cfg := a.cfg
	paystack := gateway.NewPaystackClient(gateway.PaystackConfig{
		BaseURL:           cfg.PaystackBaseURL,
		SecretKey:         cfg.PaystackSecretKey,
		Timeout:           cfg.GatewayTimeout,
		RequestsPerSecond: cfg.GatewayRPS,
	})
	checkoutTokens := auth.NewCheckoutTokens(cfg.OrderEncryptionKey)
	sessions := auth.NewAuthenticator(cfg.JWTPrivateKey, cfg.SessionTTL)

	services := handler.Services{
		Carts:  service.NewCartService(a.repo, a.repo, a.logger),
		Orders: service.NewOrderService(a.repo, a.repo, a.cache, a.publisher, a.logger),
		Payments: service.NewPaymentService(a.repo, a.cache, paystack, checkoutTokens, a.reconciler,
			a.publisher, a.rec, a.logger, service.CheckoutConfig{
				PublicBaseURL: cfg.PublicBaseURL,
				Currency:      cfg.Currency,
				RequireHTTPS:  cfg.Production(),
			}),
		Delivery:  service.NewDeliveryService(a.repo, a.repo, a.publisher, a.logger),
		Catalog:   service.NewCatalogService(a.repo, a.repo, a.logger),
		Addresses: service.NewAddressService(a.repo, a.logger),
	}

	probes := a.probes()

	// Start the sweeper
	var wg sync.WaitGroup
	sweeper := a.sweeper()
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	a.logger.Info("started sweeper", slog.Int(logging.KeyWorker, cfg.WorkerCount), slog.Duration("interval", cfg.SweepInterval))

	// gRPC health server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(serviceName, probes, 0, a.logger)
	grpcHandler.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		grpcHandler.Watch(ctx)
	}()
	go func() {
		defer wg.Done()
		a.logger.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			a.logger.Error("gRPC server error", logging.Err(err))
		}
	}()

	// HTTP server
	httpHandler := handler.NewHTTPHandler(services, sessions, probes, a.metrics, a.logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		a.logger.Info("shutting down", slog.String("signal", sig.String()))
	case runErr = <-serveErr:
		a.logger.Error("HTTP server error", logging.Err(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown", logging.Err(err))
	}
	a.logger.Info("HTTP server stopped")

	grpcHandler.Shutdown()
	grpcServer.GracefulStop()
	a.logger.Info("gRPC server stopped")

	// Stop the sweeper and probe loop, letting in-flight resumes finish
	cancel()
	wg.Wait()
	a.logger.Info("workers stopped")

	return runErr
}
