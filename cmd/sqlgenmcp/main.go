package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/sqlgenmcp/configs"
	"github.com/i2y/sqlgenmcp/internal/adapter/inbound/mcphttp"
	"github.com/i2y/sqlgenmcp/internal/adapter/inbound/rpcloop"
	"github.com/i2y/sqlgenmcp/internal/adapter/outbound/memrepo"
	"github.com/i2y/sqlgenmcp/internal/adapter/outbound/openapi"
	"github.com/i2y/sqlgenmcp/internal/adapter/outbound/sqlgen"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

const (
	transportStdio   = "stdio"
	transportSSE     = "sse"
	transportJSONRPC = "jsonrpc"
)

func main() {
	// === Command Line Flags ===
	var transport string
	flag.StringVar(&transport, "transport", transportStdio, "Transport mode: stdio, sse or jsonrpc")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === Configuration ===
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// === Logging ===
	logger, closeLog := newLogger(cfg, transport)
	defer closeLog()
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("transport", transport))

	// === OpenTelemetry Initialization ===
	tel, err := newTelemetry(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry.", slog.Any("error", err))
		os.Exit(1)
	}
	tel.install()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry providers.", slog.Any("error", err))
		}
	}()

	// === Registry (build phase, then frozen) ===
	registry, err := buildRegistry(logger)
	if err != nil {
		logger.Error("Failed to build operation registry.", slog.Any("error", err))
		os.Exit(1)
	}
	dispatcher := usecase.NewDispatcher(registry, logger, tel.dispatcherOptions()...)
	listUC := usecase.NewListOperationsUseCase(registry, logger)

	if err := run(ctx, stop, transport, cfg, registry, dispatcher, listUC, logger); err != nil {
		logger.Error("Server exited with error.", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server stopped.")
}

// buildRegistry registers every operation this server offers and freezes the registry.
func buildRegistry(logger *slog.Logger) (*memrepo.OperationRegistry, error) {
	registry := memrepo.NewOperationRegistry(logger)
	gen := sqlgen.NewGenerator(sqlgen.DefaultMapping, logger)
	if err := registry.Register(gen.Operation(), gen); err != nil {
		return nil, fmt.Errorf("register %s: %w", sqlgen.OperationName, err)
	}
	registry.Freeze()
	return registry, nil
}

func run(
	ctx context.Context,
	stop context.CancelFunc,
	transport string,
	cfg *configs.Config,
	registry *memrepo.OperationRegistry,
	dispatcher *usecase.Dispatcher,
	listUC *usecase.ListOperationsUseCase,
	logger *slog.Logger,
) error {
	if transport == transportJSONRPC {
		logger.Info("Starting in native JSON-RPC mode")
		srv := rpcloop.NewServer(rpcloop.NewLineChannel(os.Stdin, os.Stdout), listUC, dispatcher, logger)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	mcpSrv, err := newMCPServer(ctx, cfg, registry, dispatcher, logger)
	if err != nil {
		return err
	}

	switch transport {
	case transportStdio:
		logger.Info("Starting in STDIO mode")
		srv := newStdioServer(os.Stdin, os.Stdout, mcpSrv, listUC, dispatcher, logger)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil

	case transportSSE:
		logger.Info("Starting in SSE mode")
		sseServer := mcpGoServer.NewSSEServer(mcpSrv, mcpGoServer.WithBaseURL("http://"+cfg.ListenAddr))

		// === Admin HTTP Server Setup ===
		adminHandlers := mcphttp.NewHandlers(
			listUC,
			dispatcher,
			openapi.NewDocumentGenerator(cfg.ServerName, cfg.ServerVersion, logger),
			logger,
		)
		adminServer := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           adminHandlers.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Admin HTTP server starting.", slog.String("address", adminServer.Addr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Admin HTTP server failed to start.", slog.Any("error", err))
				stop()
			}
		}()

		go func() {
			logger.Info("MCP SSE server starting.", slog.String("address", cfg.ListenAddr))
			if err := sseServer.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("MCP SSE server failed to start.", slog.Any("error", err))
				stop()
			}
		}()

		<-ctx.Done()

		// === Server Shutdown ===
		logger.Info("Shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		adminErr := adminServer.Shutdown(shutdownCtx)
		sseErr := sseServer.Shutdown(shutdownCtx)
		if err := errors.Join(adminErr, sseErr); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("Servers shut down gracefully.")
		return nil

	default:
		return fmt.Errorf("invalid transport mode %q", transport)
	}
}

// newMCPServer creates the mcp-go server and publishes every registered operation as a tool.
func newMCPServer(
	ctx context.Context,
	cfg *configs.Config,
	registry usecase.OperationRegistry,
	dispatcher usecase.CallDispatcher,
	logger *slog.Logger,
) (*mcpGoServer.MCPServer, error) {
	opts := []mcpGoServer.ServerOption{
		mcpGoServer.WithToolCapabilities(false),
		mcpGoServer.WithRecovery(),
	}
	if cfg.Instructions != "" {
		opts = append(opts, mcpGoServer.WithInstructions(cfg.Instructions))
	}
	mcpSrv := mcpGoServer.NewMCPServer(cfg.ServerName, cfg.ServerVersion, opts...)

	publishUC := usecase.NewPublishOperationsUseCase(registry, dispatcher, mcpSrv, logger)
	if err := publishUC.Execute(ctx); err != nil {
		return nil, fmt.Errorf("publish operations: %w", err)
	}
	return mcpSrv, nil
}

// newStdioServer serves MCP over newline-delimited JSON. Calls to unregistered
// tools are answered as MethodNotFound; everything else goes to mcp-go.
func newStdioServer(
	in io.Reader,
	out io.Writer,
	mcpSrv *mcpGoServer.MCPServer,
	listUC *usecase.ListOperationsUseCase,
	dispatcher usecase.CallDispatcher,
	logger *slog.Logger,
) *rpcloop.Server {
	return rpcloop.NewServer(rpcloop.NewLineChannel(in, out), listUC, dispatcher, logger, rpcloop.WithForwarder(mcpSrv))
}

// newLogger logs to stderr in SSE mode. The stdio-based transports own stdout,
// so they log to the configured file instead.
func newLogger(cfg *configs.Config, transport string) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: cfg.ParsedLogLevel()}
	if transport == transportSSE {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}
	}
	return slog.New(slog.NewTextHandler(logFile, opts)), func() { _ = logFile.Close() }
}
