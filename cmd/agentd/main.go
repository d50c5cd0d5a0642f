package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/client"
	"github.com/totegamma/agentdesk/internal/config"
	"github.com/totegamma/agentdesk/internal/infra/database"
	"github.com/totegamma/agentdesk/internal/infra/gateway"
	"github.com/totegamma/agentdesk/internal/infra/repository"
	"github.com/totegamma/agentdesk/internal/infra/telemetry"
	"github.com/totegamma/agentdesk/internal/present/rest"
	accesslog "github.com/totegamma/agentdesk/internal/present/rest/middleware"
	"github.com/totegamma/agentdesk/internal/service"
	"github.com/totegamma/agentdesk/internal/usecase"
)

var version = "dev"

func setupLogger(conf config.Server) {
	var level slog.Level
	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if conf.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "agentd"))
}

func main() {
	configPath := flag.String("config", "/etc/agentdesk/config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(conf.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "watch":
		if err := watch(ctx, conf); err != nil {
			slog.Error("watch failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case "wait":
		if err := wait(ctx, conf, flag.Arg(1)); err != nil {
			slog.Error("wait failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := conf.ValidateServe(); err != nil {
		slog.Error("invalid server config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := serve(ctx, conf); err != nil {
		slog.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("agentd exiting")
}

func serve(ctx context.Context, conf config.Config) error {
	if conf.Server.EnableTrace {
		shutdown, err := telemetry.SetupTracer(ctx, "agentd", version, conf.Server.TraceEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Warn("failed to flush traces", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		return err
	}
	if err := database.MigratePostgres(db); err != nil {
		return err
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
	if rdb != nil {
		defer rdb.Close()
	} else {
		slog.Info("redis not configured, status events disabled")
	}
	mc := database.NewMemcached(conf.Server.MemcachedAddr)
	if mc == nil {
		slog.Info("memcached not configured, output cache disabled")
	}

	agentRepo := repository.NewAgentRepository(db)
	outputRepo := repository.NewOutputRepository(db, mc)
	processor := gateway.NewProcessorGateway(gateway.ProcessorConfig{
		BaseURL:      conf.Processor.BaseURL,
		DispatchPath: conf.Processor.DispatchPath,
		Timeout:      conf.Processor.Timeout.Std(),
		UserAgent:    conf.Processor.UserAgent,
	})
	signalService := service.NewSignalService(rdb)

	agentUsecase := usecase.NewAgentUsecase(agentRepo, outputRepo, processor, signalService)

	reaper := usecase.NewReaper(agentRepo, signalService, conf.Reaper.StaleAfter.Std())
	go reaper.Run(ctx, conf.Reaper.Interval.Std())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(otelecho.Middleware("agentd"))
	e.Use(accesslog.AccessLog)

	rest.NewHandler(agentUsecase, conf.Processor.Mock).RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", conf.Server.Listen), slog.String("version", version))
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// watch prints status events published by running servers.
func watch(ctx context.Context, conf config.Config) error {
	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
	if rdb == nil {
		return errors.New("server.redisAddr is required to watch events")
	}
	defer rdb.Close()

	events, err := service.NewSignalService(rdb).Subscribe(ctx)
	if err != nil {
		return err
	}

	for event := range events {
		slog.Info("status changed",
			slog.String("requestId", event.RequestID),
			slog.String("status", string(event.Status)),
			slog.Time("at", event.At),
		)
	}
	return nil
}

// wait polls a running server until the request settles and prints its output.
func wait(ctx context.Context, conf config.Config, requestID string) error {
	id, ok := agentdesk.NormalizeRequestID(requestID)
	if !ok {
		return fmt.Errorf("usage: agentd wait <requestId>")
	}

	cl := client.New(conf.Client.ServerURL)
	result, err := cl.WaitForCompletion(ctx, id, conf.Client.PollInterval.Std())
	if err != nil {
		return err
	}

	agentdesk.JsonPrint("result", result)
	return nil
}
