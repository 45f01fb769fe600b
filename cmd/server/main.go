package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/dig"

	"github.com/anishgillella/serene-sub003/internal/config"
	"github.com/anishgillella/serene-sub003/internal/container"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/scheduler"
	"github.com/anishgillella/serene-sub003/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to $SERENE_CONFIG)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)
	ctx := context.Background()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatalf(ctx, "Failed to init tracing: %v", err)
	}

	cleaner := container.NewResourceCleaner()
	cleaner.Register(shutdownTracer)
	c := container.BuildContainer(dig.New(), cfg, cleaner)

	err = c.Invoke(func(router *gin.Engine, sweeper *scheduler.SessionSweeper) error {
		server := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		}

		sweeper.Start()
		cleaner.RegisterFunc(sweeper.Stop)

		errCh := make(chan error, 1)
		go func() {
			logger.Infof(ctx, "Server is running at %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-signals:
			logger.Infof(ctx, "Received signal %v, shutting down", sig)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		}

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(ctx, "Server forced to shutdown: %v", err)
		}
		return nil
	})

	cleanupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if cerr := cleaner.Cleanup(cleanupCtx); cerr != nil {
		logger.Errorf(ctx, "Cleanup errors: %v", cerr)
	}
	if err != nil {
		logger.Errorf(ctx, "Server exited with error: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "Server exited")
}
