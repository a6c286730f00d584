package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/relayhub/internal/profile"
	"github.com/hrygo/relayhub/plugin/agents"
	apiv1 "github.com/hrygo/relayhub/server/router/api/v1"
	"github.com/hrygo/relayhub/server/service/dialog"
	"github.com/hrygo/relayhub/store"
	storeredis "github.com/hrygo/relayhub/store/redis"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "relayhub",
	Short: "Coordinator for the multi-agent conversation pipeline",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().String("mode", "dev", `server mode, "dev" or "prod"`)
	rootCmd.Flags().String("addr", "", "binding address")
	rootCmd.Flags().Int("port", 8008, "binding port")

	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("relayhub")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("starting", "profile", p.String())

	driver := storeredis.NewDriver(p)
	st := store.New(driver, logger)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Ping(ctx); err != nil {
		return err
	}

	gateway := agents.NewClient(agents.ConfigFromProfile(p), logger)

	svc := dialog.NewService(dialog.Config{
		Debounce: dialog.Policy{
			Duration: p.DebounceDuration,
			PerRole:  p.DebouncePerRole,
		},
		DispatchTimeout: p.DispatchTimeout,
	}, st, gateway, logger)
	defer svc.Close()

	cleanup := dialog.NewCleanupJob(svc, dialog.CleanupConfig{SessionTTL: p.SessionTTL})
	cleanup.Start(ctx)
	defer cleanup.Stop()

	// Drain fire-and-forget dispatch failures so they surface in the logs
	// even when no ingestion caller is waiting on them.
	go func() {
		for failure := range svc.DispatchFailures() {
			logger.Error("async dispatch failed",
				"session_id", failure.SessionID,
				"role", failure.Role,
				"error", failure.Err.Error())
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	apiService := apiv1.NewAPIV1Service(p, st, svc, logger)
	apiService.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
