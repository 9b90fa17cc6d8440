package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/adapters/http"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/config"
)

var (
	envName string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Real-time chat delivery and call signaling server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "config environment (config/config.<env>.yaml), defaults to $CONFIG_ENV or dev")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	cfg, err := config.Load(envName)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	app, err := wire(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return err
	}

	go app.rooms.Run(ctx)
	go app.direct.Run(ctx)
	go app.registry.Run(ctx, cfg.Registry.ReapInterval)
	go app.limiter.Run(ctx, cfg.Limits.IdleSweep)

	r := router.SetupRouter(ctx, cfg, app.deps())
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("realtime server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.close(shutdownCtx)
	log.Info().Msg("Server exited gracefully")
	return err
}
