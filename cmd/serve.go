package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"docshare/config/database"
	"docshare/internal/auth"
	"docshare/pkg/logger"
	"docshare/router"
	"docshare/socket"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateOnStart {
		if err := database.MigrateUp(db); err != nil {
			return err
		}
		logger.Sugar.Info("Migrations applied")
	}

	hub := socket.NewHub(cfg.AllowedOrigins)
	go hub.Run(ctx)

	sessions := auth.NewSessionManager(
		auth.NewClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, &http.Client{Timeout: 10 * time.Second}),
		auth.NewVerifier(cfg.Supabase.JWTSecret),
		auth.NewEmailLimiter(cfg.MagicLink.Interval, cfg.MagicLink.Burst),
		cfg.SiteURL,
		cfg.CookieSecure,
	)
	unsubscribe := sessions.Subscribe(hub.HandleAuthEvent)
	defer unsubscribe()

	handler, err := router.Setup(db, hub, sessions, cfg.AllowedOrigins)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Sugar.Info("Server stopped")
	return nil
}
