package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/auth"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/config"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/database"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/decay"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/logging"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/players"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/realtime"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pixel-defence-api",
		Short: "Pixel Defence canvas backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("cooldown-seconds", defaults.GetInt("game.cooldown_seconds"), "Paint cooldown in seconds")
	cmd.PersistentFlags().Int("decay-interval-ms", defaults.GetInt("game.decay_interval_ms"), "Decay tick interval in milliseconds")
	cmd.PersistentFlags().Int("presence-window-ms", defaults.GetInt("game.presence_window_ms"), "Presence window in milliseconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "game.cooldown_seconds", "cooldown-seconds")
	bindFlag(cmd, "game.decay_interval_ms", "decay-interval-ms")
	bindFlag(cmd, "game.presence_window_ms", "presence-window-ms")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newTokenCommand mints a session token for the given user. Operator tooling:
// the platform that normally issues sessions is external to this service.
func newTokenCommand() *cobra.Command {
	var username string
	var moderator bool

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a session token for a user",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			sessions, err := newSessionManager(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := sessions.IssueSessionToken(username, moderator)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username the token identifies")
	cmd.Flags().BoolVar(&moderator, "moderator", false, "Grant the moderator flag")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newSessionManager(appConfig config.AppConfig) (*auth.SessionManager, error) {
	return auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "pixel-defence-auth",
		Audience:      "pixel-defence-api",
		TokenTTL:      appConfig.SessionTTL,
	})
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	kv, err := kvstore.NewStore(kvstore.Config{Database: db})
	if err != nil {
		return err
	}

	canvasStore, err := canvas.NewStore(canvas.StoreConfig{KV: kv, Logger: logger})
	if err != nil {
		return err
	}
	targetStore, err := canvas.NewTargetStore(canvas.StoreConfig{KV: kv, Logger: logger})
	if err != nil {
		return err
	}

	cooldowns, err := players.NewCooldownGuard(players.CooldownGuardConfig{
		KV:       kv,
		Duration: appConfig.Cooldown,
	})
	if err != nil {
		return err
	}
	presence, err := players.NewPresenceTracker(players.PresenceTrackerConfig{
		KV:     kv,
		Window: appConfig.PresenceWindow,
	})
	if err != nil {
		return err
	}
	leaderboard, err := players.NewLeaderboard(players.LeaderboardConfig{KV: kv})
	if err != nil {
		return err
	}

	dispatcher := realtime.NewDispatcher()

	decayEngine, err := decay.NewEngine(decay.Config{
		KV:          kv,
		Canvas:      canvasStore,
		Broadcaster: dispatcher,
		Logger:      logger,
		Interval:    appConfig.DecayInterval,
	})
	if err != nil {
		return err
	}

	sessions, err := newSessionManager(appConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:    sessions,
		Canvas:      canvasStore,
		Targets:     targetStore,
		Cooldowns:   cooldowns,
		Presence:    presence,
		Leaderboard: leaderboard,
		Decay:       decayEngine,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
