package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/cache"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/database"
	"github.com/quillhq/quill/internal/exports"
	"github.com/quillhq/quill/internal/identifier"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/notes"
	"github.com/quillhq/quill/internal/server"
	"github.com/quillhq/quill/internal/storage"
	"github.com/quillhq/quill/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "quill-api",
		Short: "Quill notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

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
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address (empty for in-process cache)")
	cmd.PersistentFlags().String("amqp-url", defaults.GetString("amqp.url"), "RabbitMQ broker URL")
	cmd.PersistentFlags().String("upload-dir", defaults.GetString("upload.dir"), "Directory for uploaded images")
	cmd.PersistentFlags().Int("access-ttl-minutes", defaults.GetInt("token.access_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().Int("refresh-ttl-hours", defaults.GetInt("token.refresh_ttl_hours"), "Refresh token TTL in hours")
	cmd.PersistentFlags().Int("cache-ttl-seconds", defaults.GetInt("cache.ttl_seconds"), "Note list cache TTL in seconds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "upload.dir", "upload-dir")
	bindFlag(cmd, "token.access_ttl_minutes", "access-ttl-minutes")
	bindFlag(cmd, "token.refresh_ttl_hours", "refresh-ttl-hours")
	bindFlag(cmd, "cache.ttl_seconds", "cache-ttl-seconds")
	bindFlag(cmd, "log.level", "log-level")
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

// runServer constructs every dependency explicitly and wires the services
// together; nothing in the tree reaches for process-wide singletons.
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

	var noteCache cache.Cache
	if appConfig.RedisAddress != "" {
		redisCache, err := cache.NewRedisCache(appConfig.RedisAddress)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		noteCache = redisCache
		logger.Info("using redis cache", zap.String("address", appConfig.RedisAddress))
	} else {
		noteCache = cache.NewMemoryCache(cache.MemoryCacheConfig{})
		logger.Info("using in-process cache")
	}

	idProvider := identifier.NewUUIDProvider()

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte(appConfig.AccessTokenSecret),
		RefreshSecret: []byte(appConfig.RefreshTokenSecret),
		AccessTTL:     appConfig.AccessTokenTTL,
		RefreshTTL:    appConfig.RefreshTokenTTL,
	})
	refreshStore, err := auth.NewRefreshStore(db)
	if err != nil {
		return err
	}
	authService, err := auth.NewService(auth.ServiceConfig{
		Users:  userService,
		Tokens: tokenIssuer,
		Store:  refreshStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	noteStore, err := notes.NewStore(notes.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	accessControl, err := notes.NewAccess(noteStore)
	if err != nil {
		return err
	}
	noteDirectory, err := notes.NewDirectory(notes.DirectoryConfig{
		Store:    noteStore,
		Access:   accessControl,
		Cache:    noteCache,
		CacheTTL: appConfig.CacheTTL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	exportService, err := exports.NewService(exports.ServiceConfig{
		Publisher: exports.NewAMQPPublisher(appConfig.AMQPURL),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	uploadStorage, err := storage.NewLocalStorage(storage.LocalStorageConfig{Dir: appConfig.UploadDir})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:   userService,
		Auth:    authService,
		Notes:   noteDirectory,
		Exports: exportService,
		Uploads: uploadStorage,
		Tokens:  tokenIssuer,
		Logger:  logger,
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
