package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/ai"
	"github.com/vira-platform/vira-engine/internal/ai/gemini"
	"github.com/vira-platform/vira-engine/internal/chat"
	"github.com/vira-platform/vira-engine/internal/httpapi"
	"github.com/vira-platform/vira-engine/internal/logger"
	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/recommend"
	"github.com/vira-platform/vira-engine/internal/secrets"
	"github.com/vira-platform/vira-engine/internal/session"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

const (
	defaultListen        = ":8080"
	defaultDatabasePath  = "vira.db"
	defaultMinScopeLen   = 10
	shutdownDrainTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vira-engine HTTP server",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address, overrides the config file")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zl.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		config = &Config{}
	}

	zl.Info("starting the vira-engine", zap.String("version", version))

	repo, cleanup := buildRepository(zl, config)
	defer cleanup()

	mcfg := config.Matching
	if mcfg == nil {
		mcfg = &MatchingConfig{}
	}
	weights := mcfg.Weights
	if weights == (matching.Weights{}) {
		weights = matching.DefaultWeights()
	}
	minScopeLen := mcfg.MinScopeLen
	if minScopeLen <= 0 {
		minScopeLen = defaultMinScopeLen
	}

	selector := matching.NewSelector(weights, mcfg.TopK, mcfg.RemainingCap, zl)

	ranker, generator := buildAI(ctx, zl, config)

	recommender := recommend.NewService(repo, selector, ranker, zl, recommend.Config{
		MinScopeLen: minScopeLen,
	})

	store, storeCleanup := buildSessionStore(ctx, zl, config)
	defer storeCleanup()

	chatSvc := chat.NewService(recommender, repo, store, generator, zl)

	api := httpapi.NewServer(recommender, chatSvc, zl, version)

	listen := viper.GetString("listen")
	if listen == "" {
		listen = config.Listen
	}
	if listen == "" {
		listen = defaultListen
	}

	server := &http.Server{
		Addr:              listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("address", listen))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received, draining connections")
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			zl.Error("server shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server failed", zap.Error(err))
		}
	}

	zl.Info("vira-engine stopped")
}

func buildRepository(zl *zap.Logger, config *Config) (vendor.Repository, func()) {
	path := defaultDatabasePath
	if config.Database != nil && config.Database.Path != "" {
		path = config.Database.Path
	}

	store, err := vendor.OpenSQLite(path)
	if err != nil {
		zl.Fatal("opening vendor database", zap.String("path", path), zap.Error(err))
	}
	if err := store.EnsureSchema(); err != nil {
		zl.Fatal("ensuring vendor schema", zap.Error(err))
	}

	zl.Info("vendor database ready", zap.String("path", path))
	return store, func() { _ = store.Close() }
}

// buildAI returns the ranker and the general-chat generator. When AI is
// disabled or the key is missing, both stay nil and the engine serves
// pre-score fallbacks only.
func buildAI(ctx context.Context, zl *zap.Logger, config *Config) (ai.Ranker, chat.ContentGenerator) {
	if config.AI == nil || !config.AI.Enabled || config.AI.Gemini == nil {
		zl.Info("ai ranking disabled, serving pre-score fallbacks")
		return nil, nil
	}

	gcfg := config.AI.Gemini

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		File:  gcfg.APIKeyFile,
	})
	if err != nil {
		zl.Warn("gemini api key not available, serving pre-score fallbacks", zap.Error(err))
		return nil, nil
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, gcfg.Model)
	if err != nil {
		zl.Warn("creating gemini client failed, serving pre-score fallbacks", zap.Error(err))
		return nil, nil
	}

	rankerLogger := logger.WithAIFields(zl, "gemini", generator.Model())
	ranker := gemini.NewRanker(generator, rankerLogger, gemini.RankerConfig{
		Timeout:      gcfg.Timeout,
		RetryBackoff: gcfg.RetryBackoff,
		MaxLogLength: gcfg.MaxLogLength,
	})

	rankerLogger.Info("ai ranking enabled")
	return ranker, generator
}

func buildSessionStore(ctx context.Context, zl *zap.Logger, config *Config) (session.Store, func()) {
	scfg := config.Session
	if scfg == nil || scfg.Backend == "" || scfg.Backend == "memory" {
		zl.Info("using in-memory session store")
		return session.NewMemory(), func() {}
	}

	if scfg.Backend != "redis" {
		zl.Fatal("unknown session backend", zap.String("backend", scfg.Backend))
	}
	if scfg.Redis == nil {
		zl.Fatal("redis session backend requires a redis configuration")
	}

	store := session.NewRedis(*scfg.Redis)
	if err := store.Ping(ctx); err != nil {
		zl.Fatal("connecting to redis", zap.String("address", scfg.Redis.Address), zap.Error(err))
	}

	zl.Info("using redis session store", zap.String("address", scfg.Redis.Address))
	return store, func() { _ = store.Close() }
}
