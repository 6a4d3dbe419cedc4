package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
	"github.com/MikeSquared-Agency/mixsig/internal/api"
	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/hermes"
	"github.com/MikeSquared-Agency/mixsig/internal/llm"
	"github.com/MikeSquared-Agency/mixsig/internal/processor"
	"github.com/MikeSquared-Agency/mixsig/internal/retention"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
	"github.com/MikeSquared-Agency/mixsig/internal/uploads"
	"github.com/MikeSquared-Agency/mixsig/internal/vault"
)

var serveNoEvents bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, analysis worker and retention sweeper",
	Long: `Run the mixsig service.

Analysis requests are published on the NATS bus and consumed by the worker
queue group. With --no-events analyses run inside this process instead.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoEvents, "no-events", false, "Run analyses in-process without NATS")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	logger.Info("mixsig starting", "port", cfg.Port, "engine", cfg.AnalysisEngine, "version", version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("database connected")

	// Encryption at rest
	if cfg.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is required (generate one with: mixsig keygen)")
	}
	v, err := vault.FromBase64(cfg.EncryptionKey)
	if err != nil {
		return err
	}

	files, err := uploads.NewFiles(cfg.UploadDir, cfg.MaxUploadBytes())
	if err != nil {
		return err
	}

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	var analyzer processor.Analyzer
	if cfg.AnalysisEngine == config.EngineLLM {
		completer, err := buildCompleter(cfg)
		if err != nil {
			return err
		}
		analyzer = llm.NewAnalyzer(completer, 0, logger)
		logger.Info("llm engine ready", "provider", cfg.LLMProvider)
	}

	// NATS/Hermes
	var (
		hermesClient *hermes.Client
		publisher    processor.Publisher
	)
	if !serveNoEvents {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return err
		}
		defer hermesClient.Close()
		publisher = hermesClient
		logger.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		logger.Warn("event bus disabled, analyses run in-process")
	}

	proc := processor.New(db, v, pipeline, analyzer, publisher, processor.Options{
		Engine:      cfg.AnalysisEngine,
		Retention:   cfg.Retention(),
		MaxAttempts: cfg.LLMMaxAttempts,
	}, logger)

	if hermesClient != nil {
		if err := hermesClient.QueueSubscribe(hermes.SubjectAnalysisRequested, "mixsig-workers", proc.HandleAnalysisRequested); err != nil {
			return err
		}
		if err := hermesClient.Publish("swarm.agent.mixsig.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"engine":    cfg.AnalysisEngine,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	sweeper := retention.NewSweeper(db, files, cfg.RetentionSweepInterval, logger)

	deps := api.Deps{Store: db, Files: files, Cipher: v, Jobs: proc}
	if hermesClient != nil {
		deps.Bus = hermesClient
	}
	srv := api.NewServer(api.Config{
		Port:               cfg.Port,
		APIToken:           cfg.APIToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
		Retention:          cfg.Retention(),
		Engine:             cfg.AnalysisEngine,
	}, deps, logger)

	if cfg.APIToken == "" {
		logger.Warn("MIXSIG_API_TOKEN not set, API is unauthenticated")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	logger.Info("mixsig ready", "port", cfg.Port)
	err = g.Wait()
	logger.Info("mixsig stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildPipeline(cfg config.Config) (*analysis.Pipeline, error) {
	lex := features.DefaultLexicon()
	if cfg.LexiconFile != "" {
		var err error
		lex, err = features.LoadLexicon(cfg.LexiconFile)
		if err != nil {
			return nil, err
		}
	}
	return analysis.New(features.NewExtractor(lex, nil), analysis.Options{TopN: cfg.AmbiguityTopN}), nil
}

func buildCompleter(cfg config.Config) (llm.Completer, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		return llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
		return llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
