package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/document"
	"github.com/spigell/cv-screener/internal/fallback"
	"github.com/spigell/cv-screener/internal/personalize"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/scores"
	"github.com/spigell/cv-screener/internal/secrets"
)

const (
	scoresBackendMemory = "memory"
	scoresBackendRedis  = "redis"
)

// newAnalyzer wires the per-document pipeline. AI setup failures are logged
// and leave the analyzer on the deterministic fallback.
func newAnalyzer(ctx context.Context, config *Config, logger *zap.Logger) *pipeline.Analyzer {
	validation := ai.ValidationOptions{
		SummaryMinLength:  config.Analysis.SummaryMinLength,
		RejectRoundScores: config.Analysis.RejectRoundScores,
	}

	var personalizeOpts []personalize.Option
	if len(config.Personalization.Phrases) > 0 {
		personalizeOpts = append(personalizeOpts, personalize.WithPhrases(config.Personalization.Phrases...))
	}
	if config.Personalization.MinSignalLength > 0 {
		personalizeOpts = append(personalizeOpts, personalize.WithMinSignalLength(config.Personalization.MinSignalLength))
	}

	fallbackOpts := []fallback.Option{fallback.WithSummaryMinLength(config.Analysis.SummaryMinLength)}
	if config.Analysis.Seed != 0 {
		fallbackOpts = append(fallbackOpts, fallback.WithSeed(config.Analysis.Seed))
	}

	unioffice := false
	if key := config.Extraction.UniofficeLicenseKey; key != "" {
		if err := document.SetOfficeLicense(key); err != nil {
			logger.Warn("docx_unioffice strategy disabled", zap.Error(err))
		} else {
			unioffice = true
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithValidation(validation),
		pipeline.WithRecoverer(document.NewRecoverer(document.Options{
			StrictPDF:     config.Extraction.StrictPDF,
			MinTextLength: config.Extraction.MinTextLength,
			Unioffice:     unioffice,
			Logger:        logger,
		})),
		pipeline.WithFallback(fallback.New(fallbackOpts...)),
		pipeline.WithPersonalization(personalize.New(personalizeOpts...)),
	}

	if config.AI != nil && config.AI.Enabled {
		analyst, err := newAIAnalyst(ctx, config.AI, validation, logger)
		if err != nil {
			logger.Warn("ai step disabled, using fallback generator", zap.Error(err))
		} else {
			opts = append(opts, pipeline.WithAnalyst(analyst), pipeline.WithAITimeout(config.AI.Timeout))
		}
	}

	return pipeline.NewAnalyzer(opts...)
}

func newAIAnalyst(ctx context.Context, cfg *AIConfig, validation ai.ValidationOptions, logger *zap.Logger) (ai.Analyst, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	var apiKey string
	if strings.TrimSpace(cfg.Gemini.Backend) != gemini.BackendVertexAI {
		key, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}
		apiKey = key
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:      apiKey,
		Model:       cfg.Gemini.Model,
		Backend:     cfg.Gemini.Backend,
		Project:     cfg.Gemini.Project,
		Location:    cfg.Gemini.Location,
		MaxRetries:  cfg.MaxRetries,
		Temperature: cfg.Gemini.Temperature,
	}, logger.With(zap.Int("ai_retry_attempts", cfg.MaxRetries)))
	if err != nil {
		return nil, fmt.Errorf("building gemini generator: %w", err)
	}

	return gemini.NewAnalyst(generator, logger,
		gemini.WithMaxLogLength(cfg.MaxLogLength),
		gemini.WithAttempts(cfg.Attempts),
		gemini.WithValidation(validation),
	), nil
}

// newScorePool returns the registry pool and a cleanup func.
func newScorePool(ctx context.Context, cfg ScoresConfig, logger *zap.Logger) (*scores.Pool, func(), error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Backend)) {
	case "", scoresBackendMemory:
		return scores.NewMemoryPool(), func() {}, nil
	case scoresBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis score registry",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("prefix", cfg.Redis.Prefix),
			zap.Duration("ttl", cfg.Redis.TTL),
		)
		return scores.NewRedisPool(client, cfg.Redis.Prefix, cfg.Redis.TTL), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown scores backend %q", cfg.Backend)
	}
}
