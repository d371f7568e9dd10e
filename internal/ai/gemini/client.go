package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-screener/internal/logger"
)

const (
	Provider = "gemini"

	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 2
	defaultTemp       = 0.3

	BackendGeminiAPI = "gemini-api"
	BackendVertexAI  = "vertex-ai"

	// Quota errors asking to wait longer than this are not retried.
	maxQuotaDelay = 30 * time.Second
)

var retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

// Config holds the settings for NewGenerator.
type Config struct {
	APIKey      string
	Model       string
	Backend     string
	Project     string
	Location    string
	MaxRetries  int
	Temperature float32
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client with a system instruction, JSON
// output and retries on temporary errors.
type Generator struct {
	models      modelsAPI
	model       string
	maxRetries  int
	temperature float32
	logger      *zap.Logger
	newBackOff  func() backoff.BackOff
}

// NewGenerator creates a Generator for the Gemini API or Vertex AI backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	clientCfg := &genai.ClientConfig{}

	switch strings.TrimSpace(cfg.Backend) {
	case "", BackendGeminiAPI:
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("gemini api key is required")
		}
		clientCfg.APIKey = apiKey
		clientCfg.Backend = genai.BackendGeminiAPI
	case BackendVertexAI:
		if strings.TrimSpace(cfg.Project) == "" || strings.TrimSpace(cfg.Location) == "" {
			return nil, errors.New("vertex ai backend requires project and location")
		}
		clientCfg.Project = strings.TrimSpace(cfg.Project)
		clientCfg.Location = strings.TrimSpace(cfg.Location)
		clientCfg.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("unknown gemini backend %q", cfg.Backend)
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemp
	}

	return &Generator{
		models:      client.Models,
		model:       model,
		maxRetries:  retries,
		temperature: temperature,
		logger:      logger.WithFields(log, logger.CommonFields(Provider, model)...),
	}, nil
}

// GenerateContent sends message under the system instruction and returns the
// text of the first candidate.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("prompt must not be empty")
	}

	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := []*genai.Content{genai.NewContentFromText(message, genai.RoleUser)}

	var (
		output  string
		attempt int
	)
	op := func() error {
		attempt++
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			g.log().Warn("gemini request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		text := responseText(resp)
		if text == "" {
			return backoff.Permanent(errors.New("gemini api returned empty response"))
		}
		output = text
		return nil
	}

	var policy backoff.BackOff
	if g.newBackOff != nil {
		policy = g.newBackOff()
	} else {
		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = 2 * time.Second
		expo.MaxElapsedTime = 2 * time.Minute
		policy = expo
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.maxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("generate content after %d attempt(s): %w", attempt, err)
	}
	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func (g *Generator) log() *zap.Logger {
	return logger.OrNop(g.logger)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(builder.String())
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return true
		}
		apiErr = *apiErrPtr
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return quotaDelay(apiErr) <= maxQuotaDelay
	case apiErr.Code >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// quotaDelay reads the wait the API asks for from the error details or message.
func quotaDelay(apiErr genai.APIError) time.Duration {
	for _, detail := range apiErr.Details {
		if raw, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(raw); err == nil {
				return d
			}
		}
	}

	if m := retryAfterRe.FindStringSubmatch(apiErr.Message); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
