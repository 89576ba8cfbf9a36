// Package replicate is an LLM backend that runs models hosted on
// Replicate via replicate-go.
package replicate

import (
	"context"
	"fmt"
	"strings"

	replicatego "github.com/replicate/replicate-go"

	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/ratelimit"
	"github.com/openevolve-go/openevolve/internal/registry"
	"github.com/openevolve-go/openevolve/internal/retryutil"
)

const envVarName = "REPLICATE_API_TOKEN"

func init() {
	llm.Registry.Register("replicate", New)
}

// Client wraps the Replicate API.
type Client struct {
	client *replicatego.Client
	model  string

	temperature float64
	topP        float64
	maxTokens   int
	seed        int

	limiter *ratelimit.Limiter
	retry   retryutil.Config
}

// New builds a Replicate backend from config. Recognised keys: model
// (required, "owner/name" or "owner/name:version"), api_key (falls
// back to REPLICATE_API_TOKEN), base_url, temperature, top_p,
// max_tokens, seed, requests_per_second.
func New(cfg registry.Config) (llm.Client, error) {
	model, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}
	apiKey, err := registry.GetAPIKeyWithEnv(cfg, envVarName, "replicate")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}

	opts := []replicatego.ClientOption{replicatego.WithToken(apiKey)}
	if baseURL := registry.GetString(cfg, "base_url", ""); baseURL != "" {
		opts = append(opts, replicatego.WithBaseURL(baseURL))
	}
	client, err := replicatego.NewClient(opts...)
	if err != nil {
		return nil, &errs.ConfigError{Msg: "create replicate client: " + err.Error()}
	}

	rps := registry.GetFloat64(cfg, "requests_per_second", 0)
	return &Client{
		client:      client,
		model:       model,
		temperature: registry.GetFloat64(cfg, "temperature", 1.0),
		topP:        registry.GetFloat64(cfg, "top_p", 1.0),
		maxTokens:   registry.GetInt(cfg, "max_tokens", 0),
		seed:        registry.GetInt(cfg, "seed", 9),
		limiter:     ratelimit.NewLimiter(rps, rps),
		retry:       retryutil.DefaultConfig(),
	}, nil
}

// Call runs the configured model with prompt as the sole input.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	input := replicatego.PredictionInput{
		"prompt":      prompt,
		"temperature": c.temperature,
		"top_p":       c.topP,
		"seed":        c.seed,
	}
	if c.maxTokens > 0 {
		input["max_length"] = c.maxTokens
	}

	var text string
	err := retryutil.Do(ctx, c.retry, func() error {
		output, err := c.client.Run(ctx, c.model, input, nil)
		if err != nil {
			if ctx.Err() != nil {
				return &errs.LLMTimeout{}
			}
			return &errs.LLMError{Msg: err.Error()}
		}
		text = extractText(output)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func extractText(output replicatego.PredictionOutput) string {
	switch v := output.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", output)
	}
}
