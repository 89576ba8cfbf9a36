// Package openai is an LLM backend that calls OpenAI-compatible chat
// completion APIs via sashabaranov/go-openai.
package openai

import (
	"context"
	"errors"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/ratelimit"
	"github.com/openevolve-go/openevolve/internal/registry"
	"github.com/openevolve-go/openevolve/internal/retryutil"
)

func init() {
	llm.Registry.Register("openai", New)
}

// Client wraps the OpenAI chat completions API as an llm.Client.
type Client struct {
	client      *goopenai.Client
	model       string
	temperature float32
	limiter     *ratelimit.Limiter
	retry       retryutil.Config
}

// New builds an OpenAI backend from config. Recognised keys: model
// (required), api_key (falls back to OPENAI_API_KEY), base_url,
// temperature, requests_per_second (rate limit, 0 disables).
func New(cfg registry.Config) (llm.Client, error) {
	model, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}
	apiKey, err := registry.GetAPIKeyWithEnv(cfg, "OPENAI_API_KEY", "openai")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL := registry.GetString(cfg, "base_url", ""); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	rps := registry.GetFloat64(cfg, "requests_per_second", 0)
	return &Client{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: registry.GetFloat32(cfg, "temperature", 0.7),
		limiter:     ratelimit.NewLimiter(rps, rps),
		retry:       retryutil.DefaultConfig(),
	}, nil
}

// Call sends prompt as a single user message and returns the first
// choice's content.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var response string
	err := retryutil.Do(ctx, c.retry, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []goopenai.ChatCompletionMessage{
				{Role: goopenai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &errs.LLMTimeout{}
			}
			return &errs.LLMError{Msg: err.Error()}
		}
		if len(resp.Choices) == 0 {
			return &errs.LLMError{Msg: "openai returned no choices"}
		}
		response = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return response, nil
}
