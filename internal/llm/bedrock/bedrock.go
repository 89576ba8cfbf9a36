// Package bedrock is an LLM backend that calls Anthropic Claude
// models through the AWS Bedrock Runtime InvokeModel API.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/ratelimit"
	"github.com/openevolve-go/openevolve/internal/registry"
	"github.com/openevolve-go/openevolve/internal/retryutil"
)

func init() {
	llm.Registry.Register("bedrock", New)
}

const defaultMaxTokens = 4096

// Client wraps AWS Bedrock Runtime's InvokeModel API for
// anthropic.claude* model IDs.
type Client struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float64
	limiter     *ratelimit.Limiter
	retry       retryutil.Config
}

// New builds a Bedrock backend from config. Recognised keys: model
// (required, a Bedrock model ID), region (required), max_tokens,
// temperature, endpoint (override, for testing), requests_per_second.
func New(cfg registry.Config) (llm.Client, error) {
	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}
	region, err := registry.RequireString(cfg, "region")
	if err != nil {
		return nil, &errs.ConfigError{Msg: err.Error()}
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, &errs.ConfigError{Msg: "load AWS config: " + err.Error()}
	}

	var opts []func(*bedrockruntime.Options)
	if endpoint := registry.GetString(cfg, "endpoint", ""); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	rps := registry.GetFloat64(cfg, "requests_per_second", 0)
	return &Client{
		client:      bedrockruntime.NewFromConfig(awsCfg, opts...),
		modelID:     modelID,
		maxTokens:   registry.GetInt(cfg, "max_tokens", defaultMaxTokens),
		temperature: registry.GetFloat64(cfg, "temperature", 0.7),
		limiter:     ratelimit.NewLimiter(rps, rps),
		retry:       retryutil.DefaultConfig(),
	}, nil
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Call invokes the configured Claude model with prompt as the sole
// user message.
func (c *Client) Call(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		Temperature:      c.temperature,
		Messages:         []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &errs.LLMError{Msg: "marshal bedrock request: " + err.Error()}
	}

	var text string
	err = retryutil.Do(ctx, c.retry, func() error {
		output, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			if ctx.Err() != nil {
				return &errs.LLMTimeout{}
			}
			return &errs.LLMError{Msg: err.Error()}
		}

		var resp claudeResponse
		if err := json.Unmarshal(output.Body, &resp); err != nil {
			return &errs.LLMError{Msg: "parse bedrock response: " + err.Error()}
		}
		for _, block := range resp.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", &errs.LLMError{Msg: fmt.Sprintf("bedrock model %s returned no text content", c.modelID)}
	}
	return text, nil
}
