// Package claude implements narrative.Generator on Anthropic's Messages API,
// either directly or through AWS Bedrock.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/lookout/internal/narrative"
)

// Backend names as reported on decisions and metrics.
const (
	BackendAnthropic = "claude"
	BackendBedrock   = "bedrock"
)

const defaultMaxTokens = 512

// Options configures a Client.
type Options struct {
	APIKey          string
	Model           string
	MaxTokens       int
	CostPer1KTokens float64
	// RequestsPerSecond limits outbound calls; 0 disables the limit.
	RequestsPerSecond float64
	// RequestTimeout bounds a single HTTP exchange; 0 leaves it to ctx.
	RequestTimeout time.Duration
}

// Client calls Claude once per Generate. The SDK's retry loop is disabled.
type Client struct {
	name      string
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	costPer1K float64
	limiter   *rate.Limiter
}

// New returns a Client for the Anthropic API. Extra request options (base URL,
// HTTP client) are applied after the defaults.
func New(opts Options, extra ...option.RequestOption) *Client {
	ro := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	return newClient(BackendAnthropic, opts, append(ro, extra...))
}

// NewBedrock returns a Client that reaches Claude through AWS Bedrock in
// region, with credentials from the default AWS chain.
func NewBedrock(ctx context.Context, region string, opts Options, extra ...option.RequestOption) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	ro := []option.RequestOption{bedrock.WithConfig(awsCfg)}
	return newClient(BackendBedrock, opts, append(ro, extra...)), nil
}

func newClient(name string, opts Options, ro []option.RequestOption) *Client {
	ro = append(ro, option.WithMaxRetries(0))
	if opts.RequestTimeout > 0 {
		ro = append(ro, option.WithRequestTimeout(opts.RequestTimeout))
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	c := &Client{
		name:      name,
		api:       anthropic.NewClient(ro...),
		model:     anthropic.Model(opts.Model),
		maxTokens: int64(maxTokens),
		costPer1K: opts.CostPer1KTokens,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Name implements narrative.Generator.
func (c *Client) Name() string { return c.name }

// Generate implements narrative.Generator. Any transport, API or rate limit
// wait error is returned as a *narrative.GenerationError.
func (c *Client) Generate(ctx context.Context, req *narrative.Request) (*narrative.Narrative, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	prompt, err := narrative.BuildPrompt(req)
	if err != nil {
		return nil, c.fail(err)
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: narrative.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, c.fail(err)
	}

	text := responseText(msg)
	if text == "" {
		return nil, c.fail(errors.New("empty response"))
	}

	out, ok := narrative.ParsePayload(text)
	if !ok {
		return nil, c.fail(errors.New("no JSON payload in response"))
	}
	out.TokensUsed = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	out.Cost = float64(out.TokensUsed) / 1000 * c.costPer1K
	return out, nil
}

func (c *Client) fail(err error) error {
	return &narrative.GenerationError{Backend: c.name, Err: err}
}

func responseText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
