// Package openai provides an OpenAI-backed streaming translation client.
//
// Each translation is one streamed chat completion: the model is instructed
// to act as a translation engine and the response deltas are forwarded as
// tokens while they arrive, so the caller can render the translation
// incrementally instead of waiting for the full text.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Compile-time assertion that Client implements translate.Client.
var _ translate.Client = (*Client)(nil)

type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
}

// Option is a functional option for configuring a Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout covering the whole stream.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature. Translations want
// determinism, so the default is 0.
func WithTemperature(temp float64) Option {
	return func(c *config) {
		c.temperature = temp
	}
}

// Client implements translate.Client backed by the OpenAI chat completions
// API in streaming mode.
type Client struct {
	client      oai.Client
	model       string
	temperature float64
}

// New constructs an OpenAI translation client. If model is empty,
// DefaultModel (gpt-4o-mini) is used.
func New(apiKey string, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai translate: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
	}, nil
}

// StreamTranslation implements translate.Client. Response deltas are
// forwarded on the returned channel as they arrive; the channel is closed
// when the stream ends. A mid-stream failure is delivered as a final token
// with Err set.
func (c *Client) StreamTranslation(ctx context.Context, req translate.Request) (<-chan translate.Token, error) {
	const op = "openai: translate"

	if req.Text == "" {
		return nil, fault.New(fault.InvalidInput, op, fmt.Errorf("empty source text"))
	}
	if req.TargetLanguage == "" {
		return nil, fault.New(fault.InvalidInput, op, fmt.Errorf("target language is required"))
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(req.SourceLanguage, req.TargetLanguage)),
			oai.UserMessage(req.Text),
		},
	}
	if c.temperature != 0 {
		params.Temperature = param.NewOpt(c.temperature)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan translate.Token)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- translate.Token{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- translate.Token{Err: classify(ctx, op, err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// systemPrompt builds the instruction that turns the chat model into a pure
// translation engine. Anything beyond the translated text (notes,
// alternatives, quotes) corrupts downstream synthesis, hence the "output
// only" phrasing.
func systemPrompt(source, target string) string {
	if source == "" {
		return fmt.Sprintf("You are a translation engine. Translate the user's text into %s. "+
			"Output only the translation, with no explanations, quotes, or commentary.", target)
	}
	return fmt.Sprintf("You are a translation engine. Translate the user's text from %s into %s. "+
		"Output only the translation, with no explanations, quotes, or commentary.", source, target)
}

// classify maps an openai-go error onto the fault taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fault.New(fault.Cancelled, op, err)
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return fault.FromStatus(op, apierr.StatusCode, err)
	}
	return fault.New(fault.Network, op, err)
}
