package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sotruth/dualtrack/internal/ports"
)

// AnthropicDefaultModel is used when the configuration names no model.
const AnthropicDefaultModel = "claude-sonnet-4-5-20250929"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreLLM for the Messages API. With a
// fragment handler it streams the response; otherwise it makes a single
// blocking call.
type anthropicProvider struct {
	client     anthropic.Client
	model      string
	classifier *ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	// RetryMiddleware owns retries.
	opts = append(opts, option.WithMaxRetries(0))

	return &anthropicProvider{
		client:     anthropic.NewClient(opts...),
		model:      model,
		classifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest implements CoreLLM.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	params := p.buildParams(prompt, opts)

	var (
		msg *anthropic.Message
		err error
	)
	if opts.Streaming() {
		msg, err = p.stream(ctx, params, opts)
	} else {
		msg, err = p.client.Messages.New(ctx, params)
	}
	if err != nil {
		return Completion{}, p.wrapError(err)
	}

	return p.completion(msg, prompt, opts.MaxTokens)
}

func (p *anthropicProvider) buildParams(prompt string, opts RequestOptions) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: int64(opts.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature != nil {
		// The Messages API accepts temperatures up to 1.0.
		params.Temperature = anthropic.Float(ClampFloat64(*opts.Temperature, 0, 1))
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	return params
}

// stream consumes a streaming response, forwarding fragments and
// accumulating the final message.
func (p *anthropicProvider) stream(ctx context.Context, params anthropic.MessageNewParams, opts RequestOptions) (*anthropic.Message, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var msg anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, err
		}
		if f, ok := fragmentFor(event); ok && !opts.emit(f) {
			return nil, ports.ErrStreamAborted
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// fragmentFor maps a stream event to a fragment. Block boundaries, usage
// deltas and pings have no fragment.
func fragmentFor(event anthropic.MessageStreamEventUnion) (ports.Fragment, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return ports.Fragment{Kind: ports.FragmentMessageStart}, true
	case anthropic.MessageStopEvent:
		return ports.Fragment{Kind: ports.FragmentMessageStop}, true
	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return ports.Fragment{Kind: ports.FragmentText, Text: delta.Text}, true
		case anthropic.InputJSONDelta:
			return ports.Fragment{Kind: ports.FragmentToolUse, Text: delta.PartialJSON}, true
		}
	}
	return ports.Fragment{}, false
}

func (p *anthropicProvider) completion(msg *anthropic.Message, prompt string, maxTokens int) (Completion, error) {
	if msg.StopReason == anthropic.StopReasonMaxTokens {
		return Completion{}, tokenLimitError("anthropic", maxTokens)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, NewProviderError("anthropic", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	out := text.String()
	return Completion{
		Text:      out,
		TokensIn:  tokenCount(msg.Usage.InputTokens, prompt),
		TokensOut: tokenCount(msg.Usage.OutputTokens, out),
	}, nil
}

func (p *anthropicProvider) wrapError(err error) error {
	return p.classifier.Classify(err, func(err error) *ProviderError {
		var apiErr *anthropic.Error
		if !errors.As(err, &apiErr) {
			return nil
		}
		return p.classifier.ClassifyHTTPError(apiErr.StatusCode, "", err)
	})
}

// GetModel implements CoreLLM.
func (p *anthropicProvider) GetModel() string { return p.model }

// tokenCount prefers the provider's count and estimates when it is absent.
func tokenCount[N int | int32 | int64](reported N, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return EstimateTokens(text)
}
