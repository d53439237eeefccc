package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sotruth/dualtrack/internal/ports"
)

// OpenAIDefaultModel is used when the configuration names no model.
const OpenAIDefaultModel = "gpt-4.1"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM for the chat completions API.
type openAIProvider struct {
	client     *openai.Client
	model      string
	classifier *ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		clientConfig.BaseURL = baseURL
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &openAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		classifier: &ErrorClassifier{Provider: "openai"},
	}, nil
}

// DoRequest implements CoreLLM.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	req := p.buildRequest(prompt, opts)
	if opts.Streaming() {
		return p.stream(ctx, req, prompt, opts)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}

	if resp.Choices[0].FinishReason == openai.FinishReasonLength {
		return Completion{}, tokenLimitError("openai", opts.MaxTokens)
	}

	content := resp.Choices[0].Message.Content
	return Completion{
		Text:      content,
		TokensIn:  tokenCount(resp.Usage.PromptTokens, prompt),
		TokensOut: tokenCount(resp.Usage.CompletionTokens, content),
	}, nil
}

func (p *openAIProvider) stream(ctx context.Context, req openai.ChatCompletionRequest, prompt string, opts RequestOptions) (Completion, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Completion{}, p.wrapError(err)
	}
	defer stream.Close()

	if !opts.emit(ports.Fragment{Kind: ports.FragmentMessageStart}) {
		return Completion{}, ports.ErrStreamAborted
	}

	var (
		text   strings.Builder
		usage  openai.Usage
		finish openai.FinishReason
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, p.wrapError(err)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if r := chunk.Choices[0].FinishReason; r != "" {
			finish = r
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !opts.emit(ports.Fragment{Kind: ports.FragmentText, Text: delta.Content}) {
				return Completion{}, ports.ErrStreamAborted
			}
		}
		for _, call := range delta.ToolCalls {
			if !opts.emit(ports.Fragment{Kind: ports.FragmentToolUse, Text: call.Function.Arguments}) {
				return Completion{}, ports.ErrStreamAborted
			}
		}
	}

	if finish == openai.FinishReasonLength {
		return Completion{}, tokenLimitError("openai", opts.MaxTokens)
	}
	if !opts.emit(ports.Fragment{Kind: ports.FragmentMessageStop}) {
		return Completion{}, ports.ErrStreamAborted
	}

	content := text.String()
	return Completion{
		Text:      content,
		TokensIn:  tokenCount(usage.PromptTokens, prompt),
		TokensOut: tokenCount(usage.CompletionTokens, content),
	}, nil
}

func (p *openAIProvider) buildRequest(prompt string, opts RequestOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     opts.Model,
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	if v, ok := optionFloat(opts.Extra, "frequency_penalty"); ok {
		req.FrequencyPenalty = float32(ClampFloat64(v, MinPenalty, MaxPenalty))
	}
	if v, ok := optionFloat(opts.Extra, "presence_penalty"); ok {
		req.PresencePenalty = float32(ClampFloat64(v, MinPenalty, MaxPenalty))
	}
	return req
}

func (p *openAIProvider) wrapError(err error) error {
	return p.classifier.Classify(err, func(err error) *ProviderError {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "", err)
		}
		return nil
	})
}

// GetModel implements CoreLLM.
func (p *openAIProvider) GetModel() string { return p.model }
