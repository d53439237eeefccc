package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/sotruth/dualtrack/internal/ports"
)

// GoogleDefaultModel is used when the configuration names no model.
const GoogleDefaultModel = "gemini-2.5-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM for the Gemini API.
type googleProvider struct {
	client     *genai.Client
	model      string
	classifier *ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if looksLikeFilePath(config.APIKey) {
		return nil, fmt.Errorf("google provider needs an API key, not a credentials file: %s", config.APIKey)
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		client:     client,
		model:      model,
		classifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest implements CoreLLM.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (Completion, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := p.buildConfig(opts)

	if opts.Streaming() {
		return p.stream(ctx, contents, config, prompt, opts)
	}

	resp, err := p.client.Models.GenerateContent(ctx, opts.Model, contents, config)
	if err != nil {
		return Completion{}, p.wrapError(err)
	}

	if stoppedAtLimit(resp) {
		return Completion{}, tokenLimitError("google", opts.MaxTokens)
	}

	content := resp.Text()
	if content == "" {
		return Completion{}, NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	in, out := usageCounts(resp.UsageMetadata)
	return Completion{
		Text:      content,
		TokensIn:  tokenCount(in, prompt),
		TokensOut: tokenCount(out, content),
	}, nil
}

func (p *googleProvider) stream(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	prompt string,
	opts RequestOptions,
) (Completion, error) {
	if !opts.emit(ports.Fragment{Kind: ports.FragmentMessageStart}) {
		return Completion{}, ports.ErrStreamAborted
	}

	var (
		text    strings.Builder
		in, out int32
		limited bool
	)
	for resp, err := range p.client.Models.GenerateContentStream(ctx, opts.Model, contents, config) {
		if err != nil {
			return Completion{}, p.wrapError(err)
		}
		if resp.UsageMetadata != nil {
			in, out = usageCounts(resp.UsageMetadata)
		}
		limited = limited || stoppedAtLimit(resp)
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		text.WriteString(chunk)
		if !opts.emit(ports.Fragment{Kind: ports.FragmentText, Text: chunk}) {
			return Completion{}, ports.ErrStreamAborted
		}
	}

	if limited {
		return Completion{}, tokenLimitError("google", opts.MaxTokens)
	}
	if !opts.emit(ports.Fragment{Kind: ports.FragmentMessageStop}) {
		return Completion{}, ports.ErrStreamAborted
	}
	if text.Len() == 0 {
		return Completion{}, NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}

	content := text.String()
	return Completion{
		Text:      content,
		TokensIn:  tokenCount(in, prompt),
		TokensOut: tokenCount(out, content),
	}, nil
}

func (p *googleProvider) buildConfig(opts RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(opts.MaxTokens, math.MaxInt32))
	}
	if opts.TopP != nil {
		config.TopP = genai.Ptr(float32(*opts.TopP))
	}
	if topK, ok := SafeInt(opts.Extra["top_k"]); ok {
		config.TopK = genai.Ptr(float32(max(1, min(topK, 40))))
	}
	return config
}

func usageCounts(usage *genai.GenerateContentResponseUsageMetadata) (in, out int32) {
	if usage == nil {
		return 0, 0
	}
	return usage.PromptTokenCount, usage.CandidatesTokenCount
}

func (p *googleProvider) wrapError(err error) error {
	return p.classifier.Classify(err, func(err error) *ProviderError {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			if isContentPolicyError(apiErr) {
				return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
					"request blocked by safety filters", err)
			}
			message := apiErr.Message
			if message == "" && len(apiErr.Errors) > 0 {
				message = apiErr.Errors[0].Message
			}
			return p.classifier.ClassifyHTTPError(apiErr.Code, message, err)
		}
		var genaiErr genai.APIError
		if errors.As(err, &genaiErr) {
			return p.classifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
		}
		return nil
	})
}

// GetModel implements CoreLLM.
func (p *googleProvider) GetModel() string { return p.model }

func looksLikeFilePath(s string) bool {
	if filepath.IsAbs(s) || strings.ContainsAny(s, `/\`) {
		return true
	}
	lower := strings.ToLower(s)
	for _, suffix := range []string{".json", ".p12", ".pem"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "credentials")
}

func isContentPolicyError(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "policy") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}

// stoppedAtLimit reports whether the first candidate ended at max tokens.
func stoppedAtLimit(resp *genai.GenerateContentResponse) bool {
	return len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens
}
