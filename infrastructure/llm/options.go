package llm

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Request defaults and limits shared by the providers.
const (
	DefaultMaxTokens = 4096

	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0

	MinTimeout = time.Second
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the typed form of the options map passed to
// ports.LLMClient.Complete.
type RequestOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	System      string

	// AllowedTools and PermissionMode describe what the agent may do. The
	// scoring providers send a single user turn and do not execute tools.
	AllowedTools   []string
	PermissionMode string

	// OnFragment receives the response while it is produced.
	OnFragment ports.FragmentHandler

	// Extra holds options the providers may understand individually, such
	// as frequency_penalty or top_k.
	Extra map[string]any
}

// ParseRequestOptions converts an options map into RequestOptions, falling
// back to defaults for missing or invalid entries.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		Model:          optionValue(opts, "model", defaultModel, nonEmpty),
		MaxTokens:      optionInt(opts, "max_tokens", DefaultMaxTokens),
		System:         optionValue(opts, "system", "", nil),
		PermissionMode: optionValue(opts, "permission_mode", "", nil),
		AllowedTools:   optionValue[[]string](opts, "allowed_tools", nil, nil),
		Extra:          make(map[string]any),
	}

	if t, ok := optionFloat(opts, "temperature"); ok && IsValidTemperature(t) {
		options.Temperature = &t
	}
	if p, ok := optionFloat(opts, "top_p"); ok && IsValidTopP(p) {
		options.TopP = &p
	}
	if h, ok := ports.FragmentHandlerFrom(opts); ok {
		options.OnFragment = h
	}

	for k, v := range opts {
		switch k {
		case "model", "max_tokens", "system", "temperature", "top_p",
			"allowed_tools", "permission_mode", ports.OptionFragmentHandler:
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// Streaming reports whether the caller asked for fragments.
func (o RequestOptions) Streaming() bool { return o.OnFragment != nil }

// emit forwards f to the fragment handler. Without a handler every fragment
// is accepted.
func (o RequestOptions) emit(f ports.Fragment) bool {
	if o.OnFragment == nil {
		return true
	}
	return o.OnFragment(f)
}

// replay delivers an already complete response as one attempt.
func (o RequestOptions) replay(text string) error {
	if !o.Streaming() {
		return nil
	}
	if !o.emit(ports.Fragment{Kind: ports.FragmentMessageStart}) ||
		!o.emit(ports.Fragment{Kind: ports.FragmentText, Text: text}) ||
		!o.emit(ports.Fragment{Kind: ports.FragmentMessageStop}) {
		return ports.ErrStreamAborted
	}
	return nil
}

func optionValue[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	v, ok := opts[key].(T)
	if !ok {
		return def
	}
	if valid != nil && !valid(v) {
		return def
	}
	return v
}

func nonEmpty(s string) bool { return s != "" }

// optionInt accepts the integer and float encodings produced by Go callers,
// JSON and YAML decoding.
func optionInt(opts map[string]any, key string, def int) int {
	n, ok := SafeInt(opts[key])
	if !ok || n <= 0 {
		return def
	}
	return n
}

func optionFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// IsValidTemperature reports whether t is within [MinTemperature, MaxTemperature].
func IsValidTemperature(t float64) bool { return t >= MinTemperature && t <= MaxTemperature }

// IsValidTopP reports whether p is within [MinTopP, MaxTopP].
func IsValidTopP(p float64) bool { return p >= MinTopP && p <= MaxTopP }

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, but got: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or
// negative values mean no timeout.
func ValidateTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return 0
	case timeout < MinTimeout:
		return MinTimeout
	case timeout > MaxTimeout:
		return MaxTimeout
	default:
		return timeout
	}
}

// SafeInt converts a numeric option to int.
func SafeInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		if int64(int(v)) != v {
			return 0, false
		}
		return int(v), true
	case float64:
		if math.IsNaN(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// ClampFloat64 restricts v to [lo, hi].
func ClampFloat64(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
