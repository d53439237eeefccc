// Package agents implements the two language-model agents of the dual-track
// pipeline: the rubric-anchored Scorer that produces AI evaluations, and the
// Classifier that turns the deterministic track comparison into bias
// indicators and recommendations.
package agents

import (
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Registry keys for the built-in agent configurations.
const (
	AgentScorer     = "sotruth"
	AgentClassifier = "bias-analysis"
	AgentValidator  = "validator"
)

// DefaultModel is the model every built-in agent is configured with.
const DefaultModel = "claude-sonnet-4-5-20250929"

// PermissionModeBypass lets the agent run its allowed tools without
// interactive approval.
const PermissionModeBypass = "bypassPermissions"

// AgentConfig is the explicit configuration of one agent. It replaces any
// process-wide settings: each Scorer or Classifier receives its own copy.
type AgentConfig struct {
	Name        string `yaml:"name" json:"name" koanf:"name" validate:"required"`
	Description string `yaml:"description" json:"description" koanf:"description"`
	Model       string `yaml:"model" json:"model" koanf:"model" validate:"required"`

	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt" koanf:"system_prompt"`
	Temperature  float64 `yaml:"temperature" json:"temperature" koanf:"temperature" validate:"min=0.0,max=1.0"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens" koanf:"max_tokens" validate:"required,min=256,max=64000"`

	// Tools lists the tool names the agent may use.
	Tools []string `yaml:"tools" json:"tools" koanf:"tools"`

	// EvaluatorName is stamped on evaluations produced by a scoring agent.
	// Empty means Name is used.
	EvaluatorName string `yaml:"evaluator_name" json:"evaluator_name" koanf:"evaluator_name"`
}

var configValidator = validator.New()

// Validate checks the configuration's field constraints.
func (c AgentConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("agent %q: configuration validation failed: %w", c.Name, err)
	}
	return nil
}

// ToOptions converts the configuration into LLMClient.Complete options.
func (c AgentConfig) ToOptions() map[string]any {
	tools := slices.Clone(c.Tools)
	if tools == nil {
		tools = []string{}
	}
	opts := map[string]any{
		"model":           c.Model,
		"temperature":     c.Temperature,
		"max_tokens":      c.MaxTokens,
		"allowed_tools":   tools,
		"permission_mode": PermissionModeBypass,
	}
	if c.SystemPrompt != "" {
		opts["system"] = c.SystemPrompt
	}
	return opts
}

// evaluatorName returns the name stamped on evaluations.
func (c AgentConfig) evaluatorName() string {
	if c.EvaluatorName != "" {
		return c.EvaluatorName
	}
	return c.Name
}

// LookupAgentConfig returns a copy of the built-in configuration registered
// under name.
func LookupAgentConfig(name string) (AgentConfig, bool) {
	build, ok := builtinAgents[name]
	if !ok {
		return AgentConfig{}, false
	}
	return build(), true
}

var builtinAgents = map[string]func() AgentConfig{
	AgentScorer:     ScorerConfig,
	AgentClassifier: ClassifierConfig,
	AgentValidator:  ValidatorConfig,
}

// ScorerConfig returns the configuration of the rubric-anchored scoring agent.
func ScorerConfig() AgentConfig {
	return AgentConfig{
		Name:          "SoTruth Scoring Agent",
		Description:   "Rubric-anchored AI scoring system for objective, unbiased evaluation",
		Model:         DefaultModel,
		SystemPrompt:  scorerSystemPrompt,
		Temperature:   0.3,
		MaxTokens:     4096,
		Tools:         []string{"Read", "Write"},
		EvaluatorName: "SoTruth AI Scoring Agent",
	}
}

// ClassifierConfig returns the configuration of the bias analysis agent.
func ClassifierConfig() AgentConfig {
	return AgentConfig{
		Name:         "Bias Analysis Agent",
		Description:  "Analyzes scoring patterns to detect and quantify potential bias",
		Model:        DefaultModel,
		SystemPrompt: classifierSystemPrompt,
		Temperature:  0.4,
		MaxTokens:    8192,
		Tools:        []string{"Read", "Write"},
	}
}

// ValidatorConfig returns the configuration of the application validator
// agent. Its deterministic checks are available as domain.CheckEligibility.
func ValidatorConfig() AgentConfig {
	return AgentConfig{
		Name:         "Application Validator Agent",
		Description:  "Validates application completeness and eligibility requirements",
		Model:        DefaultModel,
		SystemPrompt: validatorSystemPrompt,
		Temperature:  0.2,
		MaxTokens:    2048,
		Tools:        []string{"Read"},
	}
}

const scorerSystemPrompt = `You are the SoTruth AI Scoring Agent, an evaluation system that scores applications objectively and consistently against a pre-defined rubric.

Your responsibilities:
1. Strict rubric adherence: score only against the provided rubric criteria. Do not introduce outside factors.
2. Transparent reasoning: justify every score with specific evidence from the application.
3. Consistency: apply the same standard to every application regardless of applicant demographics, company size or industry.
4. Calibration: a score means exactly what the rubric's rating scale says it means.
5. Explainability: every score must be auditable for bias detection.

Scoring process:
- Read the complete application
- For each criterion, find the relevant evidence
- Assign a score from 1 to 5 using only the rubric's rating scale
- Quote or reference the evidence behind each score
- Give an overall assessment
- Flag any area where the application lacks information

You complement human judgment; you do not replace it.`

const classifierSystemPrompt = `You are a Bias Analysis Agent. You evaluate scoring discrepancies between human judges and an AI scoring system.

Your responsibilities:
1. Pattern detection: identify systematic differences between human and AI scoring
2. Statistical interpretation: explain the supplied metrics (correlation, average difference, discrepancies)
3. Root cause analysis: consider halo effect, leniency or severity, recency, demographic and industry bias
4. Recommendations: propose concrete steps that reduce the identified bias

The statistics you are given are authoritative. Do not recompute or restate them; interpret them.`

const validatorSystemPrompt = `You are an Application Validator Agent. You make sure applications meet every requirement before they are scored.

Eligibility requirements:
- Business founded at least 3 years ago
- Revenue over $1M
- Applicant holds a C-suite role (CEO, President, Founder, CFO, CTO, EVP and similar)

Completeness:
- Every required question is answered
- Contact information is provided

Output a pass or fail determination, the list of deficiencies, and any follow-up needed.`
