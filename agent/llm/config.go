package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/ggonzalezcastro/inmo-sub001/agent/contract"
	openrouterx "github.com/ggonzalezcastro/inmo-sub001/pkg/openrouter"
)

// Config holds the provider settings shared by every specialist plus
// per-agent model overrides and the fallback provider.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	FallbackModel   string `envconfig:"FALLBACK_MODEL" split_words:"true"`
	FallbackBaseURL string `envconfig:"FALLBACK_BASE_URL" split_words:"true"`
	FallbackAPIKey  string `envconfig:"FALLBACK_API_KEY" split_words:"true"`

	QualifierModel        string  `envconfig:"QUALIFIER_MODEL" split_words:"true"`
	SchedulerModel        string  `envconfig:"SCHEDULER_MODEL" split_words:"true"`
	FollowUpModel         string  `envconfig:"FOLLOWUP_MODEL" split_words:"true"`
	SummarizerModel       string  `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	QualifierTemperature  float32 `envconfig:"QUALIFIER_TEMPERATURE" split_words:"true" default:"-1"`
	SchedulerTemperature  float32 `envconfig:"SCHEDULER_TEMPERATURE" split_words:"true" default:"-1"`
	FollowUpTemperature   float32 `envconfig:"FOLLOWUP_TEMPERATURE" split_words:"true" default:"-1"`
	SummarizerTemperature float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: provider api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// HasFallback reports whether a secondary provider is configured.
func (c Config) HasFallback() bool {
	return strings.TrimSpace(c.FallbackModel) != ""
}

// OpenRouterFor resolves the provider config for one agent role, applying
// the per-agent model and temperature overrides when set.
func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agentType {
	case contractx.AgentTypeQualifier:
		if v := strings.TrimSpace(c.QualifierModel); v != "" {
			modelName = v
		}
		if c.QualifierTemperature >= 0 {
			temp = c.QualifierTemperature
		}
	case contractx.AgentTypeScheduler:
		if v := strings.TrimSpace(c.SchedulerModel); v != "" {
			modelName = v
		}
		if c.SchedulerTemperature >= 0 {
			temp = c.SchedulerTemperature
		}
	case contractx.AgentTypeFollowUp:
		if v := strings.TrimSpace(c.FollowUpModel); v != "" {
			modelName = v
		}
		if c.FollowUpTemperature >= 0 {
			temp = c.FollowUpTemperature
		}
	case contractx.AgentTypeSummarizer:
		if v := strings.TrimSpace(c.SummarizerModel); v != "" {
			modelName = v
		}
		if c.SummarizerTemperature >= 0 {
			temp = c.SummarizerTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// OpenRouterFallback resolves the secondary provider config. The fallback
// shares the primary's key and base URL unless overridden.
func (c Config) OpenRouterFallback() openrouterx.Config {
	baseURL := strings.TrimSpace(c.FallbackBaseURL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(c.BaseURL)
	}
	apiKey := strings.TrimSpace(c.FallbackAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(c.APIKey)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            baseURL,
		APIKey:             apiKey,
		Model:              strings.TrimSpace(c.FallbackModel),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
