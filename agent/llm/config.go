package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/napatw/salesintel/agent/contract"
	openrouterx "github.com/napatw/salesintel/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	AnalysisModel       string  `envconfig:"ANALYSIS_MODEL" split_words:"true"`
	OutreachModel       string  `envconfig:"OUTREACH_MODEL" split_words:"true"`
	AnalysisTemperature float64 `envconfig:"ANALYSIS_TEMPERATURE" split_words:"true" default:"-1"`
	OutreachTemperature float64 `envconfig:"OUTREACH_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the provider config for a stage, applying per-stage
// model and temperature overrides over the defaults.
func (c Config) OpenRouterFor(stage string) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch stage {
	case contractx.StageAnalysis:
		if v := strings.TrimSpace(c.AnalysisModel); v != "" {
			modelName = v
		}
		if c.AnalysisTemperature >= 0 {
			temp = c.AnalysisTemperature
		}
	case contractx.StageOutreach:
		if v := strings.TrimSpace(c.OutreachModel); v != "" {
			modelName = v
		}
		if c.OutreachTemperature >= 0 {
			temp = c.OutreachTemperature
		}
	}

	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: c.MaxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
