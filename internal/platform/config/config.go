package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete process configuration, read from the environment.
// The backend credentials are optional here: when absent every webhook is
// answered with the setup-issue reply instead of failing at startup.
type Config struct {
	SynthflowAPIKey  string        `env:"SYNTHFLOW_API_KEY"`
	SynthflowAgentID string        `env:"SYNTHFLOW_AGENT_ID"`
	SynthflowBaseURL string        `env:"SYNTHFLOW_BASE_URL" envDefault:"https://api.synthflow.ai/v2"`
	SynthflowTimeout time.Duration `env:"SYNTHFLOW_TIMEOUT"  envDefault:"12s"`

	SessionNamespace string `env:"SESSION_NAMESPACE" envDefault:"chat-relay.sessions"`
	Port             string `env:"PORT"              envDefault:"10000"`

	ParamPrefix  string        `env:"PARAM_PREFIX"`
	ParamTimeout time.Duration `env:"PARAM_TIMEOUT" envDefault:"5s"`

	HintTable     string        `env:"HINT_TABLE"`
	HintTTL       time.Duration `env:"HINT_TTL"        envDefault:"24h"`
	HintCacheSize int           `env:"HINT_CACHE_SIZE" envDefault:"1024"`
	HintTimeout   time.Duration `env:"HINT_TIMEOUT"    envDefault:"2s"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	LambdaFunctionName string `env:"AWS_LAMBDA_FUNCTION_NAME"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.SynthflowAPIKey = strings.TrimSpace(cfg.SynthflowAPIKey)
	cfg.SynthflowAgentID = strings.TrimSpace(cfg.SynthflowAgentID)
	cfg.ParamPrefix = strings.TrimRight(strings.TrimSpace(cfg.ParamPrefix), "/")
	if strings.TrimSpace(cfg.SessionNamespace) == "" {
		return Config{}, fmt.Errorf("parse env: SESSION_NAMESPACE must not be blank")
	}
	return cfg, nil
}

// InLambda reports whether the process runs inside AWS Lambda.
func (c Config) InLambda() bool {
	return c.LambdaFunctionName != ""
}

// NeedsAWS reports whether any AWS-backed component is enabled.
func (c Config) NeedsAWS() bool {
	return c.ParamPrefix != "" || c.HintTable != ""
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
