package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-relay/handler"
	"chat-relay/internal/credentials"
	"chat-relay/internal/domain"
	"chat-relay/internal/hintcache"
	"chat-relay/internal/identity"
	"chat-relay/internal/integrations/paramstore"
	"chat-relay/internal/integrations/synthflow"
	"chat-relay/internal/platform/config"
	"chat-relay/internal/platform/logging"
	"chat-relay/internal/platform/otel"
	"chat-relay/internal/repository"
	"chat-relay/internal/usecase"
)

const serviceName = "chat-relay"

// app holds everything a running relay needs.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	handler  *handler.Handler
	shutdown func(context.Context) error
}

func newLogger(cfg config.Config) *slog.Logger {
	format := cfg.LogFormat
	if cfg.InLambda() {
		format = "json"
	}
	return logging.New(os.Stderr, cfg.LogLevel, format)
}

// buildApp wires the relay. Configuration is read only here.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	shutdown, err := otel.Setup(ctx, deployment(cfg), cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	// ---- AWS-backed components (optional) ----
	var (
		params credentials.ParamsGetter
		hints  usecase.SessionHints = hintcache.NewMemory(cfg.HintCacheSize, cfg.HintTTL)
	)
	if cfg.NeedsAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if cfg.ParamPrefix != "" {
			ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("create parameter store client: %w", err)
			}
			params = ps
		}
		if cfg.HintTable != "" {
			repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.HintTable, cfg.HintTTL)
			if err != nil {
				return nil, fmt.Errorf("create hint repository: %w", err)
			}
			hints = repo
		}
	}

	// ---- Backend ----
	creds := credentials.NewSource(domain.Credentials{
		APIKey:  cfg.SynthflowAPIKey,
		AgentID: cfg.SynthflowAgentID,
	}, params, cfg.ParamPrefix, credentials.WithLoadTimeout(cfg.ParamTimeout))

	client, err := synthflow.NewClient(creds,
		synthflow.WithBaseURL(cfg.SynthflowBaseURL),
		synthflow.WithTimeout(cfg.SynthflowTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create synthflow client: %w", err)
	}

	keys, err := identity.NewDeriver(cfg.SessionNamespace)
	if err != nil {
		return nil, fmt.Errorf("create session key deriver: %w", err)
	}

	// ---- Handler ----
	relay, err := usecase.NewRelayService(client, keys, creds,
		usecase.WithHints(hints),
		usecase.WithHintTimeout(cfg.HintTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create relay service: %w", err)
	}
	h, err := handler.NewHandler(relay, logger)
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}

	if _, err := creds.Credentials(ctx); err != nil {
		logger.Warn("backend credentials unavailable, replying with setup notice until configured", "err", err)
	}
	logger.Info("relay ready",
		"base_url", cfg.SynthflowBaseURL,
		"hint_store", hintStoreName(cfg),
		"param_prefix", cfg.ParamPrefix,
	)

	return &app{cfg: cfg, logger: logger, handler: h, shutdown: shutdown}, nil
}

func deployment(cfg config.Config) otel.Deployment {
	d := otel.Deployment{
		ServiceName:  serviceName,
		Runtime:      "server",
		FunctionName: cfg.LambdaFunctionName,
	}
	if cfg.InLambda() {
		d.Runtime = "lambda"
	}
	if u, err := url.Parse(cfg.SynthflowBaseURL); err == nil {
		d.Backend = u.Host
	}
	return d
}

func hintStoreName(cfg config.Config) string {
	if cfg.HintTable != "" {
		return "dynamodb:" + cfg.HintTable
	}
	return "memory"
}
