package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/service/llm/dashscope"
	"github.com/secmon-lab/malinsight/pkg/service/llm/gemini"
	"github.com/secmon-lab/malinsight/pkg/service/llm/openai"
	"github.com/urfave/cli/v3"
)

// Providers holds configuration for all AI provider adapters
type Providers struct {
	geminiModel       string
	geminiEndpoint    string
	dashscopeModel    string
	dashscopeEndpoint string
	openaiModel       string
	timeout           time.Duration

	geminiAPIKey    string
	dashscopeAPIKey string
	openaiAPIKey    string
	openaiBaseURL   string

	Vertex Vertex
}

// Flags returns CLI flags for provider models and endpoints
func (x *Providers) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-model",
			Category:    "AI provider",
			Usage:       "Gemini API model (default " + gemini.DefaultModel + ")",
			Sources:     cli.EnvVars("MALINSIGHT_GEMINI_MODEL"),
			Destination: &x.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-endpoint",
			Category:    "AI provider",
			Usage:       "Gemini API base URL override",
			Sources:     cli.EnvVars("MALINSIGHT_GEMINI_ENDPOINT"),
			Destination: &x.geminiEndpoint,
		},
		&cli.StringFlag{
			Name:        "dashscope-model",
			Category:    "AI provider",
			Usage:       "DashScope model (default " + dashscope.DefaultModel + ")",
			Sources:     cli.EnvVars("MALINSIGHT_DASHSCOPE_MODEL"),
			Destination: &x.dashscopeModel,
		},
		&cli.StringFlag{
			Name:        "dashscope-endpoint",
			Category:    "AI provider",
			Usage:       "DashScope generation endpoint URL",
			Sources:     cli.EnvVars("MALINSIGHT_DASHSCOPE_ENDPOINT"),
			Destination: &x.dashscopeEndpoint,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Category:    "AI provider",
			Usage:       "Model for OpenAI-compatible endpoints (default " + openai.DefaultModel + ")",
			Sources:     cli.EnvVars("MALINSIGHT_OPENAI_MODEL"),
			Destination: &x.openaiModel,
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Category:    "AI provider",
			Usage:       "Timeout for one provider call (0 for none)",
			Sources:     cli.EnvVars("MALINSIGHT_LLM_TIMEOUT"),
			Destination: &x.timeout,
		},
	}
	return append(flags, x.Vertex.Flags()...)
}

// CredentialFlags returns flags for provider keys. They serve the CLI and
// MCP front doors; the HTTP API receives credentials per request.
func (x *Providers) CredentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Category:    "AI provider",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("MALINSIGHT_GEMINI_API_KEY"),
			Destination: &x.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "dashscope-api-key",
			Category:    "AI provider",
			Usage:       "DashScope API key",
			Sources:     cli.EnvVars("MALINSIGHT_DASHSCOPE_API_KEY"),
			Destination: &x.dashscopeAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "AI provider",
			Usage:       "API key for the OpenAI-compatible endpoint",
			Sources:     cli.EnvVars("MALINSIGHT_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "AI provider",
			Usage:       "Base URL of the OpenAI-compatible endpoint",
			Sources:     cli.EnvVars("MALINSIGHT_OPENAI_BASE_URL"),
			Destination: &x.openaiBaseURL,
		},
	}
}

// LogValue never includes API keys
func (x Providers) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("gemini_model", x.geminiModel),
		slog.String("dashscope_model", x.dashscopeModel),
		slog.String("openai_model", x.openaiModel),
		slog.String("openai_base_url", x.openaiBaseURL),
		slog.Duration("timeout", x.timeout),
		slog.Any("vertex", x.Vertex),
	)
}

// Timeout returns the provider call timeout, preferring the flag over the file
func (x *Providers) Timeout(file *File) time.Duration {
	return pickDuration(x.timeout, file.LLM.Timeout)
}

// Configure registers every provider adapter
func (x *Providers) Configure(file *File) *llm.Registry {
	return llm.NewRegistry(
		gemini.New(
			gemini.WithModel(pick(x.geminiModel, file.Gemini.Model)),
			gemini.WithBaseURL(pick(x.geminiEndpoint, file.Gemini.Endpoint)),
		),
		dashscope.New(
			dashscope.WithModel(pick(x.dashscopeModel, file.DashScope.Model)),
			dashscope.WithEndpoint(pick(x.dashscopeEndpoint, file.DashScope.Endpoint)),
		),
		openai.New(
			openai.WithModel(pick(x.openaiModel, file.OpenAI.Model)),
		),
		x.Vertex.Configure(file),
	)
}

// Credential returns the flag or environment credential for kind. Empty
// fields are filled by the adapter defaults or rejected by the adapter.
func (x *Providers) Credential(kind types.ProviderKind, file *File) model.Credential {
	switch kind {
	case types.ProviderGemini:
		return model.Credential{APIKey: x.geminiAPIKey}
	case types.ProviderDashScope:
		return model.Credential{APIKey: x.dashscopeAPIKey}
	case types.ProviderOpenAI:
		return model.Credential{
			APIKey:  x.openaiAPIKey,
			BaseURL: pick(x.openaiBaseURL, file.OpenAI.Endpoint),
		}
	default:
		return model.Credential{}
	}
}
