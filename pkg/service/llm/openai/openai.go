package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	oai "github.com/sashabaranov/go-openai"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

const (
	// DefaultModel is sent when the credential does not name a model
	DefaultModel = "custom-model"
	// Author is the rule author tag for this provider
	Author = "Custom AI Analyst"

	completionsSuffix = "/chat/completions"
)

// Provider calls any endpoint that speaks the OpenAI chat completions
// protocol. The base URL comes with each credential.
type Provider struct {
	model      string
	httpClient *http.Client
}

var _ interfaces.Provider = &Provider{}

type Option func(*Provider)

// WithModel sets the model used when the credential has none
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// New creates an OpenAI-compatible provider
func New(opts ...Option) *Provider {
	p := &Provider{
		model: DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind {
	return types.ProviderOpenAI
}

// NormalizeBaseURL trims whitespace, trailing slashes and a trailing
// /chat/completions so both forms of endpoint are accepted.
func NormalizeBaseURL(baseURL string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u = strings.TrimSuffix(u, completionsSuffix)
	return strings.TrimRight(u, "/")
}

func (p *Provider) newClient(cred model.Credential) (*oai.Client, string, error) {
	baseURL := NormalizeBaseURL(cred.BaseURL)
	if baseURL == "" {
		return nil, "", goerr.Wrap(model.ErrMissingEndpoint, "base URL is required for OpenAI-compatible endpoint",
			goerr.V(model.ProviderKey, p.Kind()))
	}
	if cred.APIKey == "" {
		return nil, "", goerr.Wrap(model.ErrMissingCredential, "API key is required for OpenAI-compatible endpoint",
			goerr.V(model.ProviderKey, p.Kind()))
	}

	cfg := oai.DefaultConfig(cred.APIKey)
	cfg.BaseURL = baseURL
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}

	modelName := p.model
	if cred.Model != "" {
		modelName = cred.Model
	}
	return oai.NewClientWithConfig(cfg), modelName, nil
}

// Extract forces a call to extract_malware_info and parses its arguments.
// A reply without that tool call is rejected.
func (p *Provider) Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error) {
	client, modelName, err := p.newClient(cred)
	if err != nil {
		return nil, err
	}

	prompt, err := llm.BuildExtractPrompt(report)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("requesting extraction", "provider", p.Kind(), "model", modelName)

	resp, err := client.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: modelName,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: llm.ToolSystemPrompt},
			{Role: oai.ChatMessageRoleUser, Content: prompt},
		},
		Tools: []oai.Tool{
			{
				Type: oai.ToolTypeFunction,
				Function: &oai.FunctionDefinition{
					Name:        llm.ExtractToolName,
					Description: llm.ExtractToolDescription,
					Parameters:  llm.JSONSchema(llm.AnalysisSchema()),
				},
			},
		},
		ToolChoice: oai.ToolChoice{
			Type:     oai.ToolTypeFunction,
			Function: oai.ToolFunction{Name: llm.ExtractToolName},
		},
	})
	if err != nil {
		return nil, p.upstreamError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, llm.SchemaError(p.Kind(), "no choices in response", "")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 || msg.ToolCalls[0].Type != oai.ToolTypeFunction {
		return nil, llm.SchemaError(p.Kind(), "model did not call the extraction function", msg.Content)
	}

	result, err := model.ParseAnalysisResult([]byte(msg.ToolCalls[0].Function.Arguments))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse tool arguments", goerr.V(model.ProviderKey, p.Kind()))
	}
	return result, nil
}

// SynthesizeRule asks for a YARA rule with a low sampling temperature
func (p *Provider) SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error) {
	client, modelName, err := p.newClient(cred)
	if err != nil {
		return "", err
	}

	prompt, err := llm.BuildRulePrompt(result, Author)
	if err != nil {
		return "", err
	}

	resp, err := client.CreateChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: modelName,
		Messages: []oai.ChatCompletionMessage{
			{Role: oai.ChatMessageRoleSystem, Content: llm.RuleSystemPrompt},
			{Role: oai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: llm.RuleTemperature,
	})
	if err != nil {
		return "", p.upstreamError(err)
	}

	if len(resp.Choices) == 0 {
		return "", goerr.Wrap(model.ErrEmptyCompletion, "no choices in rule response",
			goerr.V(model.ProviderKey, p.Kind()))
	}
	return llm.CleanRule(resp.Choices[0].Message.Content, p.Kind().String())
}

func (p *Provider) upstreamError(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return llm.UpstreamError(p.Kind(), apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return llm.UpstreamError(p.Kind(), reqErr.HTTPStatusCode, msg)
	}
	return llm.UpstreamError(p.Kind(), 0, err.Error())
}
