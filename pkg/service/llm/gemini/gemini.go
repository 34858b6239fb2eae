package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used when neither the provider nor the credential names one
	DefaultModel = "gemini-2.5-flash"
	// Author is the rule author tag for this provider
	Author = "Gemini AI Analyst"
)

// Provider calls the Gemini API with a caller-supplied API key
type Provider struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

var _ interfaces.Provider = &Provider{}

type Option func(*Provider)

// WithModel sets the default model name
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the Gemini API endpoint
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// New creates a Gemini API provider
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
	return types.ProviderGemini
}

func (p *Provider) newClient(ctx context.Context, cred model.Credential) (*genai.Client, string, error) {
	if cred.APIKey == "" {
		return nil, "", goerr.Wrap(model.ErrMissingCredential, "Gemini API key is required",
			goerr.V(model.ProviderKey, p.Kind()))
	}

	cfg := &genai.ClientConfig{
		APIKey:     cred.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, "", goerr.Wrap(err, "failed to create Gemini client")
	}

	modelName := p.model
	if cred.Model != "" {
		modelName = cred.Model
	}
	return client, modelName, nil
}

// Extract sends report with the analysis schema as response schema and
// parses the JSON text the model returns.
func (p *Provider) Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error) {
	client, modelName, err := p.newClient(ctx, cred)
	if err != nil {
		return nil, err
	}

	prompt, err := llm.BuildExtractPrompt(report)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("requesting extraction", "provider", p.Kind(), "model", modelName)

	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(llm.AnalysisSchema()),
	})
	if err != nil {
		return nil, p.upstreamError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, llm.SchemaError(p.Kind(), "no JSON text in response", "")
	}

	result, err := model.ParseAnalysisResult([]byte(text))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse Gemini analysis", goerr.V(model.ProviderKey, p.Kind()))
	}
	return result, nil
}

// SynthesizeRule asks the model for a YARA rule covering result
func (p *Provider) SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error) {
	client, modelName, err := p.newClient(ctx, cred)
	if err != nil {
		return "", err
	}

	prompt, err := llm.BuildRulePrompt(result, Author)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), nil)
	if err != nil {
		return "", p.upstreamError(err)
	}

	return llm.CleanRule(resp.Text(), p.Kind().String())
}

func (p *Provider) upstreamError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.UpstreamError(p.Kind(), apiErr.Code, apiErr.Message)
	}
	return llm.UpstreamError(p.Kind(), 0, err.Error())
}

// toGenaiSchema converts the shared schema into genai's schema type
func toGenaiSchema(p *gollem.Parameter) *genai.Schema {
	if p == nil {
		return nil
	}
	s := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(string(p.Type))),
		Description: p.Description,
		Items:       toGenaiSchema(p.Items),
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, child := range p.Properties {
			s.Properties[name] = toGenaiSchema(child)
		}
		s.Required = llm.RequiredProperties(p)
	}
	return s
}
