package vertex

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

const (
	// DefaultLocation is used when neither the provider nor the credential sets one
	DefaultLocation = "us-central1"
	// Author is the rule author tag for this provider
	Author = "Vertex AI Analyst"
)

// ClientFactory creates a gollem client for a Google Cloud project. model
// may be empty to use the client default.
type ClientFactory func(ctx context.Context, project, location, model string) (gollem.LLMClient, error)

// DefaultClientFactory uses Application Default Credentials through gollem's
// Gemini backend.
func DefaultClientFactory(ctx context.Context, project, location, model string) (gollem.LLMClient, error) {
	var opts []gemini.Option
	if model != "" {
		opts = append(opts, gemini.WithModel(model))
	}
	client, err := gemini.New(ctx, project, location, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Vertex AI client",
			goerr.V("project", project), goerr.V("location", location))
	}
	return client, nil
}

// Provider runs analysis on Vertex AI. It authenticates with ambient Google
// Cloud credentials, so the credential carries a project instead of a key.
type Provider struct {
	project  string
	location string
	model    string
	factory  ClientFactory
}

var _ interfaces.Provider = &Provider{}

type Option func(*Provider)

// WithProject sets the project used when the credential has none
func WithProject(project string) Option {
	return func(p *Provider) {
		p.project = project
	}
}

// WithLocation sets the location used when the credential has none
func WithLocation(location string) Option {
	return func(p *Provider) {
		if location != "" {
			p.location = location
		}
	}
}

// WithModel sets the model used when the credential has none
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithClientFactory replaces how gollem clients are built
func WithClientFactory(factory ClientFactory) Option {
	return func(p *Provider) {
		if factory != nil {
			p.factory = factory
		}
	}
}

// New creates a Vertex AI provider
func New(opts ...Option) *Provider {
	p := &Provider{
		location: DefaultLocation,
		factory:  DefaultClientFactory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind {
	return types.ProviderVertex
}

// Project returns the default project, empty when unset
func (p *Provider) Project() string {
	return p.project
}

func (p *Provider) newClient(ctx context.Context, cred model.Credential) (gollem.LLMClient, error) {
	project := strings.TrimSpace(cred.Project)
	if project == "" {
		project = p.project
	}
	if project == "" {
		return nil, goerr.Wrap(model.ErrMissingCredential, "Google Cloud project is required for Vertex AI",
			goerr.V(model.ProviderKey, p.Kind()))
	}

	location := strings.TrimSpace(cred.Location)
	if location == "" {
		location = p.location
	}
	modelName := cred.Model
	if modelName == "" {
		modelName = p.model
	}

	logging.From(ctx).Debug("creating Vertex AI client", "project", project, "location", location, "model", modelName)

	client, err := p.factory(ctx, project, location, modelName)
	if err != nil {
		return nil, llm.UpstreamError(p.Kind(), 0, err.Error())
	}
	return client, nil
}

// Extract requests a JSON response constrained by the analysis schema
func (p *Provider) Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error) {
	client, err := p.newClient(ctx, cred)
	if err != nil {
		return nil, err
	}

	prompt, err := llm.BuildExtractPrompt(report)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(llm.AnalysisSchema()),
	)
	if err != nil {
		return nil, llm.UpstreamError(p.Kind(), 0, err.Error())
	}

	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt)})
	if err != nil {
		return nil, llm.UpstreamError(p.Kind(), 0, err.Error())
	}
	if resp == nil || len(resp.Texts) == 0 {
		return nil, llm.SchemaError(p.Kind(), "no JSON text in response", "")
	}

	result, err := model.ParseAnalysisResult([]byte(strings.Join(resp.Texts, "")))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse Vertex AI analysis", goerr.V(model.ProviderKey, p.Kind()))
	}
	return result, nil
}

// SynthesizeRule asks for a YARA rule covering result
func (p *Provider) SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error) {
	client, err := p.newClient(ctx, cred)
	if err != nil {
		return "", err
	}

	prompt, err := llm.BuildRulePrompt(result, Author)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession(ctx, gollem.WithSessionSystemPrompt(llm.RuleSystemPrompt))
	if err != nil {
		return "", llm.UpstreamError(p.Kind(), 0, err.Error())
	}

	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt)})
	if err != nil {
		return "", llm.UpstreamError(p.Kind(), 0, err.Error())
	}
	if resp == nil {
		return "", goerr.Wrap(model.ErrEmptyCompletion, "no response from Vertex AI",
			goerr.V(model.ProviderKey, p.Kind()))
	}
	return llm.CleanRule(strings.Join(resp.Texts, ""), p.Kind().String())
}
