package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/secmon-lab/malinsight/pkg/utils/safe"
)

const (
	// DefaultEndpoint is the DashScope text generation endpoint
	DefaultEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	// DefaultModel supports function calling
	DefaultModel = "qwen-plus"
	// Author is the rule author tag for this provider
	Author = "Qwen AI Analyst"

	extractSystemPrompt = "You are a helpful assistant."

	maxResponseBody = 4 << 20
)

// Provider calls the DashScope generation API with a caller-supplied key
type Provider struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

var _ interfaces.Provider = &Provider{}

type Option func(*Provider)

// WithEndpoint overrides the generation endpoint URL
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		if endpoint != "" {
			p.endpoint = endpoint
		}
	}
}

// WithModel sets the default model name
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

// New creates a DashScope provider
func New(opts ...Option) *Provider {
	p := &Provider{
		endpoint:   DefaultEndpoint,
		model:      DefaultModel,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind {
	return types.ProviderDashScope
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type request struct {
	Model string `json:"model"`
	Input struct {
		Messages []message `json:"messages"`
	} `json:"input"`
	Tools []tool `json:"tools,omitempty"`
}

type toolCall struct {
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// response covers both the plain output shape and the message output shape
// (result_format=message) of the generation API.
type response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Output    *struct {
		Text      string     `json:"text"`
		ToolCalls []toolCall `json:"tool_calls"`
		Choices   []struct {
			Message struct {
				Content   string     `json:"content"`
				ToolCalls []toolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

func (r *response) firstToolCall() *toolCall {
	if r.Output == nil {
		return nil
	}
	if len(r.Output.ToolCalls) > 0 {
		return &r.Output.ToolCalls[0]
	}
	if len(r.Output.Choices) > 0 && len(r.Output.Choices[0].Message.ToolCalls) > 0 {
		return &r.Output.Choices[0].Message.ToolCalls[0]
	}
	return nil
}

func (r *response) text() string {
	if r.Output == nil {
		return ""
	}
	if r.Output.Text != "" {
		return r.Output.Text
	}
	if len(r.Output.Choices) > 0 {
		return r.Output.Choices[0].Message.Content
	}
	return ""
}

// Extract asks the model to call extract_malware_info and parses the
// arguments of the first tool call.
func (p *Provider) Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error) {
	prompt, err := llm.BuildExtractPrompt(report)
	if err != nil {
		return nil, err
	}

	req := p.newRequest(cred, extractSystemPrompt, prompt)
	req.Tools = []tool{
		{
			Type: "function",
			Function: toolFunction{
				Name:        llm.ExtractToolName,
				Description: llm.ExtractToolDescription,
				Parameters:  llm.JSONSchema(llm.AnalysisSchema()),
			},
		},
	}

	resp, raw, err := p.call(ctx, cred, req)
	if err != nil {
		return nil, err
	}

	call := resp.firstToolCall()
	if call == nil || call.Type != "function" {
		return nil, llm.SchemaError(p.Kind(), "model did not call the extraction function", string(raw))
	}

	result, err := model.ParseAnalysisResult([]byte(call.Function.Arguments))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse DashScope tool arguments", goerr.V(model.ProviderKey, p.Kind()))
	}
	return result, nil
}

// SynthesizeRule asks the model for a YARA rule covering result
func (p *Provider) SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error) {
	prompt, err := llm.BuildRulePrompt(result, Author)
	if err != nil {
		return "", err
	}

	resp, _, err := p.call(ctx, cred, p.newRequest(cred, llm.RuleSystemPrompt, prompt))
	if err != nil {
		return "", err
	}
	return llm.CleanRule(resp.text(), p.Kind().String())
}

func (p *Provider) newRequest(cred model.Credential, system, user string) *request {
	req := &request{Model: p.model}
	if cred.Model != "" {
		req.Model = cred.Model
	}
	req.Input.Messages = []message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	return req
}

func (p *Provider) call(ctx context.Context, cred model.Credential, req *request) (*response, []byte, error) {
	if cred.APIKey == "" {
		return nil, nil, goerr.Wrap(model.ErrMissingCredential, "DashScope API key is required",
			goerr.V(model.ProviderKey, p.Kind()))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal DashScope request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create DashScope request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.APIKey)

	logging.From(ctx).Debug("calling DashScope", "model", req.Model, "tools", len(req.Tools))

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, llm.UpstreamError(p.Kind(), 0, err.Error())
	}
	defer safe.Close(ctx, httpResp.Body)

	raw, err := safe.ReadLimited(httpResp.Body, maxResponseBody)
	if err != nil {
		return nil, nil, llm.UpstreamError(p.Kind(), httpResp.StatusCode, "failed to read response: "+err.Error())
	}

	var resp response
	decodeErr := json.Unmarshal(raw, &resp)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := httpResp.Status
		if decodeErr == nil && resp.Message != "" {
			msg = resp.Message + " (code: " + resp.Code + ")"
		}
		return nil, nil, llm.UpstreamError(p.Kind(), httpResp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, nil, llm.SchemaError(p.Kind(), "response is not valid JSON", string(raw))
	}

	// Errors can also arrive in a 200 body
	if resp.Code != "" {
		return nil, nil, llm.UpstreamError(p.Kind(), httpResp.StatusCode, resp.Message+" (code: "+resp.Code+")")
	}

	return &resp, raw, nil
}
