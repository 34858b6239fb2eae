package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

// Server exposes lookup, normalization and analysis as MCP tools. Tool
// arguments carry credentials; values configured on the server are used when
// an argument is empty.
type Server struct {
	MCPServer *sdkmcp.Server

	uc          *usecase.UseCases
	vtAPIKey    string
	credentials map[types.ProviderKind]model.Credential
}

type Option func(*Server)

// WithVirusTotalAPIKey sets the key used when lookup_hash has none
func WithVirusTotalAPIKey(key string) Option {
	return func(s *Server) {
		s.vtAPIKey = key
	}
}

// WithCredential sets the fallback credential for one provider
func WithCredential(kind types.ProviderKind, cred model.Credential) Option {
	return func(s *Server) {
		s.credentials[kind] = cred
	}
}

// NewServer creates an MCP server with the analysis tools registered
func NewServer(uc *usecase.UseCases, version string, opts ...Option) *Server {
	s := &Server{
		uc:          uc,
		credentials: make(map[types.ProviderKind]model.Credential),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "malinsight", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout until ctx is done or the client leaves
func (s *Server) Run(ctx context.Context) error {
	if err := s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP server stopped")
	}
	return nil
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "normalize_report",
		Description: "Convert a raw VirusTotal file report (JSON) into the fixed-section text report used for analysis.",
	}, s.handleNormalizeReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "lookup_hash",
		Description: "Look up a file hash on VirusTotal and return the normalized report text.",
	}, s.handleLookupHash)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "analyze_report",
		Description: "Extract malware family, behaviors, MITRE ATT&CK techniques and IoCs from a report with an AI provider, then generate a YARA rule.",
	}, s.handleAnalyzeReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "generate_rule",
		Description: "Generate a YARA rule from an existing analysis result.",
	}, s.handleGenerateRule)
}

// --- Tool input/output types ---

type normalizeReportInput struct {
	RawJSON string `json:"raw_json" jsonschema:"VirusTotal /files/{hash} response body"`
}

type reportOutput struct {
	Identifier string `json:"identifier,omitempty"`
	Report     string `json:"report"`
}

type lookupHashInput struct {
	Hash     string `json:"hash" jsonschema:"SHA-256, SHA-1 or MD5 of the sample"`
	VTAPIKey string `json:"vt_api_key,omitempty" jsonschema:"VirusTotal API key; server default when empty"`
}

type credentialInput struct {
	Provider string `json:"provider" jsonschema:"AI provider: gemini, dashscope, openai or vertex"`
	APIKey   string `json:"api_key,omitempty" jsonschema:"provider API key; server default when empty"`
	BaseURL  string `json:"base_url,omitempty" jsonschema:"base URL of an OpenAI-compatible endpoint"`
	Model    string `json:"model,omitempty" jsonschema:"model name override"`
	Project  string `json:"project,omitempty" jsonschema:"Google Cloud project for vertex"`
	Location string `json:"location,omitempty" jsonschema:"Google Cloud location for vertex"`
}

type analyzeReportInput struct {
	credentialInput
	Report string `json:"report" jsonschema:"behavior report text to analyze"`
}

type analyzeReportOutput struct {
	Provider string               `json:"provider"`
	Result   model.AnalysisResult `json:"result"`
	Rule     string               `json:"rule"`
	Error    string               `json:"error,omitempty"`
}

type generateRuleInput struct {
	credentialInput
	Result model.AnalysisResult `json:"result" jsonschema:"analysis result returned by analyze_report"`
}

type generateRuleOutput struct {
	Rule string `json:"rule"`
}

// resolve merges tool arguments over the server-side credential for the
// provider
func (s *Server) resolve(in credentialInput) (types.ProviderKind, model.Credential, error) {
	kind, err := types.ParseProviderKind(strings.TrimSpace(in.Provider))
	if err != nil {
		return "", model.Credential{}, goerr.Wrap(model.ErrUnknownProvider, "unsupported provider",
			goerr.V(model.ProviderKey, in.Provider))
	}

	cred := s.credentials[kind]
	if in.APIKey != "" {
		cred.APIKey = in.APIKey
	}
	if in.BaseURL != "" {
		cred.BaseURL = in.BaseURL
	}
	if in.Model != "" {
		cred.Model = in.Model
	}
	if in.Project != "" {
		cred.Project = in.Project
	}
	if in.Location != "" {
		cred.Location = in.Location
	}
	return kind, cred, nil
}

// --- Tool handlers ---

func (s *Server) handleNormalizeReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input normalizeReportInput) (*sdkmcp.CallToolResult, reportOutput, error) {
	return nil, reportOutput{Report: s.uc.Lookup.Normalize([]byte(input.RawJSON))}, nil
}

func (s *Server) handleLookupHash(ctx context.Context, _ *sdkmcp.CallToolRequest, input lookupHashInput) (*sdkmcp.CallToolResult, reportOutput, error) {
	key := input.VTAPIKey
	if key == "" {
		key = s.vtAPIKey
	}

	found, err := s.uc.Lookup.LookupHash(ctx, input.Hash, key)
	if err != nil {
		logging.From(ctx).Warn("lookup_hash failed", "error", err, "kind", model.ErrorKind(err))
		return nil, reportOutput{}, err
	}
	return nil, reportOutput{Identifier: found.Identifier, Report: found.Report}, nil
}

func (s *Server) handleAnalyzeReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input analyzeReportInput) (*sdkmcp.CallToolResult, analyzeReportOutput, error) {
	kind, cred, err := s.resolve(input.credentialInput)
	if err != nil {
		return nil, analyzeReportOutput{}, err
	}

	out, err := s.uc.Analysis.Analyze(ctx, kind, input.Report, cred)
	if err != nil {
		logging.From(ctx).Warn("analyze_report failed", "error", err, "kind", model.ErrorKind(err))
		if out == nil || out.Result == nil {
			return nil, analyzeReportOutput{}, err
		}
		return partialAnalysis(kind, out.Result, err)
	}
	return nil, analyzeReportOutput{
		Provider: kind.String(),
		Result:   *out.Result,
		Rule:     out.Rule,
	}, nil
}

// partialAnalysis reports a failed rule synthesis as a tool error that still
// carries the extracted result
func partialAnalysis(kind types.ProviderKind, result *model.AnalysisResult, cause error) (*sdkmcp.CallToolResult, analyzeReportOutput, error) {
	out := analyzeReportOutput{
		Provider: kind.String(),
		Result:   *result,
		Error:    cause.Error(),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, analyzeReportOutput{}, goerr.Wrap(cause, "failed to encode partial analysis")
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, out, nil
}

func (s *Server) handleGenerateRule(ctx context.Context, _ *sdkmcp.CallToolRequest, input generateRuleInput) (*sdkmcp.CallToolResult, generateRuleOutput, error) {
	kind, cred, err := s.resolve(input.credentialInput)
	if err != nil {
		return nil, generateRuleOutput{}, err
	}

	result := input.Result
	rule, err := s.uc.Analysis.GenerateRule(ctx, kind, &result, cred)
	if err != nil {
		logging.From(ctx).Warn("generate_rule failed", "error", err, "kind", model.ErrorKind(err))
		return nil, generateRuleOutput{}, err
	}
	return nil, generateRuleOutput{Rule: rule}, nil
}
