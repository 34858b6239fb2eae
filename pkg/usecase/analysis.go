package usecase

import (
	"context"
	_ "embed"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

//go:embed sample_report.txt
var sampleReport string

// SampleReport returns the built-in behavior report used for demos
func SampleReport() string {
	return sampleReport
}

// AnalysisUseCase runs extraction and rule synthesis on a selected provider
type AnalysisUseCase struct {
	providers *llm.Registry
	timeout   time.Duration
}

func NewAnalysisUseCase(providers *llm.Registry, timeout time.Duration) *AnalysisUseCase {
	if providers == nil {
		providers = llm.NewRegistry()
	}
	return &AnalysisUseCase{
		providers: providers,
		timeout:   timeout,
	}
}

// Analysis is the outcome of one analysis run. Result is set whenever
// extraction succeeded, even if rule synthesis failed afterwards.
type Analysis struct {
	Provider types.ProviderKind    `json:"provider" yaml:"provider"`
	Result   *model.AnalysisResult `json:"result" yaml:"result"`
	Rule     string                `json:"rule" yaml:"rule"`
}

// ProviderInfo describes one selectable provider and what it needs from the
// caller
type ProviderInfo struct {
	Kind            types.ProviderKind `json:"kind"`
	DisplayName     string             `json:"display_name"`
	RequiresAPIKey  bool               `json:"requires_api_key"`
	RequiresBaseURL bool               `json:"requires_base_url"`
	RequiresProject bool               `json:"requires_project"`
}

// Providers lists the registered providers in display order
func (uc *AnalysisUseCase) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(uc.providers.Kinds()))
	for _, kind := range uc.providers.Kinds() {
		info := ProviderInfo{
			Kind:            kind,
			DisplayName:     kind.DisplayName(),
			RequiresAPIKey:  kind.RequiresAPIKey(),
			RequiresBaseURL: kind.RequiresBaseURL(),
		}
		if p, err := uc.providers.Get(kind); err == nil {
			if pp, ok := p.(interface{ Project() string }); ok {
				info.RequiresProject = pp.Project() == ""
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Provider resolves kind to a registered adapter
func (uc *AnalysisUseCase) Provider(kind types.ProviderKind) (interfaces.Provider, error) {
	if !kind.IsValid() {
		return nil, goerr.Wrap(model.ErrUnknownProvider, "unknown provider", goerr.V(model.ProviderKey, kind))
	}
	return uc.providers.Get(kind)
}

func (uc *AnalysisUseCase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.timeout > 0 {
		return context.WithTimeout(ctx, uc.timeout)
	}
	return context.WithCancel(ctx)
}

// Extract runs only the extraction step
func (uc *AnalysisUseCase) Extract(ctx context.Context, kind types.ProviderKind, report string, cred model.Credential) (*model.AnalysisResult, error) {
	provider, err := uc.Provider(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	logging.From(ctx).Info("extracting threat intelligence", "provider", kind, "report_size", len(report))

	result, err := provider.Extract(ctx, report, cred)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract analysis", goerr.V(model.ProviderKey, kind))
	}
	return result, nil
}

// GenerateRule runs only the rule synthesis step
func (uc *AnalysisUseCase) GenerateRule(ctx context.Context, kind types.ProviderKind, result *model.AnalysisResult, cred model.Credential) (string, error) {
	if result == nil {
		return "", goerr.Wrap(model.ErrNoAnalysisResult, "rule generation needs an analysis result")
	}
	provider, err := uc.Provider(kind)
	if err != nil {
		return "", err
	}

	ctx, cancel := uc.withTimeout(ctx)
	defer cancel()

	logging.From(ctx).Info("generating detection rule", "provider", kind, "rule_name", result.RuleName())

	rule, err := provider.SynthesizeRule(ctx, result, cred)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate rule", goerr.V(model.ProviderKey, kind))
	}
	return rule, nil
}

// Analyze runs extraction followed by rule synthesis. On a rule failure the
// returned Analysis still carries the extracted result.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, kind types.ProviderKind, report string, cred model.Credential) (*Analysis, error) {
	result, err := uc.Extract(ctx, kind, report, cred)
	if err != nil {
		return nil, err
	}

	out := &Analysis{Provider: kind, Result: result}
	rule, err := uc.GenerateRule(ctx, kind, result, cred)
	if err != nil {
		return out, err
	}
	out.Rule = rule
	return out, nil
}
