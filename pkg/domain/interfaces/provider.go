package interfaces

import (
	"context"

	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
)

// Provider is one AI backend able to turn report text into an
// AnalysisResult and an AnalysisResult into YARA rule text.
type Provider interface {
	Kind() types.ProviderKind

	// Extract asks the model for structured threat intelligence about report
	Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error)

	// SynthesizeRule asks the model for a YARA rule covering result. The
	// returned text has any surrounding code fence removed.
	SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error)
}
