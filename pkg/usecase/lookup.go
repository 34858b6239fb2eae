package usecase

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
)

// LookupUseCase turns samples and digests into normalized report text
type LookupUseCase struct {
	reputation interfaces.ReputationService
	timeout    time.Duration
}

func NewLookupUseCase(reputation interfaces.ReputationService, timeout time.Duration) *LookupUseCase {
	return &LookupUseCase{
		reputation: reputation,
		timeout:    timeout,
	}
}

// LookupResult is one reputation lookup: the raw report and its text view
type LookupResult struct {
	Identifier string          `json:"identifier"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	Report     string          `json:"report"`
}

// Hash returns the lookup identifier for sample content
func (uc *LookupUseCase) Hash(r io.Reader) (string, error) {
	return uc.reputation.Hash(r)
}

// LookupHash fetches and normalizes the report for identifier
func (uc *LookupUseCase) LookupHash(ctx context.Context, identifier, apiKey string) (*LookupResult, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	raw, err := uc.reputation.Lookup(ctx, identifier, apiKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up sample", goerr.V(model.IdentifierKey, identifier))
	}

	logging.From(ctx).Info("sample report fetched", "identifier", identifier, "size", len(raw))

	return &LookupResult{
		Identifier: identifier,
		Raw:        raw,
		Report:     uc.reputation.Normalize(raw),
	}, nil
}

// LookupSample hashes r and looks up the digest
func (uc *LookupUseCase) LookupSample(ctx context.Context, r io.Reader, apiKey string) (*LookupResult, error) {
	identifier, err := uc.reputation.Hash(r)
	if err != nil {
		return nil, err
	}
	return uc.LookupHash(ctx, identifier, apiKey)
}

// Normalize renders a raw report. It never fails.
func (uc *LookupUseCase) Normalize(raw []byte) string {
	return uc.reputation.Normalize(raw)
}
