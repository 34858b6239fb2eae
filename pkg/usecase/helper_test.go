package usecase_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/virustotal"
)

// sha256("abc")
const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

const vtReport = `{"data":{"attributes":{"meaningful_name":"evil.exe","type_description":"Win32 EXE","size":1024,"last_analysis_stats":{"malicious":40,"suspicious":1,"harmless":0,"undetected":20}}}}`

// newVirusTotal serves vtReport for abcDigest and 404 for everything else
func newVirusTotal(t *testing.T, calls *atomic.Int32) *virustotal.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if strings.HasSuffix(r.URL.Path, "/files/"+abcDigest) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(vtReport))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NotFoundError","message":"File not found"}}`))
	}))
	t.Cleanup(srv.Close)
	return virustotal.New(virustotal.WithBaseURL(srv.URL))
}

func newResult(family string) *model.AnalysisResult {
	return &model.AnalysisResult{
		MalwareFamilyGuess: family,
		Summary:            "summary of " + family,
		KeyBehaviors: model.KeyBehaviors{
			FileSystem: []string{},
			Registry:   []string{},
			Network:    []string{},
		},
		MitreAttackTechniques: []model.MitreTechnique{},
		IndicatorsOfCompromise: model.Indicators{
			Files:        []string{"payload.exe"},
			Domains:      []string{},
			IPs:          []string{},
			RegistryKeys: []string{},
		},
	}
}

type mockProvider struct {
	kind             types.ProviderKind
	extractFn        func(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error)
	synthesizeRuleFn func(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error)
}

func (m *mockProvider) Kind() types.ProviderKind {
	if m.kind == "" {
		return types.ProviderGemini
	}
	return m.kind
}

func (m *mockProvider) Extract(ctx context.Context, report string, cred model.Credential) (*model.AnalysisResult, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, report, cred)
	}
	return newResult("Emotet"), nil
}

func (m *mockProvider) SynthesizeRule(ctx context.Context, result *model.AnalysisResult, cred model.Credential) (string, error) {
	if m.synthesizeRuleFn != nil {
		return m.synthesizeRuleFn(ctx, result, cred)
	}
	return "rule " + result.RuleName() + " { condition: true }", nil
}
