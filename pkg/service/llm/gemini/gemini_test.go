package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm/gemini"
)

const analysisJSON = `{"malware_family_guess":"Emotet","summary":"Banking trojan","key_behaviors":{"file_system":["drops payload.exe"],"registry":[],"network":[]},"mitre_attack_techniques":[],"indicators_of_compromise":{"files":["payload.exe"],"domains":["evil-domain.com"],"ips":[],"registry_keys":[]}}`

func textResponse(text string) []byte {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return data
}

type capture struct {
	path   string
	apiKey string
	body   map[string]any
}

func newServer(t *testing.T, status int, respBody []byte, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c != nil {
			c.path = r.URL.Path
			c.apiKey = r.Header.Get("x-goog-api-key")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &c.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(respBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_Extract(t *testing.T) {
	t.Run("empty report is still sent upstream", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(textResponse(analysisJSON))
		}))
		t.Cleanup(srv.Close)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		result, err := p.Extract(context.Background(), "", model.Credential{APIKey: "g-key"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.MalwareFamilyGuess).Equal("Emotet")
		gt.Value(t, calls.Load()).Equal(int32(1))
	})

	t.Run("parses JSON text response", func(t *testing.T) {
		var c capture
		srv := newServer(t, http.StatusOK, textResponse(analysisJSON), &c)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		result, err := p.Extract(context.Background(), "report text", model.Credential{APIKey: "g-key"})
		gt.NoError(t, err).Required()

		gt.Value(t, result.MalwareFamilyGuess).Equal("Emotet")
		gt.Value(t, result.IndicatorsOfCompromise.Domains).Equal([]string{"evil-domain.com"})
		gt.Value(t, c.apiKey).Equal("g-key")
		gt.B(t, strings.HasSuffix(c.path, "/models/"+gemini.DefaultModel+":generateContent")).True()

		genCfg, ok := c.body["generationConfig"].(map[string]any)
		gt.B(t, ok).True()
		gt.Value(t, genCfg["responseMimeType"]).Equal("application/json")
		gt.Value(t, genCfg["responseSchema"]).NotNil()
	})

	t.Run("credential model overrides default", func(t *testing.T) {
		var c capture
		srv := newServer(t, http.StatusOK, textResponse(analysisJSON), &c)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k", Model: "gemini-2.5-pro"})
		gt.NoError(t, err).Required()
		gt.B(t, strings.HasSuffix(c.path, "/models/gemini-2.5-pro:generateContent")).True()
	})

	t.Run("missing API key fails before any request", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{})
		gt.B(t, errors.Is(err, model.ErrMissingCredential)).True()
		gt.Value(t, calls.Load()).Equal(int32(0))
	})

	t.Run("malformed JSON text is a schema violation", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, textResponse(`{"summary": "partial"}`), nil)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		result, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.Value(t, result).Nil()
		gt.B(t, errors.Is(err, model.ErrSchemaViolation)).True()
	})

	t.Run("API error maps to upstream", func(t *testing.T) {
		body := []byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`)
		srv := newServer(t, http.StatusBadRequest, body, nil)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "bad"})
		gt.B(t, errors.Is(err, model.ErrUpstream)).True()
		gt.String(t, err.Error()).Contains("API key not valid")
		gt.String(t, err.Error()).Contains("status 400")
	})
}

func TestProvider_SynthesizeRule(t *testing.T) {
	result, err := model.ParseAnalysisResult([]byte(analysisJSON))
	gt.NoError(t, err).Required()

	t.Run("strips fence from rule text", func(t *testing.T) {
		var c capture
		srv := newServer(t, http.StatusOK, textResponse("```yara\nrule Suspicious_Emotet { condition: true }\n```"), &c)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		rule, err := p.SynthesizeRule(context.Background(), result, model.Credential{APIKey: "k"})
		gt.NoError(t, err).Required()
		gt.Value(t, rule).Equal("rule Suspicious_Emotet { condition: true }")

		raw, err := json.Marshal(c.body)
		gt.NoError(t, err).Required()
		gt.String(t, string(raw)).Contains("Suspicious_Emotet")
		gt.String(t, string(raw)).Contains(gemini.Author)
	})

	t.Run("empty text is an empty completion", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, []byte(`{"candidates":[]}`), nil)

		p := gemini.New(gemini.WithBaseURL(srv.URL))
		_, err := p.SynthesizeRule(context.Background(), result, model.Credential{APIKey: "k"})
		gt.B(t, errors.Is(err, model.ErrEmptyCompletion)).True()
	})
}

func TestProvider_Kind(t *testing.T) {
	gt.Value(t, gemini.New().Kind()).Equal(types.ProviderGemini)
}
