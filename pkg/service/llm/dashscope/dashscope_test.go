package dashscope_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/service/llm"
	"github.com/secmon-lab/malinsight/pkg/service/llm/dashscope"
)

const analysisJSON = `{"malware_family_guess":"Agent Tesla","summary":"Credential stealer","key_behaviors":{"file_system":[],"registry":["HKCU\\Software\\Run"],"network":["smtp exfil"]},"mitre_attack_techniques":[{"technique_id":"T1555","technique_name":"Credentials from Password Stores","description":"Reads browser stores"}],"indicators_of_compromise":{"files":["stealer.exe"],"domains":["exfil-host.net"],"ips":[],"registry_keys":[]}}`

type capture struct {
	auth string
	body map[string]any
}

func newServer(t *testing.T, status int, respBody any, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c != nil {
			c.auth = r.Header.Get("Authorization")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &c.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch v := respBody.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		default:
			_ = json.NewEncoder(w).Encode(v)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func toolCallResponse(args string) map[string]any {
	return map[string]any{
		"output": map[string]any{
			"tool_calls": []any{
				map[string]any{
					"type": "function",
					"function": map[string]any{
						"name":      llm.ExtractToolName,
						"arguments": args,
					},
				},
			},
		},
		"request_id": "req-1",
	}
}

func TestProvider_Extract(t *testing.T) {
	t.Run("empty report is still sent upstream", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(toolCallResponse(analysisJSON))
		}))
		t.Cleanup(srv.Close)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		result, err := p.Extract(context.Background(), "", model.Credential{APIKey: "ds-key"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.MalwareFamilyGuess).Equal("Agent Tesla")
		gt.Value(t, calls.Load()).Equal(int32(1))
	})

	t.Run("parses tool call arguments", func(t *testing.T) {
		var c capture
		srv := newServer(t, http.StatusOK, toolCallResponse(analysisJSON), &c)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		result, err := p.Extract(context.Background(), "report text", model.Credential{APIKey: "ds-key"})
		gt.NoError(t, err).Required()

		gt.Value(t, result.MalwareFamilyGuess).Equal("Agent Tesla")
		gt.Value(t, len(result.MitreAttackTechniques)).Equal(1)
		gt.Value(t, result.MitreAttackTechniques[0].TechniqueID).Equal("T1555")
		gt.Value(t, c.auth).Equal("Bearer ds-key")
		gt.Value(t, c.body["model"]).Equal(dashscope.DefaultModel)

		tools := c.body["tools"].([]any)
		gt.Value(t, len(tools)).Equal(1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		gt.Value(t, fn["name"]).Equal(llm.ExtractToolName)
		gt.Value(t, fn["parameters"].(map[string]any)["type"]).Equal("object")

		msgs := c.body["input"].(map[string]any)["messages"].([]any)
		gt.Value(t, len(msgs)).Equal(2)
		gt.Value(t, msgs[0].(map[string]any)["role"]).Equal("system")
		gt.String(t, msgs[1].(map[string]any)["content"].(string)).Contains("report text")
	})

	t.Run("accepts message result format", func(t *testing.T) {
		resp := map[string]any{
			"output": map[string]any{
				"choices": []any{
					map[string]any{
						"message": map[string]any{
							"role": "assistant",
							"tool_calls": []any{
								map[string]any{
									"type":     "function",
									"function": map[string]any{"name": llm.ExtractToolName, "arguments": analysisJSON},
								},
							},
						},
					},
				},
			},
		}
		srv := newServer(t, http.StatusOK, resp, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		result, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.IndicatorsOfCompromise.Domains).Equal([]string{"exfil-host.net"})
	})

	t.Run("missing tool call is a schema violation", func(t *testing.T) {
		resp := map[string]any{"output": map[string]any{"text": "I think it is Emotet."}}
		srv := newServer(t, http.StatusOK, resp, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		result, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.Value(t, result).Nil()
		gt.B(t, errors.Is(err, model.ErrSchemaViolation)).True()
	})

	t.Run("analysis JSON in text without tool call is a schema violation", func(t *testing.T) {
		resp := map[string]any{"output": map[string]any{"text": analysisJSON}}
		srv := newServer(t, http.StatusOK, resp, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		result, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.Value(t, result).Nil()
		gt.B(t, errors.Is(err, model.ErrSchemaViolation)).True()
	})

	t.Run("incomplete arguments are a schema violation", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, toolCallResponse(`{"malware_family_guess":"x"}`), nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.B(t, errors.Is(err, model.ErrSchemaViolation)).True()
	})

	t.Run("missing API key fails before any request", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{})
		gt.B(t, errors.Is(err, model.ErrMissingCredential)).True()
		gt.Value(t, calls.Load()).Equal(int32(0))
	})

	t.Run("HTTP error carries status and message", func(t *testing.T) {
		body := map[string]any{"code": "InvalidApiKey", "message": "Invalid API-key provided.", "request_id": "r"}
		srv := newServer(t, http.StatusUnauthorized, body, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "bad"})
		gt.B(t, errors.Is(err, model.ErrUpstream)).True()
		gt.String(t, err.Error()).Contains("status 401")
		gt.String(t, err.Error()).Contains("Invalid API-key provided.")
		gt.String(t, err.Error()).Contains("InvalidApiKey")
	})

	t.Run("error code in success body is upstream", func(t *testing.T) {
		body := map[string]any{"code": "DataInspectionFailed", "message": "Input data may contain inappropriate content."}
		srv := newServer(t, http.StatusOK, body, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.B(t, errors.Is(err, model.ErrUpstream)).True()
		gt.String(t, err.Error()).Contains("DataInspectionFailed")
	})

	t.Run("non JSON body is a schema violation", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, "<html>gateway</html>", nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.Extract(context.Background(), "report", model.Credential{APIKey: "k"})
		gt.B(t, errors.Is(err, model.ErrSchemaViolation)).True()
	})
}

func TestProvider_SynthesizeRule(t *testing.T) {
	result, err := model.ParseAnalysisResult([]byte(analysisJSON))
	gt.NoError(t, err).Required()

	t.Run("returns cleaned rule text", func(t *testing.T) {
		var c capture
		resp := map[string]any{"output": map[string]any{"text": "```yara\nrule Suspicious_Agent_Tesla { condition: true }\n```"}}
		srv := newServer(t, http.StatusOK, resp, &c)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL), dashscope.WithModel("qwen-max"))
		rule, err := p.SynthesizeRule(context.Background(), result, model.Credential{APIKey: "k"})
		gt.NoError(t, err).Required()
		gt.Value(t, rule).Equal("rule Suspicious_Agent_Tesla { condition: true }")
		gt.Value(t, c.body["model"]).Equal("qwen-max")
		_, hasTools := c.body["tools"]
		gt.B(t, hasTools).False()

		msgs := c.body["input"].(map[string]any)["messages"].([]any)
		gt.Value(t, msgs[0].(map[string]any)["content"]).Equal(llm.RuleSystemPrompt)
		gt.String(t, msgs[1].(map[string]any)["content"].(string)).Contains(dashscope.Author)
	})

	t.Run("empty text is an empty completion", func(t *testing.T) {
		srv := newServer(t, http.StatusOK, map[string]any{"output": map[string]any{"text": ""}}, nil)

		p := dashscope.New(dashscope.WithEndpoint(srv.URL))
		_, err := p.SynthesizeRule(context.Background(), result, model.Credential{APIKey: "k"})
		gt.B(t, errors.Is(err, model.ErrEmptyCompletion)).True()
	})
}

func TestProvider_Kind(t *testing.T) {
	gt.Value(t, dashscope.New().Kind()).Equal(types.ProviderDashScope)
}
