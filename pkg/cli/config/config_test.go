package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/cli/config"
)

func TestParseFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		check   func(t *testing.T, f *config.File)
	}{
		{
			name: "full configuration",
			content: `
[server]
addr = "127.0.0.1:9000"
cors_origins = ["http://localhost:5173"]
proxy_target = "https://vt.example.com"

[virustotal]
base_url = "https://vt.example.com/api/v3"
timeout = "15s"

[gemini]
model = "gemini-2.5-pro"

[dashscope]
model = "qwen-max"
endpoint = "https://dashscope-intl.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

[openai]
model = "llama3"
endpoint = "http://localhost:11434/v1"

[vertex]
project = "my-project"
location = "asia-northeast1"

[llm]
timeout = "2m"
`,
			check: func(t *testing.T, f *config.File) {
				gt.Value(t, f.Server.Addr).Equal("127.0.0.1:9000")
				gt.A(t, f.Server.CORSOrigins).Length(1)
				gt.Value(t, f.VirusTotal.Timeout).Equal(config.Duration(15 * time.Second))
				gt.Value(t, f.Gemini.Model).Equal("gemini-2.5-pro")
				gt.Value(t, f.DashScope.Model).Equal("qwen-max")
				gt.Value(t, f.OpenAI.Endpoint).Equal("http://localhost:11434/v1")
				gt.Value(t, f.Vertex.Project).Equal("my-project")
				gt.Value(t, f.LLM.Timeout).Equal(config.Duration(2 * time.Minute))
			},
		},
		{
			name:    "empty file",
			content: "",
			check: func(t *testing.T, f *config.File) {
				gt.Value(t, f.Server.Addr).Equal("")
				gt.Value(t, f.LLM.Timeout).Equal(config.Duration(0))
			},
		},
		{
			name: "API key is rejected",
			content: `
[gemini]
model = "gemini-2.5-pro"
api_key = "AIza-secret"
`,
			wantErr: config.ErrCredentialInConfig,
		},
		{
			name: "VirusTotal key is rejected",
			content: `
[virustotal]
vt_api_key = "secret"
`,
			wantErr: config.ErrCredentialInConfig,
		},
		{
			name: "unknown key",
			content: `
[server]
port = 8080
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "invalid duration",
			content: `
[llm]
timeout = "soon"
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "broken TOML",
			content: `[server`,
			wantErr: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := config.ParseFile([]byte(tt.content))
			if tt.wantErr != nil {
				gt.Error(t, err)
				gt.Bool(t, errors.Is(err, tt.wantErr)).True()
				return
			}
			gt.NoError(t, err).Required()
			tt.check(t, f)
		})
	}
}

func TestParseFile_CredentialKeyIsReported(t *testing.T) {
	_, err := config.ParseFile([]byte("[openai]\napi_key = \"sk-secret\"\n"))
	gt.Error(t, err)

	ge := goerr.Unwrap(err)
	gt.Value(t, ge).NotNil().Required()
	gt.Value(t, ge.Values()[config.ConfigKeyKey]).Equal("openai.api_key")
	gt.S(t, err.Error()).NotContains("sk-secret")
}

func TestLoadFile(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "malinsight.toml")
		gt.NoError(t, os.WriteFile(path, []byte("[vertex]\nproject = \"p\"\n"), 0o600)).Required()

		f, err := config.LoadFile(path)
		gt.NoError(t, err).Required()
		gt.Value(t, f.Vertex.Project).Equal("p")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, config.ErrConfigNotFound)).True()
	})
}

func TestAppConfig_LoadWithoutPath(t *testing.T) {
	var cfg config.AppConfig
	f, err := cfg.Load()
	gt.NoError(t, err)
	gt.Value(t, f).NotNil()
}
