package cli_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/cli"
)

func TestRun_ValidateCommand_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "malinsight.toml")
	content := `
[server]
addr = "127.0.0.1:8080"
cors_origins = ["http://localhost:5173"]

[openai]
endpoint = "http://localhost:11434/v1/chat/completions"
model = "llama3"

[llm]
timeout = "90s"
`
	gt.NoError(t, os.WriteFile(configPath, []byte(content), 0o600)).Required()

	err := cli.Run(context.Background(), []string{"malinsight", "validate", "--config", configPath}, "test")
	gt.NoError(t, err)
}

func TestRun_ValidateCommand_InvalidConfig(t *testing.T) {
	tests := map[string]string{
		"relative endpoint": `
[dashscope]
endpoint = "dashscope.example/api"
`,
		"credential in file": `
[gemini]
api_key = "AIza-secret"
`,
		"bad CORS origin": `
[server]
cors_origins = ["*"]
`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "malinsight.toml")
			gt.NoError(t, os.WriteFile(configPath, []byte(content), 0o600)).Required()

			err := cli.Run(context.Background(), []string{"malinsight", "validate", "--config", configPath}, "test")
			gt.Value(t, err).NotNil()
		})
	}
}

func TestRun_ValidateCommand_MissingConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nonexistent.toml")

	err := cli.Run(context.Background(), []string{"malinsight", "validate", "--config", configPath}, "test")
	gt.Value(t, err).NotNil()
}
