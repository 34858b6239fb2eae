package config_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/cli/config"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
)

func TestProviders_Configure(t *testing.T) {
	cfg := config.NewProvidersForTest("", "", "", "")
	registry := cfg.Configure(&config.File{})

	gt.Array(t, registry.Kinds()).Equal(types.AllProviderKinds())
	for _, kind := range types.AllProviderKinds() {
		p, err := registry.Get(kind)
		gt.NoError(t, err).Required()
		gt.Value(t, p.Kind()).Equal(kind)
	}
}

func TestProviders_Credential(t *testing.T) {
	file := &config.File{OpenAI: config.ModelSection{Endpoint: "http://file.example/v1"}}

	t.Run("flag keys per provider", func(t *testing.T) {
		cfg := config.NewProvidersForTest("g-key", "d-key", "o-key", "")

		gt.Value(t, cfg.Credential(types.ProviderGemini, file).APIKey).Equal("g-key")
		gt.Value(t, cfg.Credential(types.ProviderDashScope, file).APIKey).Equal("d-key")

		cred := cfg.Credential(types.ProviderOpenAI, file)
		gt.Value(t, cred.APIKey).Equal("o-key")
		gt.Value(t, cred.BaseURL).Equal("http://file.example/v1")
	})

	t.Run("flag base URL wins over file", func(t *testing.T) {
		cfg := config.NewProvidersForTest("", "", "o-key", "http://flag.example/v1")
		gt.Value(t, cfg.Credential(types.ProviderOpenAI, file).BaseURL).Equal("http://flag.example/v1")
	})

	t.Run("vertex has no key", func(t *testing.T) {
		cfg := config.NewProvidersForTest("g-key", "d-key", "o-key", "")
		gt.Value(t, cfg.Credential(types.ProviderVertex, file).APIKey).Equal("")
	})
}

func TestProviders_Timeout(t *testing.T) {
	cfg := config.NewProvidersForTest("", "", "", "")
	gt.Value(t, cfg.Timeout(&config.File{LLM: config.LLMSection{Timeout: config.Duration(time.Minute)}})).Equal(time.Minute)
	gt.Value(t, cfg.Timeout(&config.File{})).Equal(time.Duration(0))
}

func TestVertex_Configure(t *testing.T) {
	t.Run("flag wins over file", func(t *testing.T) {
		p := config.NewVertexForTest("flag-project", "", "").Configure(&config.File{
			Vertex: config.VertexSection{Project: "file-project"},
		})
		gt.Value(t, p.Project()).Equal("flag-project")
	})

	t.Run("file fills missing flag", func(t *testing.T) {
		p := config.NewVertexForTest("", "", "").Configure(&config.File{
			Vertex: config.VertexSection{Project: "file-project"},
		})
		gt.Value(t, p.Project()).Equal("file-project")
	})

	t.Run("no project still yields provider", func(t *testing.T) {
		p := config.NewVertexForTest("", "", "").Configure(&config.File{})
		gt.Value(t, p.Project()).Equal("")
		gt.Value(t, p.Kind()).Equal(types.ProviderVertex)
	})
}

func TestVirusTotal(t *testing.T) {
	cfg := config.NewVirusTotalForTest("vt-key", "", 0)
	gt.Value(t, cfg.APIKey()).Equal("vt-key")
	gt.Value(t, cfg.Timeout(&config.File{VirusTotal: config.VirusTotalSection{Timeout: config.Duration(5 * time.Second)}})).Equal(5 * time.Second)

	cfg = config.NewVirusTotalForTest("", "", 3*time.Second)
	gt.Value(t, cfg.Timeout(&config.File{VirusTotal: config.VirusTotalSection{Timeout: config.Duration(5 * time.Second)}})).Equal(3 * time.Second)
	gt.Value(t, cfg.Configure(&config.File{})).NotNil()
}
