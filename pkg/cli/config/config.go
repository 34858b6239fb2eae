package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// File is the optional TOML configuration. It carries endpoints, models and
// timeouts only; credentials are accepted from flags and environment
// variables and are rejected here.
type File struct {
	Server     ServerSection     `toml:"server"`
	VirusTotal VirusTotalSection `toml:"virustotal"`
	Gemini     ModelSection      `toml:"gemini"`
	DashScope  ModelSection      `toml:"dashscope"`
	OpenAI     ModelSection      `toml:"openai"`
	Vertex     VertexSection     `toml:"vertex"`
	LLM        LLMSection        `toml:"llm"`
}

// ServerSection configures the HTTP front door
type ServerSection struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
	ProxyTarget string   `toml:"proxy_target"`
}

// VirusTotalSection configures the reputation lookup
type VirusTotalSection struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// ModelSection configures one API-key provider
type ModelSection struct {
	Model    string `toml:"model"`
	Endpoint string `toml:"endpoint"`
}

// VertexSection configures the Vertex AI provider
type VertexSection struct {
	Project  string `toml:"project"`
	Location string `toml:"location"`
	Model    string `toml:"model"`
}

// LLMSection holds settings shared by all providers
type LLMSection struct {
	Timeout Duration `toml:"timeout"`
}

// credentialKeys are key names that must never appear in the file
var credentialKeys = []string{"api_key", "apikey", "vt_api_key", "token", "secret", "password", "dsn"}

func isCredentialKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range credentialKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// ParseFile decodes TOML data. Unknown keys are an error so that a
// misplaced credential is reported instead of silently ignored.
func ParseFile(data []byte) (*File, error) {
	var file File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			for _, e := range strict.Errors {
				key := strings.Join(e.Key(), ".")
				if isCredentialKey(key) {
					return nil, goerr.Wrap(ErrCredentialInConfig, "remove the key and pass it by flag or environment variable",
						goerr.V(ConfigKeyKey, key))
				}
			}
			return nil, goerr.Wrap(ErrInvalidConfig, "unknown configuration key",
				goerr.V(MessageKey, strict.String()))
		}
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config",
			goerr.V(MessageKey, err.Error()))
	}
	return &file, nil
}

// LoadFile reads and parses a TOML configuration file
func LoadFile(path string) (*File, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	file, err := ParseFile(data)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.V(ConfigPathKey, path))
	}
	return file, nil
}

// AppConfig holds the --config flag
type AppConfig struct {
	path string
}

// Flags returns CLI flags for the configuration file
func (x *AppConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML configuration file (endpoints, models, timeouts)",
			Sources:     cli.EnvVars("MALINSIGHT_CONFIG"),
			Destination: &x.path,
		},
	}
}

// LogValue reports the configured path
func (x AppConfig) LogValue() slog.Value {
	return slog.GroupValue(slog.String("path", x.path))
}

// Load returns the parsed file, or an empty File when no path is set
func (x *AppConfig) Load() (*File, error) {
	if x.path == "" {
		return &File{}, nil
	}
	return LoadFile(x.path)
}

// pick returns the first non-empty value
func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Duration is a time.Duration written as a string such as "30s" in TOML
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid duration", goerr.V(MessageKey, string(text)))
	}
	if v < 0 {
		return goerr.Wrap(ErrInvalidConfig, "duration must not be negative", goerr.V(MessageKey, string(text)))
	}
	*d = Duration(v)
	return nil
}

// pickDuration returns flag when set, otherwise the file value
func pickDuration(flag time.Duration, file Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return time.Duration(file)
}
