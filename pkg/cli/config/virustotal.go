package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/malinsight/pkg/service/virustotal"
	"github.com/urfave/cli/v3"
)

// VirusTotal holds configuration for the reputation lookup client
type VirusTotal struct {
	apiKey  string
	baseURL string
	timeout time.Duration
}

// Flags returns CLI flags for the VirusTotal endpoint
func (x *VirusTotal) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vt-base-url",
			Category:    "VirusTotal",
			Usage:       "VirusTotal API base URL (default " + virustotal.DefaultBaseURL + ")",
			Sources:     cli.EnvVars("MALINSIGHT_VT_BASE_URL"),
			Destination: &x.baseURL,
		},
		&cli.DurationFlag{
			Name:        "vt-timeout",
			Category:    "VirusTotal",
			Usage:       "Timeout for one VirusTotal lookup (0 for none)",
			Sources:     cli.EnvVars("MALINSIGHT_VT_TIMEOUT"),
			Destination: &x.timeout,
		},
	}
}

// CredentialFlags returns the API key flag. Only commands that look up
// samples themselves take it; the HTTP API receives keys per request.
func (x *VirusTotal) CredentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vt-api-key",
			Category:    "VirusTotal",
			Usage:       "VirusTotal API key",
			Sources:     cli.EnvVars("MALINSIGHT_VT_API_KEY"),
			Destination: &x.apiKey,
		},
	}
}

// LogValue never includes the API key
func (x VirusTotal) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_api_key", x.apiKey != ""),
		slog.String("base_url", x.baseURL),
		slog.Duration("timeout", x.timeout),
	)
}

// APIKey returns the key given by flag or environment
func (x *VirusTotal) APIKey() string {
	return x.apiKey
}

// Timeout returns the lookup timeout, preferring the flag over the file
func (x *VirusTotal) Timeout(file *File) time.Duration {
	return pickDuration(x.timeout, file.VirusTotal.Timeout)
}

// Configure creates the lookup client
func (x *VirusTotal) Configure(file *File) *virustotal.Client {
	var opts []virustotal.Option
	if base := pick(x.baseURL, file.VirusTotal.BaseURL); base != "" {
		opts = append(opts, virustotal.WithBaseURL(base))
	}
	return virustotal.New(opts...)
}
