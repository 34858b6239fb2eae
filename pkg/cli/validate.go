package cli

import (
	"context"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/cli/config"
	"github.com/secmon-lab/malinsight/pkg/service/llm/openai"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var appCfg config.AppConfig

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the configuration file",
		Flags:   appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			file, err := appCfg.Load()
			if err != nil {
				return goerr.Wrap(err, "configuration validation failed")
			}

			endpoints := map[string]string{
				"server.proxy_target": file.Server.ProxyTarget,
				"virustotal.base_url": file.VirusTotal.BaseURL,
				"gemini.endpoint":     file.Gemini.Endpoint,
				"dashscope.endpoint":  file.DashScope.Endpoint,
				"openai.endpoint":     openai.NormalizeBaseURL(file.OpenAI.Endpoint),
			}
			for key, value := range endpoints {
				if err := validateEndpoint(value); err != nil {
					return goerr.Wrap(config.ErrInvalidConfig, "endpoint must be an absolute URL",
						goerr.V(config.ConfigKeyKey, key), goerr.V(config.MessageKey, value))
				}
			}
			for _, origin := range file.Server.CORSOrigins {
				if err := validateEndpoint(origin); err != nil {
					return goerr.Wrap(config.ErrInvalidConfig, "CORS origin must be an absolute URL",
						goerr.V(config.ConfigKeyKey, "server.cors_origins"), goerr.V(config.MessageKey, origin))
				}
			}

			logger.Info("Configuration validation passed", "config", appCfg)
			return nil
		},
	}
}

// validateEndpoint accepts an empty value or an absolute http(s) URL
func validateEndpoint(value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return goerr.New("not an absolute http(s) URL")
	}
	return nil
}
