package cli

import (
	"context"

	"github.com/secmon-lab/malinsight/pkg/cli/config"
	mcpctrl "github.com/secmon-lab/malinsight/pkg/controller/mcp"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/repository/memory"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMCP(version string) *cli.Command {
	var appCfg config.AppConfig
	var vtCfg config.VirusTotal
	var providerCfg config.Providers

	var flags []cli.Flag
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, vtCfg.Flags()...)
	flags = append(flags, vtCfg.CredentialFlags()...)
	flags = append(flags, providerCfg.Flags()...)
	flags = append(flags, providerCfg.CredentialFlags()...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve lookup and analysis tools over MCP (stdio)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			file, err := appCfg.Load()
			if err != nil {
				return err
			}

			uc := usecase.New(memory.New(), vtCfg.Configure(file), providerCfg.Configure(file),
				usecase.WithLookupTimeout(vtCfg.Timeout(file)),
				usecase.WithLLMTimeout(providerCfg.Timeout(file)),
			)

			opts := []mcpctrl.Option{
				mcpctrl.WithVirusTotalAPIKey(vtCfg.APIKey()),
			}
			for _, kind := range types.AllProviderKinds() {
				opts = append(opts, mcpctrl.WithCredential(kind, providerCfg.Credential(kind, file)))
			}

			logging.Default().Info("Starting MCP server on stdio",
				"version", version,
				"virustotal", vtCfg,
				"providers", providerCfg,
			)
			return mcpctrl.NewServer(uc, version, opts...).Run(ctx)
		},
	}
}
