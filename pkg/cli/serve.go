package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/cli/config"
	httpctrl "github.com/secmon-lab/malinsight/pkg/controller/http"
	"github.com/secmon-lab/malinsight/pkg/repository/memory"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const defaultAddr = "127.0.0.1:8080"

func cmdServe(version string) *cli.Command {
	var addr string
	var corsOrigins []string
	var proxyTarget string
	var disableProxy bool
	var appCfg config.AppConfig
	var vtCfg config.VirusTotal
	var providerCfg config.Providers

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address (default " + defaultAddr + ")",
			Sources:     cli.EnvVars("MALINSIGHT_ADDR"),
			Destination: &addr,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origin",
			Usage:       "Allowed CORS origin for /api (repeatable)",
			Sources:     cli.EnvVars("MALINSIGHT_CORS_ORIGINS"),
			Destination: &corsOrigins,
		},
		&cli.StringFlag{
			Name:        "vt-proxy-target",
			Category:    "VirusTotal",
			Usage:       "Upstream of the /vt-api reverse proxy",
			Sources:     cli.EnvVars("MALINSIGHT_VT_PROXY_TARGET"),
			Destination: &proxyTarget,
		},
		&cli.BoolFlag{
			Name:        "no-vt-proxy",
			Category:    "VirusTotal",
			Usage:       "Disable the /vt-api reverse proxy",
			Sources:     cli.EnvVars("MALINSIGHT_NO_VT_PROXY"),
			Destination: &disableProxy,
		},
	}

	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, vtCfg.Flags()...)
	flags = append(flags, providerCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server with the web UI",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			file, err := appCfg.Load()
			if err != nil {
				return err
			}

			uc := usecase.New(memory.New(), vtCfg.Configure(file), providerCfg.Configure(file),
				usecase.WithLookupTimeout(vtCfg.Timeout(file)),
				usecase.WithLLMTimeout(providerCfg.Timeout(file)),
			)

			var httpOpts []httpctrl.Options
			if len(corsOrigins) == 0 {
				corsOrigins = file.Server.CORSOrigins
			}
			if len(corsOrigins) > 0 {
				httpOpts = append(httpOpts, httpctrl.WithCORSOrigins(corsOrigins))
			}
			if disableProxy {
				httpOpts = append(httpOpts, httpctrl.WithVirusTotalProxyTarget(""))
			} else if target := pick(proxyTarget, file.Server.ProxyTarget); target != "" {
				httpOpts = append(httpOpts, httpctrl.WithVirusTotalProxyTarget(target))
			}

			httpHandler, err := httpctrl.New(uc, httpOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}

			addr = pick(addr, file.Server.Addr, defaultAddr)
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server",
					"addr", addr,
					"version", version,
					"virustotal", vtCfg,
					"providers", providerCfg,
					"config", appCfg,
				)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logging.Default().Info("Context canceled, shutting down")
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
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
