package cli

import (
	"context"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/cli/config"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/repository/memory"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdAnalyze() *cli.Command {
	var (
		samplePath string
		hash       string
		reportPath string
		demo       bool
		provider   string
		format     string
		outPath    string
		noRule     bool
	)
	var appCfg config.AppConfig
	var vtCfg config.VirusTotal
	var providerCfg config.Providers

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "file",
			Aliases:     []string{"f"},
			Category:    "Input",
			Usage:       "Sample file to hash and look up on VirusTotal",
			Destination: &samplePath,
		},
		&cli.StringFlag{
			Name:        "hash",
			Category:    "Input",
			Usage:       "SHA-256, SHA-1 or MD5 to look up on VirusTotal",
			Destination: &hash,
		},
		&cli.StringFlag{
			Name:        "report",
			Aliases:     []string{"r"},
			Category:    "Input",
			Usage:       "Behavior report text file to analyze directly (- for stdin)",
			Destination: &reportPath,
		},
		&cli.BoolFlag{
			Name:        "demo",
			Category:    "Input",
			Usage:       "Analyze the built-in sample behavior report",
			Destination: &demo,
		},
		&cli.StringFlag{
			Name:        "provider",
			Aliases:     []string{"p"},
			Usage:       "AI provider [gemini|dashscope|openai|vertex]",
			Value:       types.ProviderGemini.String(),
			Sources:     cli.EnvVars("MALINSIGHT_PROVIDER"),
			Destination: &provider,
		},
		&cli.StringFlag{
			Name:        "format",
			Usage:       "Output format [text|json|yaml]",
			Value:       formatText,
			Destination: &format,
		},
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "Output file (default stdout)",
			Destination: &outPath,
		},
		&cli.BoolFlag{
			Name:        "no-rule",
			Usage:       "Skip YARA rule generation",
			Destination: &noRule,
		},
	}

	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, vtCfg.Flags()...)
	flags = append(flags, vtCfg.CredentialFlags()...)
	flags = append(flags, providerCfg.Flags()...)
	flags = append(flags, providerCfg.CredentialFlags()...)

	return &cli.Command{
		Name:    "analyze",
		Aliases: []string{"a"},
		Usage:   "Analyze a sample, hash or report and print the result and YARA rule",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			inputs := 0
			for _, set := range []bool{samplePath != "", hash != "", reportPath != "", demo} {
				if set {
					inputs++
				}
			}
			if inputs != 1 {
				return goerr.Wrap(model.ErrInvalidInput, "exactly one of --file, --hash, --report or --demo is required")
			}
			if format != formatText && format != formatJSON && format != formatYAML {
				return goerr.Wrap(model.ErrInvalidInput, "unsupported output format", goerr.V("format", format))
			}

			kind, err := types.ParseProviderKind(strings.ToLower(provider))
			if err != nil {
				return goerr.Wrap(model.ErrUnknownProvider, "unsupported provider", goerr.V(model.ProviderKey, provider))
			}

			file, err := appCfg.Load()
			if err != nil {
				return err
			}

			uc := usecase.New(memory.New(), vtCfg.Configure(file), providerCfg.Configure(file),
				usecase.WithLookupTimeout(vtCfg.Timeout(file)),
				usecase.WithLLMTimeout(providerCfg.Timeout(file)),
			)

			out := &analyzeOutput{Provider: kind}
			report, err := loadReport(ctx, uc, out, samplePath, hash, reportPath, demo, vtCfg.APIKey())
			if err != nil {
				return err
			}

			cred := providerCfg.Credential(kind, file)
			logging.Default().Info("Analyzing report", "source", out.Source, "provider", kind, "credential", cred)

			var analyzeErr error
			if noRule {
				out.Result, analyzeErr = uc.Analysis.Extract(ctx, kind, report, cred)
			} else {
				var analysis *usecase.Analysis
				analysis, analyzeErr = uc.Analysis.Analyze(ctx, kind, report, cred)
				if analysis != nil {
					out.Result = analysis.Result
					out.Rule = analysis.Rule
				}
			}
			if out.Result == nil {
				return analyzeErr
			}

			w, closer, err := openOutput(ctx, outPath)
			if err != nil {
				return err
			}
			defer closer()

			colored := outPath == "" && !color.NoColor
			if err := writeAnalysis(w, format, colored, out); err != nil {
				return err
			}
			// A failed rule still leaves the extracted result printed
			return analyzeErr
		},
	}
}

// loadReport resolves the report text from the selected input and records
// where it came from in out
func loadReport(ctx context.Context, uc *usecase.UseCases, out *analyzeOutput, samplePath, hash, reportPath string, demo bool, vtKey string) (string, error) {
	switch {
	case demo:
		out.Source = "demo"
		return usecase.SampleReport(), nil

	case reportPath != "":
		r, closer, err := openInput(ctx, reportPath)
		if err != nil {
			return "", err
		}
		defer closer()

		data, err := io.ReadAll(r)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read report", goerr.V("path", reportPath))
		}
		out.Source = reportPath
		return string(data), nil

	case samplePath != "":
		r, closer, err := openInput(ctx, samplePath)
		if err != nil {
			return "", err
		}
		defer closer()

		found, err := uc.Lookup.LookupSample(ctx, r, vtKey)
		if err != nil {
			return "", err
		}
		out.Source = samplePath
		out.Identifier = found.Identifier
		return found.Report, nil

	default:
		found, err := uc.Lookup.LookupHash(ctx, hash, vtKey)
		if err != nil {
			return "", err
		}
		out.Source = "virustotal"
		out.Identifier = found.Identifier
		return found.Report, nil
	}
}
