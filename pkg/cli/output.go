package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
	"github.com/secmon-lab/malinsight/pkg/utils/safe"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// openOutput returns stdout for an empty path, otherwise the created file
func openOutput(ctx context.Context, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	// #nosec G304 - path is provided by CLI argument
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open output file", goerr.V("path", path))
	}
	return f, func() { safe.Close(ctx, f) }, nil
}

// openInput returns stdin for "-", otherwise the opened file
func openInput(ctx context.Context, path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	// #nosec G304 - path is provided by CLI argument
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to open input file", goerr.V("path", path))
	}
	return f, func() { safe.Close(ctx, f) }, nil
}

type analyzeOutput struct {
	Source     string                `json:"source" yaml:"source"`
	Identifier string                `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Provider   types.ProviderKind    `json:"provider" yaml:"provider"`
	Result     *model.AnalysisResult `json:"result" yaml:"result"`
	Rule       string                `json:"rule,omitempty" yaml:"rule,omitempty"`
}

func writeAnalysis(w io.Writer, format string, colored bool, out *analyzeOutput) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return goerr.Wrap(err, "failed to encode JSON output")
		}
		return nil

	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return goerr.Wrap(err, "failed to encode YAML output")
		}
		if err := enc.Close(); err != nil {
			return goerr.Wrap(err, "failed to flush YAML output")
		}
		return nil

	case formatText, "":
		writeAnalysisText(w, colored, out)
		return nil

	default:
		return goerr.New("unsupported output format", goerr.V("format", format))
	}
}

func writeAnalysisText(w io.Writer, colored bool, out *analyzeOutput) {
	heading := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgYellow)
	rule := color.New(color.FgGreen)
	if !colored {
		heading.DisableColor()
		label.DisableColor()
		rule.DisableColor()
	}

	section := func(title string) {
		_, _ = heading.Fprintf(w, "\n== %s ==\n", title)
	}
	list := func(name string, items []string) {
		_, _ = label.Fprintf(w, "%s:\n", name)
		if len(items) == 0 {
			_, _ = fmt.Fprintln(w, "  (none)")
			return
		}
		for _, item := range items {
			_, _ = fmt.Fprintf(w, "  - %s\n", item)
		}
	}

	_, _ = label.Fprint(w, "Source: ")
	_, _ = fmt.Fprintln(w, out.Source)
	if out.Identifier != "" {
		_, _ = label.Fprint(w, "SHA-256: ")
		_, _ = fmt.Fprintln(w, out.Identifier)
	}
	_, _ = label.Fprint(w, "Provider: ")
	_, _ = fmt.Fprintln(w, out.Provider.DisplayName())

	r := out.Result
	section("Malware family")
	_, _ = fmt.Fprintln(w, r.MalwareFamilyGuess)

	section("Summary")
	_, _ = fmt.Fprintln(w, r.Summary)

	section("Key behaviors")
	list("File system", r.KeyBehaviors.FileSystem)
	list("Registry", r.KeyBehaviors.Registry)
	list("Network", r.KeyBehaviors.Network)

	section("MITRE ATT&CK")
	if len(r.MitreAttackTechniques) == 0 {
		_, _ = fmt.Fprintln(w, "  (none)")
	}
	for _, tech := range r.MitreAttackTechniques {
		_, _ = label.Fprintf(w, "  %s", tech.TechniqueID)
		_, _ = fmt.Fprintf(w, " %s\n", tech.TechniqueName)
		if tech.Description != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", tech.Description)
		}
	}

	section("Indicators of compromise")
	list("Files", r.IndicatorsOfCompromise.Files)
	list("Domains", r.IndicatorsOfCompromise.Domains)
	list("IPs", r.IndicatorsOfCompromise.IPs)
	list("Registry keys", r.IndicatorsOfCompromise.RegistryKeys)

	if out.Rule != "" {
		section("YARA rule")
		_, _ = rule.Fprintln(w, strings.TrimRight(out.Rule, "\n"))
	}
}
