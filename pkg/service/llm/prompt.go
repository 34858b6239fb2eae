package llm

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
)

//go:embed prompt/extract.md
var extractPromptTmpl string

//go:embed prompt/rule.md
var rulePromptTmpl string

var (
	extractPrompt = template.Must(template.New("extract").Parse(extractPromptTmpl))
	rulePrompt    = template.Must(template.New("rule").Parse(rulePromptTmpl))
)

const (
	// ExtractToolName is the function name used by tool-calling providers
	ExtractToolName = "extract_malware_info"
	// ExtractToolDescription describes the extraction function to the model
	ExtractToolDescription = "Extract structured information from a malware report."

	// ToolSystemPrompt frames tool-calling extraction requests
	ToolSystemPrompt = "You are a helpful assistant that uses tools to extract information."
	// RuleSystemPrompt frames rule synthesis requests
	RuleSystemPrompt = "You are a helpful assistant that only generates YARA code."

	// RuleTemperature is the sampling temperature for rule synthesis
	RuleTemperature = 0.2
)

// BuildExtractPrompt renders the extraction prompt around report. An empty
// report is rendered as is.
func BuildExtractPrompt(report string) (string, error) {
	var buf bytes.Buffer
	if err := extractPrompt.Execute(&buf, struct{ Report string }{Report: report}); err != nil {
		return "", goerr.Wrap(err, "failed to render extract prompt")
	}
	return buf.String(), nil
}

// BuildRulePrompt renders the rule synthesis prompt for result, signed with
// author.
func BuildRulePrompt(result *model.AnalysisResult, author string) (string, error) {
	if result == nil {
		return "", goerr.Wrap(model.ErrNoAnalysisResult, "rule prompt needs an analysis result")
	}

	data := struct {
		RuleName   string
		Author     string
		Summary    string
		Indicators []string
	}{
		RuleName:   result.RuleName(),
		Author:     author,
		Summary:    result.Summary,
		Indicators: result.KeyIndicators(),
	}

	var buf bytes.Buffer
	if err := rulePrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render rule prompt")
	}
	return buf.String(), nil
}
