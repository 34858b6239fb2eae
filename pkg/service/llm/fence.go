package llm

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
)

const fence = "```"

// StripCodeFence removes a surrounding triple-backtick fence, with or
// without a language tag, and trims surrounding whitespace.
//
//	"```yara\nrule X {}\n```" -> "rule X {}"
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if rest, ok := strings.CutPrefix(s, fence); ok {
		s = rest
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isLanguageTag(s[:nl]) {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '+':
		default:
			return false
		}
	}
	return true
}

// CleanRule strips the fence from a model response and fails with
// ErrEmptyCompletion when nothing is left.
func CleanRule(text string, provider string) (string, error) {
	rule := StripCodeFence(text)
	if rule == "" {
		return "", goerr.Wrap(model.ErrEmptyCompletion, "model returned no rule text", goerr.V(model.ProviderKey, provider))
	}
	return rule, nil
}
