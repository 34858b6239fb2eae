package types

import "fmt"

// ProviderKind identifies an AI provider adapter
type ProviderKind string

const (
	ProviderGemini    ProviderKind = "gemini"
	ProviderDashScope ProviderKind = "dashscope"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderVertex    ProviderKind = "vertex"
)

// AllProviderKinds returns all provider kinds in display order
func AllProviderKinds() []ProviderKind {
	return []ProviderKind{
		ProviderGemini,
		ProviderDashScope,
		ProviderOpenAI,
		ProviderVertex,
	}
}

// IsValid checks if the provider kind is known
func (k ProviderKind) IsValid() bool {
	switch k {
	case ProviderGemini,
		ProviderDashScope,
		ProviderOpenAI,
		ProviderVertex:
		return true
	default:
		return false
	}
}

// DisplayName returns the human readable provider name
func (k ProviderKind) DisplayName() string {
	switch k {
	case ProviderGemini:
		return "Google Gemini"
	case ProviderDashScope:
		return "Alibaba Cloud Qwen (DashScope)"
	case ProviderOpenAI:
		return "OpenAI-compatible endpoint"
	case ProviderVertex:
		return "Google Vertex AI"
	default:
		return string(k)
	}
}

// RequiresBaseURL reports whether the caller must supply an endpoint URL
func (k ProviderKind) RequiresBaseURL() bool {
	return k == ProviderOpenAI
}

// RequiresAPIKey reports whether the caller must supply an API key.
// Vertex AI authenticates with application default credentials.
func (k ProviderKind) RequiresAPIKey() bool {
	return k != ProviderVertex
}

// String returns the string representation of the provider kind
func (k ProviderKind) String() string {
	return string(k)
}

// ParseProviderKind parses a string into a ProviderKind
func ParseProviderKind(s string) (ProviderKind, error) {
	kind := ProviderKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid provider kind: %s", s)
	}
	return kind, nil
}
