package model

import "log/slog"

// Credential carries caller-supplied access settings for one provider call.
// It is passed per request and never stored.
type Credential struct {
	APIKey   string `json:"api_key" masq:"secret"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model,omitempty"`
	Project  string `json:"project,omitempty"`
	Location string `json:"location,omitempty"`
}

// LogValue hides the API key when a Credential is logged directly.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_api_key", c.APIKey != ""),
		slog.String("base_url", c.BaseURL),
		slog.String("model", c.Model),
		slog.String("project", c.Project),
		slog.String("location", c.Location),
	)
}
