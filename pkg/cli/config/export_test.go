package config

import "time"

var RedactFilter = redactFilter

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewProvidersForTest creates a Providers config with API keys set
func NewProvidersForTest(geminiKey, dashscopeKey, openaiKey, openaiBaseURL string) *Providers {
	return &Providers{
		geminiAPIKey:    geminiKey,
		dashscopeAPIKey: dashscopeKey,
		openaiAPIKey:    openaiKey,
		openaiBaseURL:   openaiBaseURL,
	}
}

// NewVirusTotalForTest creates a VirusTotal config for testing purposes
func NewVirusTotalForTest(apiKey, baseURL string, timeout time.Duration) *VirusTotal {
	return &VirusTotal{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
	}
}

// NewVertexForTest creates a Vertex config for testing purposes
func NewVertexForTest(projectID, location, model string) *Vertex {
	return &Vertex{
		projectID: projectID,
		location:  location,
		model:     model,
	}
}
