package config

import (
	"log/slog"

	"github.com/secmon-lab/malinsight/pkg/service/llm/vertex"
	"github.com/urfave/cli/v3"
)

// Vertex holds configuration for the Vertex AI provider. It authenticates
// with Application Default Credentials, so only the project is needed.
type Vertex struct {
	projectID string
	location  string
	model     string
}

// Flags returns CLI flags for Vertex AI configuration
func (x *Vertex) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vertex-project",
			Category:    "Vertex AI",
			Usage:       "Google Cloud project ID used when a request names none",
			Sources:     cli.EnvVars("MALINSIGHT_VERTEX_PROJECT"),
			Destination: &x.projectID,
		},
		&cli.StringFlag{
			Name:        "vertex-location",
			Category:    "Vertex AI",
			Usage:       "Google Cloud location (default " + vertex.DefaultLocation + ")",
			Sources:     cli.EnvVars("MALINSIGHT_VERTEX_LOCATION"),
			Destination: &x.location,
		},
		&cli.StringFlag{
			Name:        "vertex-model",
			Category:    "Vertex AI",
			Usage:       "Model name on Vertex AI",
			Sources:     cli.EnvVars("MALINSIGHT_VERTEX_MODEL"),
			Destination: &x.model,
		},
	}
}

// LogValue returns log attributes for the Vertex configuration
func (x Vertex) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", x.projectID),
		slog.String("location", x.location),
		slog.String("model", x.model),
	)
}

// Configure creates the Vertex AI provider. Without a project the provider
// is still registered and requests must carry one.
func (x *Vertex) Configure(file *File) *vertex.Provider {
	return vertex.New(
		vertex.WithProject(pick(x.projectID, file.Vertex.Project)),
		vertex.WithLocation(pick(x.location, file.Vertex.Location)),
		vertex.WithModel(pick(x.model, file.Vertex.Model)),
	)
}
