package cli

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/service/virustotal"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdNormalize() *cli.Command {
	var outPath string

	return &cli.Command{
		Name:      "normalize",
		Usage:     "Convert a VirusTotal file report (JSON) into the text report used for analysis",
		ArgsUsage: "[FILE] (default stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "Output file (default stdout)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				path = "-"
			}

			r, closeIn, err := openInput(ctx, path)
			if err != nil {
				return err
			}
			defer closeIn()

			raw, err := io.ReadAll(r)
			if err != nil {
				return goerr.Wrap(err, "failed to read VirusTotal report", goerr.V("path", path))
			}

			w, closeOut, err := openOutput(ctx, outPath)
			if err != nil {
				return err
			}
			defer closeOut()

			report := usecase.NewLookupUseCase(virustotal.New(), 0).Normalize(raw)
			if _, err := io.WriteString(w, report); err != nil {
				return goerr.Wrap(err, "failed to write output")
			}
			return nil
		},
	}
}
