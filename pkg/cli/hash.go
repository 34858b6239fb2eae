package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/service/virustotal"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func cmdHash() *cli.Command {
	var outPath string
	var jobs int

	return &cli.Command{
		Name:      "hash",
		Usage:     "Print the lookup identifier (SHA-256) of sample files",
		ArgsUsage: "FILE... (- for stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "Output file (default stdout)",
				Destination: &outPath,
			},
			&cli.IntFlag{
				Name:        "jobs",
				Aliases:     []string{"j"},
				Usage:       "Number of files hashed in parallel (default number of CPUs)",
				Destination: &jobs,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			paths := c.Args().Slice()
			if len(paths) == 0 {
				return goerr.Wrap(model.ErrInvalidInput, "at least one file is required")
			}
			if jobs <= 0 {
				jobs = runtime.NumCPU()
			}

			digests, err := hashFiles(ctx, usecase.NewLookupUseCase(virustotal.New(), 0), paths, jobs)
			if err != nil {
				return err
			}

			w, closer, err := openOutput(ctx, outPath)
			if err != nil {
				return err
			}
			defer closer()

			// Same layout as sha256sum
			for i, path := range paths {
				if _, err := fmt.Fprintf(w, "%s  %s\n", digests[i], path); err != nil {
					return goerr.Wrap(err, "failed to write output")
				}
			}
			return nil
		},
	}
}

// hashFiles hashes paths concurrently and returns digests in input order
func hashFiles(ctx context.Context, lookup *usecase.LookupUseCase, paths []string, jobs int) ([]string, error) {
	digests := make([]string, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for i, path := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			r, closer, err := openInput(ctx, path)
			if err != nil {
				return err
			}
			defer closer()

			digest, err := lookup.Hash(r)
			if err != nil {
				return goerr.Wrap(err, "failed to hash file", goerr.V("path", path))
			}
			digests[i] = digest
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return digests, nil
}
