package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ckptinspect/internal/inspect"
)

func inspectCmd() *cli.Command {
	var (
		tensorLimit  int
		tensorFilter string
		asJSON       bool
		showWarnings bool
		failOnError  bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the tensors of a .safetensors, sharded index or PyTorch checkpoint",
		ArgsUsage: "<file>",
		Flags: append(parserFlags(),
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.StringFlag{Name: "filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
			&cli.BoolFlag{Name: "json", Usage: "print the document as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "warnings", Usage: "list every header warning", Destination: &showWarnings},
			&cli.BoolFlag{Name: "strict", Usage: "exit non-zero when the checkpoint cannot be parsed", Destination: &failOnError},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: missing checkpoint path", 1)
			}
			if cmd.Args().Len() > 1 {
				return cli.Exit("error: inspect takes exactly one path", 1)
			}
			applyParserConfig(cmd, loadedConfig)

			doc, err := newInspector().Open(ctx, path)
			switch {
			case errors.Is(err, inspect.ErrUnsupported):
				return cli.Exit(fmt.Sprintf("error: %v (expected .safetensors, .index.json, .pt, .pth, .bin or .ckpt)", err), 1)
			case errors.Is(err, fs.ErrNotExist):
				return cli.Exit(fmt.Sprintf("error: %s does not exist", path), 1)
			case err != nil:
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					*inspect.Document
					Summary inspect.Summary `json:"summary"`
				}{doc, doc.Summary()}); err != nil {
					return cli.Exit(fmt.Sprintf("error: encode document: %v", err), 1)
				}
			} else if err := inspect.WriteText(os.Stdout, doc, inspect.TextOptions{
				Limit:    tensorLimit,
				Filter:   tensorFilter,
				Warnings: showWarnings,
			}); err != nil {
				return cli.Exit(fmt.Sprintf("error: write report: %v", err), 1)
			}

			if failOnError && doc.Failed() {
				return cli.Exit("error: "+doc.Err, 2)
			}
			return nil
		},
	}
}
