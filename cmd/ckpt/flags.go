package main

import (
	"context"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ckptinspect/internal/inspect"
	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/pytorch"
	"github.com/samcharles93/ckptinspect/internal/safetensors"
)

var (
	maxHeaderSize      int64
	largeFileThreshold int64
	pythonPath         string
	pytorchScript      string
	toolTimeout        time.Duration
	logLevel           string
	logFormat          string
	debug              bool
)

func parserFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-header-size",
			Usage:       "largest safetensors header accepted, in bytes",
			Value:       safetensors.DefaultMaxHeaderSize,
			Destination: &maxHeaderSize,
		},
		&cli.Int64Flag{
			Name:        "large-file-threshold",
			Usage:       "file size in bytes from which only the header is read from disk",
			Value:       safetensors.DefaultLargeFileThreshold,
			Destination: &largeFileThreshold,
		},
		&cli.StringFlag{
			Name:        "python",
			Usage:       "interpreter used to inspect PyTorch checkpoints",
			Value:       pytorch.DefaultInterpreter,
			Destination: &pythonPath,
		},
		&cli.StringFlag{
			Name:        "pytorch-script",
			Usage:       "path to the PyTorch inspection script (default: " + pytorch.DefaultScript + " beside the binary, then in the working directory)",
			Destination: &pytorchScript,
		},
		&cli.DurationFlag{
			Name:        "tool-timeout",
			Usage:       "time limit for one PyTorch inspection",
			Value:       pytorch.DefaultTimeout,
			Destination: &toolTimeout,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       logger.FormatAuto,
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging stores the configured logger in the command context.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return ctx, cli.Exit("error: "+err.Error(), 1)
	}
	applyLoggingConfig(cmd, cfg)
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log := logger.New(os.Stderr, logFormat, level)
	return logger.WithContext(ctx, log), nil
}

// newInspector builds an Inspector from the parser flags.
func newInspector() *inspect.Inspector {
	return &inspect.Inspector{
		Options: safetensors.Options{
			MaxHeaderSize:      maxHeaderSize,
			LargeFileThreshold: largeFileThreshold,
		},
		Tool: pytorch.Tool{
			Interpreter: pythonPath,
			Script:      pytorchScript,
			Timeout:     toolTimeout,
		},
	}
}
