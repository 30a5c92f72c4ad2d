package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ckptinspect/internal/api"
	"github.com/samcharles93/ckptinspect/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		root        string
		storeLimit  int
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the inspection REST API",
		Flags: append(parserFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "root",
				Usage:       "only serve checkpoints under this directory",
				Destination: &root,
			},
			&cli.IntFlag{
				Name:        "keep-documents",
				Usage:       "number of inspected documents kept for lookup by id",
				Value:       api.DefaultStoreLimit,
				Destination: &storeLimit,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, loadedConfig, &addr, &root)
			log := logger.FromContext(ctx)

			server := api.NewServer(newInspector(), api.Config{
				Root:   root,
				Store:  api.NewDocumentStore(storeLimit),
				Logger: log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "root", root)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
