package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/symcache/internal/api"
	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/internal/symstore"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		openCaches   int64
		rateLimit    float64
		burst        int64
		verifyOnOpen bool
		watch        bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the symbolication REST API",
		Flags: []cli.Flag{
			cachesDirFlag(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "open-caches",
				Usage:       "number of caches kept open",
				Value:       symstore.DefaultOpenCaches,
				Destination: &openCaches,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "sustained API requests per second (0 disables)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "API request burst size",
				Destination: &burst,
			},
			&cli.BoolFlag{
				Name:        "verify-on-open",
				Usage:       "fully verify every cache when it is first opened",
				Destination: &verifyOnOpen,
			},
			&cli.BoolFlag{
				Name:        "watch",
				Usage:       "reopen caches whose files change on disk",
				Value:       true,
				Destination: &watch,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, LoadConfig(), &addr, &openCaches, &rateLimit, &verifyOnOpen)

			dir, err := resolveCachesDir(cachesDir)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			store, err := symstore.NewRegistry(symstore.Options{
				Dir:        dir,
				OpenCaches: int(openCaches),
				Verify:     verifyOnOpen,
				Registerer: reg,
				Logger:     log,
			})
			if err != nil {
				return err
			}
			defer store.Purge()
			if watch {
				go func() {
					if err := store.Watch(ctx); err != nil {
						log.Warn("caches directory is not watched", "error", err)
					}
				}()
			}

			server := api.NewServer(store, api.Options{
				Gatherer:  reg,
				RateLimit: rateLimit,
				Burst:     int(burst),
				Logger:    log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "caches_dir", dir, "open_caches", openCaches)
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
