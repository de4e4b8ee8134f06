package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/teeline/cli/config"
	"github.com/pithecene-io/teeline/ingest"
	"github.com/pithecene-io/teeline/metrics"
)

// IngestCommand returns the ingest command.
// It runs the local sink that stores every POSTed batch as one segment.
func IngestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Run the local sink server (POST /ingest into segment storage)",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address of the ingest server",
				Value: config.DefaultIngestAddr,
			},
			&cli.StringFlag{
				Name:  "allow-origin",
				Usage: "Access-Control-Allow-Origin value",
				Value: ingest.DefaultAllowOrigin,
			},
			&cli.StringFlag{
				Name:  "max-body",
				Usage: "Largest accepted (decoded) body, e.g. 64MB",
				Value: "64MB",
			},
			&cli.BoolFlag{
				Name:  "no-metrics",
				Usage: "Do not serve /metrics",
			},
		}, storageFlags()...),
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger := newLogger(c, cfg, "ingest")
	defer logger.Sync()

	maxBody, err := sizeValue(c, "max-body", cfg.Ingest.MaxBody)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	store, err := openSegments(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid storage: %v", err), exitConfig)
	}

	reg := prometheus.NewRegistry()
	var gatherer prometheus.Gatherer
	if !c.Bool("no-metrics") {
		gatherer = reg
	}

	h := ingest.NewHandler(store, ingest.Config{
		AllowOrigin: stringValue(c, "allow-origin", cfg.Ingest.AllowOrigin),
		MaxBodySize: int64(maxBody.Bytes()),
		Logger:      logger,
		Metrics:     metrics.NewCollector(reg),
	})
	srv := &http.Server{
		Handler:           ingest.NewMux(h, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	addr := stringValue(c, "listen", cfg.Ingest.Listen)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("listen %s: %v", addr, err), exitFailure)
	}
	logger.Info("ingest listening", map[string]any{
		"addr":    ln.Addr().String(),
		"storage": store.Prefix(),
	})

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	logger.Info("ingest stopped", nil)
	return nil
}
