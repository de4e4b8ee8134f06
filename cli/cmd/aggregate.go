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

	"github.com/pithecene-io/teeline/adapter/redis"
	"github.com/pithecene-io/teeline/adapter/webhook"
	"github.com/pithecene-io/teeline/aggregator"
	"github.com/pithecene-io/teeline/cli/config"
	"github.com/pithecene-io/teeline/metrics"
	"github.com/pithecene-io/teeline/policy"
	"github.com/pithecene-io/teeline/ring"
	"github.com/pithecene-io/teeline/types"
)

// AggregateCommand returns the aggregate command.
// It runs the coordinator that accepts relay ports, keeps per-source rings
// and delivers framed batches to the sink.
func AggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "Run the aggregator (relay ports, rings, batching, debug RPC)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address relay ports connect to",
				Value: config.DefaultAggregatorAddr,
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Hello name accepted on relay ports",
				Value: types.DefaultChannelName,
			},
			&cli.IntFlag{
				Name:  "ring-capacity",
				Usage: "Entries kept per source",
				Value: ring.DefaultCapacity,
			},
			&cli.DurationFlag{
				Name:  "hello-timeout",
				Usage: "How long a new port may take to send its hello",
				Value: aggregator.DefaultHelloTimeout,
			},
			&cli.StringFlag{
				Name:  "debug-listen",
				Usage: "Address of the debug RPC and metrics server (empty disables it)",
				Value: config.DefaultDebugAddr,
			},
			&cli.BoolFlag{
				Name:  "no-metrics",
				Usage: "Do not serve /metrics on the debug server",
			},
			// Policy flags
			&cli.DurationFlag{
				Name:  "flush-delay",
				Usage: "Coalescing delay before a partial batch is flushed",
				Value: policy.DefaultFlushDelay,
			},
			&cli.StringFlag{
				Name:  "max-bytes",
				Usage: "Flush once a batch reaches this many framed bytes (e.g. 1MB)",
				Value: "1MB",
			},
			&cli.IntFlag{
				Name:  "max-frames",
				Usage: "Flush once a batch holds this many frames",
				Value: policy.DefaultMaxFrames,
			},
			&cli.DurationFlag{
				Name:  "delivery-timeout",
				Usage: "Bound on a single batch delivery",
				Value: policy.DefaultDeliveryTimeout,
			},
			// Sink flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Sink adapter: webhook or redis",
				Value: config.AdapterWebhook,
			},
			&cli.StringFlag{
				Name:  "sink-url",
				Usage: "Webhook URL or redis://host:port/db",
				Value: webhook.DefaultURL,
			},
			&cli.StringFlag{
				Name:  "sink-channel",
				Usage: "Redis pub/sub channel",
				Value: redis.DefaultChannel,
			},
			&cli.DurationFlag{
				Name:  "sink-timeout",
				Usage: "Per-request sink timeout",
			},
			&cli.BoolFlag{
				Name:  "sink-gzip",
				Usage: "Gzip webhook bodies",
			},
		},
		Action: aggregateAction,
	}
}

func aggregateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger := newLogger(c, cfg, "aggregator")
	defer logger.Sync()

	batch, err := batchConfig(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	sink, err := buildSink(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid sink: %v", err), exitConfig)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	coord := aggregator.New(sink, aggregator.Config{
		ChannelName:  stringValue(c, "channel", cfg.Aggregator.Channel),
		RingCapacity: intValue(c, "ring-capacity", cfg.Aggregator.RingCapacity),
		HelloTimeout: durationValue(c, "hello-timeout", cfg.Aggregator.HelloTimeout),
		Batch:        batch,
		Logger:       logger,
		Metrics:      collector,
	})

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := stringValue(c, "listen", cfg.Aggregator.Listen)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		_ = coord.Close(context.Background())
		return cli.Exit(fmt.Sprintf("listen %s: %v", addr, err), exitFailure)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Serve(gctx, ln) })

	var srv *http.Server
	var dbg *aggregator.DebugServer
	if debugAddr := stringValue(c, "debug-listen", cfg.Debug.Listen); debugAddr != "" {
		dln, err := net.Listen("tcp", debugAddr)
		if err != nil {
			stop()
			_ = g.Wait()
			_ = coord.Close(context.Background())
			return cli.Exit(fmt.Sprintf("listen %s: %v", debugAddr, err), exitFailure)
		}

		var gatherer prometheus.Gatherer = reg
		metricsOn := !c.Bool("no-metrics")
		if cfg.Debug.Metrics != nil && !c.IsSet("no-metrics") {
			metricsOn = *cfg.Debug.Metrics
		}
		if !metricsOn {
			gatherer = nil
		}

		dbg = aggregator.NewDebugServer(coord, gatherer)
		srv = &http.Server{Handler: dbg, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("debug server listening", map[string]any{"addr": dln.Addr().String(), "metrics": metricsOn})
		g.Go(func() error {
			if err := srv.Serve(dln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
			_ = dbg.Close()
		}
		return coord.Close(shutdownCtx)
	})

	err = g.Wait()
	s := coord.BatchStats()
	logger.Info("aggregator stopped", map[string]any{
		"frames_enqueued":   s.FramesEnqueued,
		"flushes":           s.FlushCount,
		"delivered":         s.Delivered,
		"delivery_failures": s.DeliveryFailures,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	return nil
}
