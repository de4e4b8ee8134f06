package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/cli/config"
	"github.com/pithecene-io/teeline/intercept"
	"github.com/pithecene-io/teeline/relay"
	"github.com/pithecene-io/teeline/types"
)

// CaptureCommand returns the capture command.
// It performs one HTTP request through the interceptor, relays captured
// chunks to the aggregator and copies the response body to stdout.
func CaptureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Fetch a URL through the interceptor and relay its stream to the aggregator",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "method",
				Usage: "HTTP method",
				Value: http.MethodGet,
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "Request header as 'Name: value' (repeatable)",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Request body",
			},
			// Target flags
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Origin to capture (scheme://host[:port], empty matches any)",
				Value: intercept.DefaultOrigin,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path or glob to capture (empty matches any)",
				Value: intercept.DefaultPath,
			},
			&cli.StringFlag{
				Name:  "content-type",
				Usage: "Content type substring a captured response must carry",
				Value: intercept.DefaultContentType,
			},
			&cli.StringFlag{
				Name:  "read-size",
				Usage: "Tee read buffer size, e.g. 32KB",
				Value: "32KB",
			},
			// Relay flags
			&cli.StringFlag{
				Name:  "aggregator",
				Usage: "Aggregator address",
				Value: config.DefaultAggregatorAddr,
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Hello name announced to the aggregator",
				Value: types.DefaultChannelName,
			},
			&cli.StringFlag{
				Name:  "handshake",
				Usage: "Private channel name between relay and interceptor",
				Value: types.DefaultHandshakeName,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source identifier announced in the hello",
			},
		},
		Action: captureAction,
	}
}

func captureAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("url required", exitConfig)
	}
	target := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	logger := newLogger(c, cfg, "capture")
	defer logger.Sync()

	readSize, err := sizeValue(c, "read-size", cfg.Capture.ReadSize)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	handshake := stringValue(c, "handshake", cfg.Capture.Handshake)

	tr, err := intercept.New(nil, intercept.Config{
		Target: intercept.Target{
			Origin:      stringValue(c, "origin", cfg.Capture.Origin),
			Path:        stringValue(c, "path", cfg.Capture.Path),
			ContentType: stringValue(c, "content-type", cfg.Capture.ContentType),
		},
		PortName: handshake,
		ReadSize: int(readSize.Bytes()),
		Logger:   logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid target: %v", err), exitConfig)
	}

	req, err := newCaptureRequest(c, target)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	req = req.WithContext(ctx)

	// A missing aggregator never fails the request; captured chunks are
	// dropped by the unattached transport instead.
	addr := stringValue(c, "aggregator", cfg.Aggregator.Listen)
	hello := types.Hello{
		Name:   stringValue(c, "channel", cfg.Aggregator.Channel),
		Source: types.SourceID(stringValue(c, "source", cfg.Capture.Source)),
	}
	var rl *relay.Relay
	runDone := make(chan error, 1)
	port, err := relay.DialPort(ctx, "tcp", addr, hello)
	if err != nil {
		logger.Sugar().Warnf("aggregator %s unreachable, streaming without capture: %v", addr, err)
	} else {
		rl = relay.New(port, relay.Config{HandshakeName: handshake, Logger: logger})
		if err := rl.Handshake(tr); err != nil {
			_ = rl.Close()
			return cli.Exit(err.Error(), exitConfig)
		}
		go func() { runDone <- rl.Run(ctx) }()
	}

	resp, err := (&http.Client{Transport: tr}).Do(req)
	if err != nil {
		if rl != nil {
			_ = rl.Close()
		}
		return cli.Exit(fmt.Sprintf("request failed: %v", err), exitFailure)
	}
	n, copyErr := io.Copy(c.App.Writer, resp.Body)
	_ = resp.Body.Close()

	if rl != nil && ctx.Err() != nil {
		// Interrupted: stop accepting captures before waiting on them.
		_ = rl.Channel().Close()
	}
	tr.Wait()
	if rl != nil {
		_ = rl.Channel().Close()
		<-runDone
		_ = rl.Close()
	}

	logger.Info("capture finished", map[string]any{
		"url":    target,
		"status": resp.StatusCode,
		"bytes":  n,
	})
	if copyErr != nil {
		return cli.Exit(fmt.Sprintf("reading body: %v", copyErr), exitFailure)
	}
	if resp.StatusCode >= 400 {
		return cli.Exit(fmt.Sprintf("server returned %s", resp.Status), exitFailure)
	}
	return nil
}

func newCaptureRequest(c *cli.Context, target string) (*http.Request, error) {
	var body io.Reader
	if d := c.String("data"); d != "" {
		body = strings.NewReader(d)
	}
	req, err := http.NewRequest(c.String("method"), target, body)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	for _, h := range c.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Name: value')", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}
