package cmd

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/teeline/adapter"
	"github.com/pithecene-io/teeline/adapter/redis"
	"github.com/pithecene-io/teeline/adapter/webhook"
	"github.com/pithecene-io/teeline/cli/config"
	"github.com/pithecene-io/teeline/lode"
	"github.com/pithecene-io/teeline/log"
	"github.com/pithecene-io/teeline/policy"
)

// Exit codes.
const (
	exitFailure = 1
	exitConfig  = 2
)

// shutdownTimeout bounds the final flush and server shutdown.
const shutdownTimeout = 10 * time.Second

// loadConfig reads --config when given. Without it every value comes from
// flags and their defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// newLogger creates the command logger. An explicit --log-level wins over
// log_level in the config file.
func newLogger(c *cli.Context, cfg *config.Config, component string) *log.Logger {
	return log.NewLogger(component, log.Options{
		Level:  stringValue(c, "log-level", cfg.LogLevel),
		Output: c.App.ErrWriter,
	})
}

// stringValue resolves a setting: an explicitly set flag, then the config
// value, then the flag default.
func stringValue(c *cli.Context, flag, fromConfig string) string {
	if !c.IsSet(flag) && fromConfig != "" {
		return fromConfig
	}
	return c.String(flag)
}

func intValue(c *cli.Context, flag string, fromConfig int) int {
	if !c.IsSet(flag) && fromConfig != 0 {
		return fromConfig
	}
	return c.Int(flag)
}

func durationValue(c *cli.Context, flag string, fromConfig config.Duration) time.Duration {
	if !c.IsSet(flag) && fromConfig.Duration != 0 {
		return fromConfig.Duration
	}
	return c.Duration(flag)
}

func boolValue(c *cli.Context, flag string, fromConfig bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return fromConfig || c.Bool(flag)
}

// sizeValue resolves a byte size flag such as "1MB" or "4096".
func sizeValue(c *cli.Context, flag string, fromConfig datasize.ByteSize) (datasize.ByteSize, error) {
	if !c.IsSet(flag) && fromConfig != 0 {
		return fromConfig, nil
	}
	s := c.String(flag)
	if s == "" {
		return 0, nil
	}
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("--%s: invalid size %q: %w", flag, s, err)
	}
	return size, nil
}

// batchConfig builds the flush policy settings.
func batchConfig(c *cli.Context, cfg *config.Config) (policy.BatchConfig, error) {
	maxBytes, err := sizeValue(c, "max-bytes", cfg.Policy.MaxBytes)
	if err != nil {
		return policy.BatchConfig{}, err
	}
	return policy.BatchConfig{
		FlushDelay:      durationValue(c, "flush-delay", cfg.Policy.FlushDelay),
		MaxBytes:        int(maxBytes.Bytes()),
		MaxFrames:       intValue(c, "max-frames", cfg.Policy.MaxFrames),
		DeliveryTimeout: durationValue(c, "delivery-timeout", cfg.Policy.DeliveryTimeout),
	}, nil
}

// buildSink creates the delivery adapter.
func buildSink(c *cli.Context, cfg *config.Config) (adapter.Adapter, error) {
	kind := stringValue(c, "adapter", cfg.Adapter.Type)
	url := stringValue(c, "sink-url", cfg.Adapter.URL)
	timeout := durationValue(c, "sink-timeout", cfg.Adapter.Timeout)

	switch kind {
	case config.AdapterWebhook, "":
		return webhook.New(webhook.Config{
			URL:     url,
			Headers: cfg.Adapter.Headers,
			Timeout: timeout,
			Gzip:    boolValue(c, "sink-gzip", cfg.Adapter.Gzip),
		})
	case config.AdapterRedis:
		return redis.New(redis.Config{
			URL:     url,
			Channel: stringValue(c, "sink-channel", cfg.Adapter.Channel),
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (want webhook or redis)", kind)
	}
}

// storeConfig resolves the segment storage settings.
func storeConfig(c *cli.Context, cfg *config.Config) lode.StoreConfig {
	return lode.StoreConfig{
		Backend:      stringValue(c, "storage-backend", cfg.Storage.Backend),
		Path:         stringValue(c, "storage-path", cfg.Storage.Path),
		Region:       stringValue(c, "storage-region", cfg.Storage.Region),
		Endpoint:     stringValue(c, "storage-endpoint", cfg.Storage.Endpoint),
		UsePathStyle: boolValue(c, "storage-s3-path-style", cfg.Storage.S3PathStyle),
	}
}

// openSegments opens the segment store selected by flags and config.
func openSegments(c *cli.Context, cfg *config.Config) (*lode.SegmentStore, error) {
	factory, err := lode.NewStoreFactory(c.Context, storeConfig(c, cfg))
	if err != nil {
		return nil, err
	}
	return lode.NewSegmentStore(factory, stringValue(c, "dataset", cfg.Storage.Dataset)), nil
}
