package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"letterbox/internal/application"
	"letterbox/internal/config"
	"letterbox/internal/infrastructure/cache"
	"letterbox/internal/infrastructure/kafka"
	"letterbox/internal/infrastructure/logging"
	"letterbox/internal/infrastructure/mysql"
	"letterbox/internal/infrastructure/pxerpc"
	"letterbox/internal/infrastructure/sqlite"
	"letterbox/internal/infrastructure/telemetry"
	"letterbox/internal/interfaces/httpapi"
)

// overrides are the persistent flags that take precedence over the
// environment.
type overrides struct {
	nodeURL  string
	contract string
	logLevel string
}

type runtime struct {
	cfg      config.Config
	sessions *application.SessionManager
	contract *application.ContractHandle
	sender   *application.LetterSender
	scanner  *application.LetterScanner
	metrics  *httpapi.Metrics
	closers  []func() error
}

type runtimeOptions struct {
	withMetrics bool
}

func newRuntime(ctx context.Context, flags overrides, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	if flags.nodeURL != "" {
		cfg.NodeURL = flags.nodeURL
	}
	if flags.contract != "" {
		cfg.ContractAddress = flags.contract
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	rt := &runtime{cfg: cfg}
	closeLog, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Service:    "letterbox",
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeLog)

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:    "letterbox",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	} else {
		rt.closers = append(rt.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTracing(shutdownCtx)
		})
	}

	rt.sessions, err = application.NewSessionManager(cfg.NodeURL, pxerpc.Dial)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, func() error {
		rt.sessions.Close()
		return nil
	})
	rt.contract, err = application.NewContractHandle(cfg.ContractAddress, rt.sessions)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var (
		sendObserver application.SendObserver
		scanObserver application.ScanObserver
	)
	if opts.withMetrics {
		rt.metrics = httpapi.NewMetrics()
		sendObserver = rt.metrics
		scanObserver = rt.metrics
	}

	rt.sender, err = application.NewLetterSender(rt.sessions, rt.contract, sendObserver, application.SenderConfig{
		ReceiptPollInterval: cfg.ReceiptPollInterval,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.scanner, err = application.NewLetterScanner(rt.sessions, rt.contract, scanObserver, application.ScanConfig{
		FromBlock: cfg.ScanFromBlock,
		NumBlocks: cfg.ScanNumBlocks,
		PageSize:  cfg.ScanPageSize,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

type inboxStore interface {
	application.InboxStore
	Close() error
}

// openInbox picks MySQL when a DSN is configured and the local sqlite file
// otherwise, then layers the optional redis cache and kafka stream on top.
func (rt *runtime) openInbox() (*application.Inbox, application.InboxStore, error) {
	var (
		base inboxStore
		err  error
	)
	if rt.cfg.InboxMySQLDSN != "" {
		base, err = mysql.NewRepository(rt.cfg.InboxMySQLDSN)
	} else {
		base, err = sqlite.NewRepository(rt.cfg.InboxDBPath)
	}
	if err != nil {
		return nil, nil, err
	}
	rt.closers = append(rt.closers, base.Close)

	var store application.InboxStore = base
	if rt.cfg.RedisAddr != "" {
		cached, err := cache.NewCachedStore(base, cache.Config{Addr: rt.cfg.RedisAddr, TTL: time.Hour})
		if err != nil {
			slog.Warn("redis cache disabled", "err", err)
		} else {
			store = cached
			rt.closers = append(rt.closers, cached.Close)
		}
	}

	var stream application.LetterStream
	if len(rt.cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: rt.cfg.KafkaBrokers,
			Topic:   rt.cfg.KafkaTopic,
		})
		if err != nil {
			return nil, nil, err
		}
		stream = producer
		rt.closers = append(rt.closers, producer.Close)
	}

	var observer application.InboxObserver
	if rt.metrics != nil {
		observer = rt.metrics
	}
	inbox, err := application.NewInbox(rt.sessions, rt.scanner, store, stream, observer, application.InboxConfig{
		StartBlock:   rt.cfg.ScanFromBlock,
		BatchSize:    rt.cfg.InboxBatchSize,
		PollInterval: rt.cfg.InboxPollInterval,
	})
	if err != nil {
		return nil, nil, err
	}
	return inbox, store, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
