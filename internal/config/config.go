package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"letterbox/internal/application"
)

type Config struct {
	NodeURL             string
	ContractAddress     string
	ScanFromBlock       uint64
	ScanNumBlocks       uint64
	ScanPageSize        uint64
	ReceiptPollInterval time.Duration
	InboxPollInterval   time.Duration
	InboxBatchSize      uint64
	InboxDBPath         string
	InboxMySQLDSN       string
	RedisAddr           string
	KafkaBrokers        []string
	KafkaTopic          string
	HTTPAddr            string
	OtelEndpoint        string
	LogLevel            string
	LogFile             string
	LogMaxSizeMB        int
	LogMaxBackups       int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	nodeURL := lookupString(source, "NODE_URL", application.DefaultNodeURL)
	contractAddress := lookupString(source, "CONTRACT_ADDRESS", "")

	scanFromBlock, err := parseUintEnv(source, "SCAN_FROM_BLOCK", 1)
	if err != nil {
		return Config{}, err
	}
	scanNumBlocks, err := parseUintEnv(source, "SCAN_NUM_BLOCKS", 1000)
	if err != nil {
		return Config{}, err
	}
	scanPageSize, err := parseUintEnv(source, "SCAN_PAGE_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	if scanPageSize == 0 {
		return Config{}, errors.New("SCAN_PAGE_SIZE must be positive")
	}
	inboxBatchSize, err := parseUintEnv(source, "INBOX_BATCH_SIZE", 1000)
	if err != nil {
		return Config{}, err
	}
	if inboxBatchSize == 0 {
		return Config{}, errors.New("INBOX_BATCH_SIZE must be positive")
	}

	receiptPollInterval, err := parseDurationEnv(source, "RECEIPT_POLL_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}
	inboxPollInterval, err := parseDurationEnv(source, "INBOX_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	kafkaBrokers, err := parseList(source, "KAFKA_BROKERS")
	if err != nil {
		return Config{}, err
	}

	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 5)
	if err != nil {
		return Config{}, err
	}

	return Config{
		NodeURL:             nodeURL,
		ContractAddress:     contractAddress,
		ScanFromBlock:       scanFromBlock,
		ScanNumBlocks:       scanNumBlocks,
		ScanPageSize:        scanPageSize,
		ReceiptPollInterval: receiptPollInterval,
		InboxPollInterval:   inboxPollInterval,
		InboxBatchSize:      inboxBatchSize,
		InboxDBPath:         lookupString(source, "INBOX_DB_PATH", "letterbox.db"),
		InboxMySQLDSN:       lookupString(source, "INBOX_MYSQL_DSN", ""),
		RedisAddr:           lookupString(source, "REDIS_ADDR", ""),
		KafkaBrokers:        kafkaBrokers,
		KafkaTopic:          lookupString(source, "KAFKA_TOPIC", "letterbox-letters"),
		HTTPAddr:            lookupString(source, "HTTP_ADDR", ":8090"),
		OtelEndpoint:        lookupString(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:            lookupString(source, "LOG_LEVEL", "info"),
		LogFile:             lookupString(source, "LOG_FILE", ""),
		LogMaxSizeMB:        int(logMaxSize),
		LogMaxBackups:       int(logMaxBackups),
	}, nil
}

func lookupString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return defaultValue
	}
	return raw
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}

// parseList returns nil when the key is unset, which disables the feature.
func parseList(source EnvSource, key string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("invalid %s: no entries", key)
	}
	return values, nil
}
