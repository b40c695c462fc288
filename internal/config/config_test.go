package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"letterbox/internal/application"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(EnvMap{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ContractAddress != "" {
		t.Fatalf("contract address = %q", cfg.ContractAddress)
	}
	if cfg.ScanFromBlock != 1 || cfg.ScanNumBlocks != 1000 || cfg.ScanPageSize != 100 {
		t.Fatalf("scan window = %d/%d/%d", cfg.ScanFromBlock, cfg.ScanNumBlocks, cfg.ScanPageSize)
	}
	if cfg.ReceiptPollInterval != time.Second {
		t.Fatalf("receipt poll = %s", cfg.ReceiptPollInterval)
	}
	if cfg.InboxDBPath != "letterbox.db" || cfg.InboxMySQLDSN != "" {
		t.Fatalf("inbox store = %q %q", cfg.InboxDBPath, cfg.InboxMySQLDSN)
	}
	if cfg.KafkaBrokers != nil || cfg.RedisAddr != "" {
		t.Fatalf("optional integrations should be disabled: %v %q", cfg.KafkaBrokers, cfg.RedisAddr)
	}
}

func TestLoadDefaultNodeURL(t *testing.T) {
	for name, env := range map[string]EnvMap{
		"unset": {},
		"blank": {"NODE_URL": "   "},
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(env)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.NodeURL != "https://api.aztec.network/aztec-pxe/3.0.0-devnet.5" {
				t.Fatalf("node url = %q", cfg.NodeURL)
			}
			if cfg.NodeURL != application.DefaultNodeURL {
				t.Fatalf("config default %q differs from session default %q", cfg.NodeURL, application.DefaultNodeURL)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(EnvMap{
		"NODE_URL":              " http://node:9000 ",
		"CONTRACT_ADDRESS":      "0x01",
		"SCAN_FROM_BLOCK":       "40",
		"SCAN_NUM_BLOCKS":       "7",
		"SCAN_PAGE_SIZE":        "3",
		"RECEIPT_POLL_INTERVAL": "250ms",
		"INBOX_POLL_INTERVAL":   "1m",
		"KAFKA_BROKERS":         "a:9092, b:9092,",
		"LOG_MAX_BACKUPS":       "2",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeURL != "http://node:9000" || cfg.ContractAddress != "0x01" {
		t.Fatalf("unexpected node settings: %+v", cfg)
	}
	if cfg.ScanFromBlock != 40 || cfg.ScanNumBlocks != 7 || cfg.ScanPageSize != 3 {
		t.Fatalf("scan window = %d/%d/%d", cfg.ScanFromBlock, cfg.ScanNumBlocks, cfg.ScanPageSize)
	}
	if cfg.ReceiptPollInterval != 250*time.Millisecond || cfg.InboxPollInterval != time.Minute {
		t.Fatalf("intervals = %s %s", cfg.ReceiptPollInterval, cfg.InboxPollInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.LogMaxBackups != 2 {
		t.Fatalf("log backups = %d", cfg.LogMaxBackups)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]EnvMap{
		"SCAN_NUM_BLOCKS":       {"SCAN_NUM_BLOCKS": "many"},
		"SCAN_PAGE_SIZE":        {"SCAN_PAGE_SIZE": "0"},
		"RECEIPT_POLL_INTERVAL": {"RECEIPT_POLL_INTERVAL": "soon"},
		"INBOX_POLL_INTERVAL":   {"INBOX_POLL_INTERVAL": "-1s"},
		"KAFKA_BROKERS":         {"KAFKA_BROKERS": " , "},
	}
	for key, env := range cases {
		t.Run(key, func(t *testing.T) {
			_, err := Load(env)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("error %q does not name %s", err, key)
			}
		})
	}
}

func TestLoadRequiresSource(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	if err := os.WriteFile(local, []byte("LETTERBOX_TEST_A=local\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(shared, []byte("LETTERBOX_TEST_A=shared\nLETTERBOX_TEST_B=shared\nLETTERBOX_TEST_C=shared\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LETTERBOX_TEST_C", "process")
	t.Cleanup(func() {
		os.Unsetenv("LETTERBOX_TEST_A")
		os.Unsetenv("LETTERBOX_TEST_B")
	})

	if err := loadDotEnv(local, shared, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("LETTERBOX_TEST_A"); got != "local" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("LETTERBOX_TEST_B"); got != "shared" {
		t.Fatalf("B = %q", got)
	}
	if got := os.Getenv("LETTERBOX_TEST_C"); got != "process" {
		t.Fatalf("C = %q", got)
	}
}
