package httpapi

import (
	"testing"

	"letterbox/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObservers(t *testing.T) {
	m := NewMetrics()

	m.OnLetterSent(domain.TransactionReceipt{TxHash: "0x01"})
	m.OnLetterSent(domain.TransactionReceipt{TxHash: "0x02"})
	m.OnSendFailed(domain.KindTransaction)
	m.OnSendFailed("")
	m.OnLatestBlock(42)
	m.OnScanCompleted(1, 40, 3)
	m.OnInboxSynced(1, 40, 2)

	if got := testutil.ToFloat64(m.lettersSent); got != 2 {
		t.Fatalf("letters sent = %v", got)
	}
	if got := testutil.ToFloat64(m.sendFailures.WithLabelValues("Transaction")); got != 1 {
		t.Fatalf("transaction failures = %v", got)
	}
	if got := testutil.ToFloat64(m.sendFailures.WithLabelValues("Unknown")); got != 1 {
		t.Fatalf("unknown failures = %v", got)
	}
	if got := testutil.ToFloat64(m.latestBlock); got != 42 {
		t.Fatalf("latest block = %v", got)
	}
	if got := testutil.ToFloat64(m.lettersScanned); got != 3 {
		t.Fatalf("letters scanned = %v", got)
	}
	if got := testutil.ToFloat64(m.lastScannedBlock); got != 40 {
		t.Fatalf("last scanned block = %v", got)
	}
	if got := testutil.ToFloat64(m.inboxStored); got != 2 {
		t.Fatalf("inbox stored = %v", got)
	}
}
