package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"letterbox/internal/domain"
)

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"send", "letters", "inbox", "watch", "serve", "accounts", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s not found: %v", name, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "letterbox dev") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestSendRequiresRecipientAndMessage(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send", "0x01"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestPrintLetters(t *testing.T) {
	var out bytes.Buffer
	printLetters(&out, nil)
	if out.String() != "no letters\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	printLetters(&out, []domain.Letter{{Message: "Dear Santa", BlockNumber: 3, TxHash: "0x01"}})
	if !strings.Contains(out.String(), "Dear Santa") || !strings.Contains(out.String(), "BLOCK") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestPrintReceipt(t *testing.T) {
	var out bytes.Buffer
	printReceipt(&out, domain.TransactionReceipt{TxHash: "0x01", Status: domain.TxStatusFailed, BlockNumber: 2, Reason: "status: dropped"})
	want := "tx 0x01 status failed block 2 (status: dropped)\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestIgnoreCanceled(t *testing.T) {
	if err := ignoreCanceled(fmt.Errorf("run: %w", context.Canceled)); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	boom := errors.New("boom")
	if err := ignoreCanceled(boom); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
}
