package application

import (
	"context"
	"testing"

	"letterbox/internal/domain"
)

func TestContractHandle_MissingAddressChecksBeforeNetwork(t *testing.T) {
	node := newFakeNode(newLedger(), testAddress(1))
	s := newStack(node, "", ScanConfig{})

	_, err := s.contract.Resolve(context.Background())
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := s.dialer.dials.Load(); got != 0 {
		t.Errorf("expected no network call, got %d dials", got)
	}
}

func TestContractHandle_MalformedAddress(t *testing.T) {
	node := newFakeNode(newLedger(), testAddress(1))
	s := newStack(node, "0x1234", ScanConfig{})

	_, err := s.contract.Resolve(context.Background())
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if got := s.dialer.dials.Load(); got != 0 {
		t.Errorf("expected no network call, got %d dials", got)
	}
}

func TestContractHandle_UnknownContract(t *testing.T) {
	node := newFakeNode(newLedger(), testAddress(1))
	s := newStack(node, testAddress(0xee).Hex(), ScanConfig{})

	_, err := s.contract.Resolve(context.Background())
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestContractHandle_ArtifactWithoutLetterEvent(t *testing.T) {
	node := newFakeNode(newLedger(), testAddress(1))
	contract, _ := domain.ParseAddress(contractAddressHex())
	node.bindings[contract] = domain.ContractBinding{Artifact: domain.ContractArtifact{
		Name:      "Other",
		Functions: letterArtifact.Functions,
	}}
	s := newStack(node, contractAddressHex(), ScanConfig{})

	_, err := s.contract.Resolve(context.Background())
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestContractHandle_ResolveIsMemoized(t *testing.T) {
	node := newFakeNode(newLedger(), testAddress(1))
	s := newStack(node, contractAddressHex(), ScanConfig{})
	ctx := context.Background()

	first, err := s.contract.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	delete(node.bindings, first.Address)

	second, err := s.contract.Resolve(ctx)
	if err != nil {
		t.Fatalf("second resolve should be served from cache: %v", err)
	}
	if second.Address != first.Address || second.Artifact.Name != "XmasLetterbox" {
		t.Errorf("unexpected binding %+v", second)
	}
}
