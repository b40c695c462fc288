package application

import (
	"context"

	"letterbox/internal/domain"
)

// Node is the private execution node the letterbox talks to.
type Node interface {
	NodeInfo(ctx context.Context) (domain.NodeInfo, error)
	RegisteredAccounts(ctx context.Context) ([]domain.Address, error)
	// ContractBinding returns false when the node does not know the contract.
	ContractBinding(ctx context.Context, address domain.Address) (domain.ContractBinding, bool, error)
	SendCall(ctx context.Context, call domain.Call) (string, error)
	// TxReceipt returns false while the transaction is not final.
	TxReceipt(ctx context.Context, txHash string) (domain.TransactionReceipt, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PrivateEvents(ctx context.Context, query domain.EventQuery) ([]domain.EventRecord, error)
	Close()
}

// Dialer opens a Node for the configured endpoint.
type Dialer func(ctx context.Context, url string) (Node, error)

// Contract surface the letterbox relies on.
const (
	SendLetterFunction = "send_letter"
	LetterEvent        = "XmasLetter"
	LetterMessageField = "message"
)

// classify keeps an existing taxonomy kind and wraps anything else as kind.
func classify(err error, kind domain.Kind, msg string) error {
	if domain.KindOf(err) != "" {
		return err
	}
	return domain.WrapError(kind, msg, err)
}
