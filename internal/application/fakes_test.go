package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"letterbox/internal/domain"
)

var letterArtifact = domain.ContractArtifact{
	Name: "XmasLetterbox",
	Functions: []domain.FunctionABI{
		{Name: SendLetterFunction, Selector: "0x5e1d0a11"},
	},
	Events: []domain.EventABI{
		{Name: LetterEvent, Selector: "0x1e77e700", Fields: []string{LetterMessageField}},
	},
}

func testAddress(n byte) domain.Address {
	var a domain.Address
	a[31] = n
	return a
}

func contractAddressHex() string {
	return testAddress(0xc0).Hex()
}

type ledgerEvent struct {
	record    domain.EventRecord
	recipient domain.Address
}

// ledger is an in-memory chain shared by every fake node. One block per tx.
type ledger struct {
	mu       sync.Mutex
	block    uint64
	events   []ledgerEvent
	receipts map[string]domain.TransactionReceipt
	failNext bool
}

func newLedger() *ledger {
	return &ledger{receipts: make(map[string]domain.TransactionReceipt)}
}

// mine appends an empty block.
func (l *ledger) mine() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.block++
}

// inject records a raw event for recipient in a new block.
func (l *ledger) inject(recipient domain.Address, values ...domain.FieldValue) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.block++
	l.events = append(l.events, ledgerEvent{
		record: domain.EventRecord{
			BlockNumber: l.block,
			TxHash:      fmt.Sprintf("0xinjected%d", l.block),
			Values:      values,
		},
		recipient: recipient,
	})
	return l.block
}

type fakeNode struct {
	ledger   *ledger
	accounts []domain.Address
	bindings map[domain.Address]domain.ContractBinding

	pendingPolls int

	sendCalls    atomic.Int32
	receiptCalls atomic.Int32
	eventCalls   atomic.Int32
	eventQueries []domain.EventQuery
	sendErr      error
	eventsErr    error
	closed       atomic.Bool
}

func newFakeNode(l *ledger, accounts ...domain.Address) *fakeNode {
	contract, _ := domain.ParseAddress(contractAddressHex())
	return &fakeNode{
		ledger:   l,
		accounts: accounts,
		bindings: map[domain.Address]domain.ContractBinding{
			contract: {Address: contract, Artifact: letterArtifact},
		},
	}
}

func (n *fakeNode) NodeInfo(ctx context.Context) (domain.NodeInfo, error) {
	return domain.NodeInfo{Version: "test", ChainID: 31337}, nil
}

func (n *fakeNode) RegisteredAccounts(ctx context.Context) ([]domain.Address, error) {
	return n.accounts, nil
}

func (n *fakeNode) ContractBinding(ctx context.Context, address domain.Address) (domain.ContractBinding, bool, error) {
	binding, ok := n.bindings[address]
	return binding, ok, nil
}

func (n *fakeNode) SendCall(ctx context.Context, call domain.Call) (string, error) {
	n.sendCalls.Add(1)
	if n.sendErr != nil {
		return "", n.sendErr
	}
	if len(call.Args) != 2 {
		return "", errors.New("send_letter takes two arguments")
	}
	var recipient domain.Address
	b := call.Args[0].Bytes()
	copy(recipient[:], b[:])

	l := n.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	l.block++
	txHash := fmt.Sprintf("0xtx%d", l.block)
	status := domain.TxStatusSuccess
	if l.failNext {
		status = domain.TxStatusFailed
		l.failNext = false
	} else {
		l.events = append(l.events, ledgerEvent{
			record: domain.EventRecord{
				BlockNumber: l.block,
				TxHash:      txHash,
				Values:      []domain.FieldValue{call.Args[1]},
			},
			recipient: recipient,
		})
	}
	l.receipts[txHash] = domain.TransactionReceipt{TxHash: txHash, Status: status, BlockNumber: l.block}
	return txHash, nil
}

func (n *fakeNode) TxReceipt(ctx context.Context, txHash string) (domain.TransactionReceipt, bool, error) {
	calls := n.receiptCalls.Add(1)
	if int(calls) <= n.pendingPolls {
		return domain.TransactionReceipt{}, false, nil
	}
	n.ledger.mu.Lock()
	defer n.ledger.mu.Unlock()
	receipt, ok := n.ledger.receipts[txHash]
	return receipt, ok, nil
}

func (n *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	n.ledger.mu.Lock()
	defer n.ledger.mu.Unlock()
	return n.ledger.block, nil
}

func (n *fakeNode) PrivateEvents(ctx context.Context, query domain.EventQuery) ([]domain.EventRecord, error) {
	n.eventCalls.Add(1)
	if n.eventsErr != nil {
		return nil, n.eventsErr
	}
	n.ledger.mu.Lock()
	defer n.ledger.mu.Unlock()
	n.eventQueries = append(n.eventQueries, query)
	var out []domain.EventRecord
	for _, ev := range n.ledger.events {
		if ev.record.BlockNumber < query.FromBlock || ev.record.BlockNumber >= query.FromBlock+query.NumBlocks {
			continue
		}
		for _, viewer := range query.Viewers {
			if viewer == ev.recipient {
				out = append(out, ev.record)
				break
			}
		}
	}
	return out, nil
}

func (n *fakeNode) Close() {
	n.closed.Store(true)
}

// countingDialer hands out node and counts dials.
type countingDialer struct {
	node  Node
	err   error
	delay time.Duration
	dials atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, url string) (Node, error) {
	d.dials.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.node, nil
}

type stack struct {
	dialer   *countingDialer
	sessions *SessionManager
	contract *ContractHandle
	sender   *LetterSender
	scanner  *LetterScanner
}

func newStack(node Node, contractAddress string, scan ScanConfig) *stack {
	dialer := &countingDialer{node: node}
	sessions, err := NewSessionManager("http://node.test", dialer.Dial)
	if err != nil {
		panic(err)
	}
	contract, err := NewContractHandle(contractAddress, sessions)
	if err != nil {
		panic(err)
	}
	sender, err := NewLetterSender(sessions, contract, nil, SenderConfig{ReceiptPollInterval: time.Millisecond})
	if err != nil {
		panic(err)
	}
	scanner, err := NewLetterScanner(sessions, contract, nil, scan)
	if err != nil {
		panic(err)
	}
	return &stack{dialer: dialer, sessions: sessions, contract: contract, sender: sender, scanner: scanner}
}

func messages(letters []domain.Letter) []string {
	out := make([]string, 0, len(letters))
	for _, l := range letters {
		out = append(out, l.Message)
	}
	return out
}

func repeat(n int) string {
	return strings.Repeat("x", n)
}
