package pxerpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"letterbox/internal/application"
	"letterbox/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client talks JSON-RPC to a private execution node.
type Client struct {
	url string
	rpc *rpc.Client
}

type Config struct {
	URL string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("node url is required")
	}
	client, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, domain.WrapError(domain.KindConnection, "dial "+cfg.URL, err)
	}
	return &Client{url: cfg.URL, rpc: client}, nil
}

// NewClientFromRPC wraps an existing connection, e.g. an in-process server.
func NewClientFromRPC(url string, client *rpc.Client) *Client {
	return &Client{url: url, rpc: client}
}

// Dial satisfies application.Dialer.
func Dial(ctx context.Context, url string) (application.Node, error) {
	client, err := NewClient(ctx, Config{URL: url})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) NodeInfo(ctx context.Context) (domain.NodeInfo, error) {
	var result rpcNodeInfo
	if err := c.call(ctx, &result, "pxe_getNodeInfo"); err != nil {
		return domain.NodeInfo{}, err
	}
	return domain.NodeInfo{Version: result.NodeVersion, ChainID: uint64(result.ChainID)}, nil
}

func (c *Client) RegisteredAccounts(ctx context.Context) ([]domain.Address, error) {
	var result []rpcAccount
	if err := c.call(ctx, &result, "pxe_getRegisteredAccounts"); err != nil {
		return nil, err
	}
	accounts := make([]domain.Address, 0, len(result))
	for _, account := range result {
		accounts = append(accounts, account.Address)
	}
	return accounts, nil
}

func (c *Client) ContractBinding(ctx context.Context, address domain.Address) (domain.ContractBinding, bool, error) {
	var metadata rpcContractMetadata
	if err := c.call(ctx, &metadata, "pxe_getContractMetadata", address); err != nil {
		return domain.ContractBinding{}, false, err
	}
	if metadata.ContractInstance == nil {
		return domain.ContractBinding{}, false, nil
	}
	var class rpcContractClassMetadata
	if err := c.call(ctx, &class, "pxe_getContractClassMetadata", metadata.ContractInstance.CurrentContractClassID, true); err != nil {
		return domain.ContractBinding{}, false, err
	}
	if class.Artifact == nil {
		return domain.ContractBinding{}, false, nil
	}
	return domain.ContractBinding{Address: address, Artifact: *class.Artifact}, true, nil
}

func (c *Client) SendCall(ctx context.Context, call domain.Call) (string, error) {
	var txHash string
	if err := c.call(ctx, &txHash, "pxe_sendCall", rpcCall{
		From:     call.From,
		To:       call.To,
		Selector: call.Selector,
		Args:     call.Args,
	}); err != nil {
		return "", err
	}
	if txHash == "" {
		return "", errors.New("node returned an empty tx hash")
	}
	return txHash, nil
}

func (c *Client) TxReceipt(ctx context.Context, txHash string) (domain.TransactionReceipt, bool, error) {
	var result *rpcReceipt
	if err := c.call(ctx, &result, "pxe_getTxReceipt", txHash); err != nil {
		return domain.TransactionReceipt{}, false, err
	}
	if result == nil {
		return domain.TransactionReceipt{}, false, nil
	}
	receipt := domain.TransactionReceipt{
		TxHash:      result.TxHash,
		BlockNumber: uint64(result.BlockNumber),
	}
	switch result.Status {
	case statusPending, "":
		return domain.TransactionReceipt{}, false, nil
	case statusSuccess:
		receipt.Status = domain.TxStatusSuccess
	default:
		receipt.Status = domain.TxStatusFailed
		receipt.Reason = result.Status
		if result.Error != "" {
			receipt.Reason += ": " + result.Error
		}
	}
	return receipt, true, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, &result, "pxe_getBlockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (c *Client) PrivateEvents(ctx context.Context, query domain.EventQuery) ([]domain.EventRecord, error) {
	var result []rpcEvent
	if err := c.call(ctx, &result, "pxe_getPrivateEvents",
		query.Contract,
		rpcEventMetadata{Name: query.Event.Name, Selector: query.Event.Selector},
		hexutil.Uint64(query.FromBlock),
		hexutil.Uint64(query.NumBlocks),
		query.Viewers,
	); err != nil {
		return nil, err
	}
	records := make([]domain.EventRecord, 0, len(result))
	for _, event := range result {
		records = append(records, domain.EventRecord{
			BlockNumber: uint64(event.BlockNumber),
			TxHash:      event.TxHash,
			EventIndex:  uint64(event.EventIndex),
			Values:      event.Values,
		})
	}
	return records, nil
}

// call classifies failures: transport problems become Connection errors,
// results that fail to unmarshal into domain types are Decode errors naming
// the method, and errors the node reports are returned unclassified for the
// caller to judge.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	err := c.rpc.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch domain.KindOf(err) {
	case "":
	case domain.KindValidation, domain.KindDecode:
		return domain.WrapError(domain.KindDecode, method+": malformed result", err)
	default:
		return err
	}
	var remote rpc.Error
	if errors.As(err, &remote) {
		return fmt.Errorf("%s: node error %d: %w", method, remote.ErrorCode(), err)
	}
	return domain.WrapError(domain.KindConnection, method, err)
}
