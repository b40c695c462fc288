package pxerpc

import (
	"letterbox/internal/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Receipt statuses reported by the node.
const (
	statusPending          = "pending"
	statusSuccess          = "success"
	statusDropped          = "dropped"
	statusAppLogicReverted = "app_logic_reverted"
	statusTeardownReverted = "teardown_reverted"
	statusBothReverted     = "both_reverted"
)

type rpcNodeInfo struct {
	NodeVersion string         `json:"nodeVersion"`
	ChainID     hexutil.Uint64 `json:"chainId"`
}

type rpcAccount struct {
	Address domain.Address `json:"address"`
}

type rpcContractMetadata struct {
	ContractInstance *rpcContractInstance `json:"contractInstance"`
}

type rpcContractInstance struct {
	Address                domain.Address `json:"address"`
	CurrentContractClassID string         `json:"currentContractClassId"`
}

type rpcContractClassMetadata struct {
	Artifact *domain.ContractArtifact `json:"artifact"`
}

type rpcCall struct {
	From     domain.Address      `json:"from"`
	To       domain.Address      `json:"to"`
	Selector string              `json:"selector"`
	Args     []domain.FieldValue `json:"args"`
}

type rpcReceipt struct {
	TxHash      string         `json:"txHash"`
	Status      string         `json:"status"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	Error       string         `json:"error,omitempty"`
}

type rpcEventMetadata struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

type rpcEvent struct {
	BlockNumber hexutil.Uint64      `json:"blockNumber"`
	TxHash      string              `json:"txHash"`
	EventIndex  hexutil.Uint64      `json:"eventIndex"`
	Values      []domain.FieldValue `json:"values"`
}
