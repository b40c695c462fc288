package domain

// TxStatus is the finalized outcome of a submitted transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
)

// TransactionReceipt represents a finalized transaction.
type TransactionReceipt struct {
	TxHash      string   `json:"tx_hash"`
	Status      TxStatus `json:"status"`
	BlockNumber uint64   `json:"block_number"`
	Reason      string   `json:"reason,omitempty"`
}

// Call is a private function call submitted on behalf of From.
type Call struct {
	From     Address
	To       Address
	Selector string
	Args     []FieldValue
}
