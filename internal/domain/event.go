package domain

// EventRecord is a raw private event as returned to a viewer that can
// decrypt it. Values are still field-encoded.
type EventRecord struct {
	BlockNumber uint64
	TxHash      string
	EventIndex  uint64
	Values      []FieldValue
}

// EventQuery selects private events of one type over the block window
// [FromBlock, FromBlock+NumBlocks), visible to any of Viewers.
type EventQuery struct {
	Contract  Address
	Event     EventABI
	FromBlock uint64
	NumBlocks uint64
	Viewers   []Address
}
