package domain

// Letter is a message recovered from a private event addressed to the
// scanning account.
type Letter struct {
	Message     string `json:"message"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash,omitempty"`
	EventIndex  uint64 `json:"event_index"`
}

// StoredLetter is a letter persisted in a recipient's inbox.
type StoredLetter struct {
	Letter
	Recipient string `json:"recipient"`
}
