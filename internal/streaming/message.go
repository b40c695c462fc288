package streaming

import (
	"encoding/json"
	"errors"
)

type MessageType string

const (
	MessageTypeLetter MessageType = "letter"
	MessageTypeRewind MessageType = "rewind"
)

// Message is the wire format of the letter stream. Every message is keyed by
// recipient so a consumer sees one recipient's letters in block order.
type Message struct {
	Type        MessageType `json:"type"`
	Recipient   string      `json:"recipient"`
	TraceID     string      `json:"trace_id,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	EventIndex  uint64      `json:"event_index,omitempty"`
	Message     string      `json:"message,omitempty"`
	FromBlock   uint64      `json:"from_block,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func validate(msg Message) error {
	switch msg.Type {
	case "":
		return errors.New("message type is required")
	case MessageTypeLetter:
		if msg.BlockNumber == 0 {
			return errors.New("block_number is required")
		}
	case MessageTypeRewind:
		// A missing from_block is a rewind to genesis.
	default:
		return errors.New("unknown message type " + string(msg.Type))
	}
	if msg.Recipient == "" {
		return errors.New("recipient is required")
	}
	return nil
}
