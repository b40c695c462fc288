package domain

// FunctionABI names a callable contract function.
type FunctionABI struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// EventABI describes an event type and the order of its value slots.
type EventABI struct {
	Name     string   `json:"name"`
	Selector string   `json:"selector"`
	Fields   []string `json:"fields"`
}

// FieldIndex returns the slot position of the named event field.
func (e EventABI) FieldIndex(name string) (int, bool) {
	for i, field := range e.Fields {
		if field == name {
			return i, true
		}
	}
	return 0, false
}

// ContractArtifact is the interface description of a contract class.
type ContractArtifact struct {
	Name      string        `json:"name"`
	Functions []FunctionABI `json:"functions"`
	Events    []EventABI    `json:"events"`
}

func (a ContractArtifact) Function(name string) (FunctionABI, bool) {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionABI{}, false
}

func (a ContractArtifact) Event(name string) (EventABI, bool) {
	for _, ev := range a.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return EventABI{}, false
}

// ContractBinding is a resolved contract address plus its artifact.
type ContractBinding struct {
	Address  Address
	Artifact ContractArtifact
}

// NodeInfo is reported by the node during the connection handshake.
type NodeInfo struct {
	Version string `json:"node_version"`
	ChainID uint64 `json:"chain_id"`
}
