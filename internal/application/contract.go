package application

import (
	"context"
	"errors"
	"strings"
	"sync"

	"letterbox/internal/domain"
)

// ContractHandle resolves the letterbox contract once per process.
type ContractHandle struct {
	address  string
	sessions *SessionManager
	mu       sync.Mutex
	binding  *domain.ContractBinding
}

func NewContractHandle(address string, sessions *SessionManager) (*ContractHandle, error) {
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	return &ContractHandle{address: strings.TrimSpace(address), sessions: sessions}, nil
}

// Resolve returns the contract binding. A missing or malformed address is
// reported before the node is contacted.
func (h *ContractHandle) Resolve(ctx context.Context) (domain.ContractBinding, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.binding != nil {
		return *h.binding, nil
	}

	if h.address == "" {
		return domain.ContractBinding{}, domain.NewError(domain.KindConfiguration, "contract address not configured; set CONTRACT_ADDRESS")
	}
	address, err := domain.ParseAddress(h.address)
	if err != nil {
		return domain.ContractBinding{}, domain.WrapError(domain.KindConfiguration, "invalid CONTRACT_ADDRESS", err)
	}

	session, err := h.sessions.Connect(ctx)
	if err != nil {
		return domain.ContractBinding{}, err
	}
	binding, ok, err := session.Node.ContractBinding(ctx, address)
	if err != nil {
		return domain.ContractBinding{}, classify(err, domain.KindConnection, "resolve contract")
	}
	if !ok {
		return domain.ContractBinding{}, domain.NewError(domain.KindConfiguration, "contract "+address.Hex()+" is not registered with the node")
	}
	if _, ok := binding.Artifact.Function(SendLetterFunction); !ok {
		return domain.ContractBinding{}, domain.NewError(domain.KindConfiguration, "contract has no "+SendLetterFunction+" function")
	}
	event, ok := binding.Artifact.Event(LetterEvent)
	if !ok {
		return domain.ContractBinding{}, domain.NewError(domain.KindConfiguration, "contract has no "+LetterEvent+" event")
	}
	if _, ok := event.FieldIndex(LetterMessageField); !ok {
		return domain.ContractBinding{}, domain.NewError(domain.KindConfiguration, LetterEvent+" event has no "+LetterMessageField+" field")
	}

	binding.Address = address
	h.binding = &binding
	return binding, nil
}
