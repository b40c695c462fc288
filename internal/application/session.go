package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"letterbox/internal/domain"
)

// DefaultNodeURL is used when no node endpoint is configured.
const DefaultNodeURL = "https://api.aztec.network/aztec-pxe/3.0.0-devnet.5"

// Session is the connected node plus the accounts registered with it.
type Session struct {
	Node     Node
	Info     domain.NodeInfo
	Accounts []domain.Address
}

// DefaultAccount returns the first registered account.
func (s *Session) DefaultAccount() (domain.Address, error) {
	if len(s.Accounts) == 0 {
		return domain.Address{}, domain.NewError(domain.KindNoAccount, "no accounts registered with the node; register an account first")
	}
	return s.Accounts[0], nil
}

// SessionManager connects to the node once and shares the session.
// A failed connect leaves nothing cached, so the next call retries.
type SessionManager struct {
	url    string
	dial   Dialer
	mu     sync.Mutex
	active *Session
}

func NewSessionManager(url string, dial Dialer) (*SessionManager, error) {
	if dial == nil {
		return nil, errors.New("dialer is required")
	}
	if strings.TrimSpace(url) == "" {
		url = DefaultNodeURL
	}
	return &SessionManager{url: url, dial: dial}, nil
}

func (m *SessionManager) URL() string {
	return m.url
}

// Connect performs the handshake and account discovery on first use.
// Concurrent first callers wait on the same handshake.
func (m *SessionManager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active, nil
	}

	node, err := m.dial(ctx, m.url)
	if err != nil {
		return nil, classify(err, domain.KindConnection, "connect to node")
	}
	info, err := node.NodeInfo(ctx)
	if err != nil {
		node.Close()
		return nil, classify(err, domain.KindConnection, "node handshake")
	}
	accounts, err := node.RegisteredAccounts(ctx)
	if err != nil {
		node.Close()
		return nil, classify(err, domain.KindConnection, "list registered accounts")
	}

	m.active = &Session{Node: node, Info: info, Accounts: accounts}
	slog.Info("node session established",
		"url", m.url,
		"version", info.Version,
		"chain_id", info.ChainID,
		"accounts", len(accounts),
	)
	return m.active, nil
}

// Accounts lists the accounts registered with the node.
func (m *SessionManager) Accounts(ctx context.Context) ([]domain.Address, error) {
	session, err := m.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.Address(nil), session.Accounts...), nil
}

// DefaultAccount is the account letters are sent from and scanned for.
func (m *SessionManager) DefaultAccount(ctx context.Context) (domain.Address, error) {
	session, err := m.Connect(ctx)
	if err != nil {
		return domain.Address{}, err
	}
	return session.DefaultAccount()
}

// Close releases the node connection at process exit.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Node.Close()
		m.active = nil
	}
}
