package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"letterbox/internal/domain"
)

type memStore struct {
	letters map[string][]domain.StoredLetter
	seen    map[string]bool
	cursor  map[string]uint64
}

func newMemStore() *memStore {
	return &memStore{
		letters: make(map[string][]domain.StoredLetter),
		seen:    make(map[string]bool),
		cursor:  make(map[string]uint64),
	}
}

func (m *memStore) StoreLetters(ctx context.Context, recipient string, letters []domain.Letter) (int, error) {
	stored := 0
	for _, letter := range letters {
		key := fmt.Sprintf("%s/%d/%s/%d", recipient, letter.BlockNumber, letter.TxHash, letter.EventIndex)
		if m.seen[key] {
			continue
		}
		m.seen[key] = true
		m.letters[recipient] = append(m.letters[recipient], domain.StoredLetter{Letter: letter, Recipient: recipient})
		stored++
	}
	return stored, nil
}

func (m *memStore) QueryLetters(ctx context.Context, filter LetterQueryFilter) ([]domain.StoredLetter, error) {
	return m.letters[filter.Recipient], nil
}

func (m *memStore) LastScannedBlock(ctx context.Context, recipient string) (uint64, bool, error) {
	block, ok := m.cursor[recipient]
	return block, ok, nil
}

func (m *memStore) SetLastScannedBlock(ctx context.Context, recipient string, block uint64) error {
	m.cursor[recipient] = block
	return nil
}

func (m *memStore) ClearLastScannedBlock(ctx context.Context, recipient string) error {
	delete(m.cursor, recipient)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

type memStream struct {
	published []domain.Letter
	rewinds   []uint64
}

func (m *memStream) PublishRewind(ctx context.Context, recipient string, fromBlock uint64) error {
	m.rewinds = append(m.rewinds, fromBlock)
	return nil
}

func (m *memStream) PublishLetters(ctx context.Context, recipient string, letters []domain.Letter) error {
	m.published = append(m.published, letters...)
	return nil
}

func TestInbox_SyncOnceStoresAndAdvancesCursor(t *testing.T) {
	l := newLedger()
	bob := testAddress(2)
	for i := 0; i < 5; i++ {
		l.inject(bob, domain.EncodeText(fmt.Sprintf("letter %d", i)))
	}
	s := newStack(newFakeNode(l, bob), contractAddressHex(), ScanConfig{PageSize: 2})
	store := newMemStore()
	stream := &memStream{}
	inbox, err := NewInbox(s.sessions, s.scanner, store, stream, nil, InboxConfig{BatchSize: 2})
	if err != nil {
		t.Fatalf("new inbox: %v", err)
	}
	ctx := context.Background()

	stored, err := inbox.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stored != 5 {
		t.Errorf("expected 5 stored, got %d", stored)
	}
	if cursor := store.cursor[bob.Hex()]; cursor != 5 {
		t.Errorf("expected cursor at 5, got %d", cursor)
	}
	if len(stream.published) != 5 {
		t.Errorf("expected 5 published, got %d", len(stream.published))
	}

	// Caught up: nothing new.
	stored, err = inbox.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if stored != 0 {
		t.Errorf("expected nothing new, got %d", stored)
	}

	l.inject(bob, domain.EncodeText("late letter"))
	stored, err = inbox.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if stored != 1 {
		t.Errorf("expected 1 new letter, got %d", stored)
	}

	letters, err := inbox.Letters(ctx, LetterQueryFilter{})
	if err != nil {
		t.Fatalf("letters: %v", err)
	}
	if len(letters) != 6 || letters[5].Message != "late letter" {
		t.Errorf("unexpected inbox contents %+v", letters)
	}
}

func TestInbox_ZeroStartBlockSyncsFromGenesis(t *testing.T) {
	l := newLedger()
	bob := testAddress(2)
	l.inject(bob, domain.EncodeText("hello"))
	l.mine()
	node := newFakeNode(l, bob)
	s := newStack(node, contractAddressHex(), ScanConfig{})
	store := newMemStore()
	inbox, err := NewInbox(s.sessions, s.scanner, store, nil, nil, InboxConfig{StartBlock: 0})
	if err != nil {
		t.Fatalf("new inbox: %v", err)
	}

	stored, err := inbox.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected 1 stored letter, got %d", stored)
	}
	if len(node.eventQueries) == 0 || node.eventQueries[0].FromBlock != 0 {
		t.Fatalf("expected sync to start at block 0, got %+v", node.eventQueries)
	}
}

func TestInbox_RewindDeduplicates(t *testing.T) {
	l := newLedger()
	bob := testAddress(2)
	l.inject(bob, domain.EncodeText("only once"))
	l.mine()
	s := newStack(newFakeNode(l, bob), contractAddressHex(), ScanConfig{})
	store := newMemStore()
	stream := &memStream{}
	inbox, _ := NewInbox(s.sessions, s.scanner, store, stream, nil, InboxConfig{})
	ctx := context.Background()

	if _, err := inbox.SyncOnce(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := inbox.Rewind(ctx, 0); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if len(stream.rewinds) != 1 || stream.rewinds[0] != 0 {
		t.Fatalf("expected one rewind from genesis, got %v", stream.rewinds)
	}
	if _, ok := store.cursor[bob.Hex()]; ok {
		t.Fatalf("expected cursor to be cleared")
	}
	stored, err := inbox.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if stored != 0 {
		t.Errorf("expected overlapping rescan to store nothing, got %d", stored)
	}
	if len(store.letters[bob.Hex()]) != 1 {
		t.Errorf("expected a single stored letter, got %d", len(store.letters[bob.Hex()]))
	}
}

func TestInbox_RunStopsOnCancel(t *testing.T) {
	l := newLedger()
	s := newStack(newFakeNode(l, testAddress(2)), contractAddressHex(), ScanConfig{})
	inbox, _ := NewInbox(s.sessions, s.scanner, newMemStore(), nil, nil, InboxConfig{PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := inbox.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInbox_RunStopsOnFatalError(t *testing.T) {
	s := newStack(newFakeNode(newLedger()), contractAddressHex(), ScanConfig{})
	inbox, _ := NewInbox(s.sessions, s.scanner, newMemStore(), nil, nil, InboxConfig{PollInterval: time.Millisecond})

	err := inbox.Run(context.Background())
	if !domain.IsKind(err, domain.KindNoAccount) {
		t.Fatalf("expected no-account error, got %v", err)
	}
}
