package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"letterbox/internal/domain"
)

// InboxStore persists letters per recipient together with a scan cursor.
// StoreLetters must ignore letters it already holds.
type InboxStore interface {
	StoreLetters(ctx context.Context, recipient string, letters []domain.Letter) (int, error)
	QueryLetters(ctx context.Context, filter LetterQueryFilter) ([]domain.StoredLetter, error)
	LastScannedBlock(ctx context.Context, recipient string) (uint64, bool, error)
	SetLastScannedBlock(ctx context.Context, recipient string, block uint64) error
	ClearLastScannedBlock(ctx context.Context, recipient string) error
	Ping(ctx context.Context) error
}

// LetterStream fans newly stored letters out to other consumers.
type LetterStream interface {
	PublishLetters(ctx context.Context, recipient string, letters []domain.Letter) error
	// PublishRewind tells consumers that letters from fromBlock onward will
	// be delivered again.
	PublishRewind(ctx context.Context, recipient string, fromBlock uint64) error
}

type LetterQueryFilter struct {
	Recipient string
	FromBlock *uint64
	ToBlock   *uint64
	Limit     int
}

type InboxObserver interface {
	OnInboxSynced(fromBlock, toBlock uint64, stored int)
}

// InboxConfig controls the sync window. A zero StartBlock syncs from genesis.
type InboxConfig struct {
	StartBlock   uint64
	BatchSize    uint64
	PollInterval time.Duration
}

// Inbox keeps a local copy of the default account's letters by scanning
// forward from a persisted cursor.
type Inbox struct {
	sessions *SessionManager
	scanner  *LetterScanner
	store    InboxStore
	stream   LetterStream
	observer InboxObserver
	cfg      InboxConfig
}

func NewInbox(sessions *SessionManager, scanner *LetterScanner, store InboxStore, stream LetterStream, observer InboxObserver, cfg InboxConfig) (*Inbox, error) {
	if sessions == nil || scanner == nil || store == nil {
		return nil, errors.New("inbox dependencies must not be nil")
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	return &Inbox{sessions: sessions, scanner: scanner, store: store, stream: stream, observer: observer, cfg: cfg}, nil
}

// Run syncs until ctx is cancelled, sleeping between passes once caught up.
func (i *Inbox) Run(ctx context.Context) error {
	for {
		if _, err := i.SyncOnce(ctx); err != nil {
			if domain.IsKind(err, domain.KindConnection) {
				slog.Warn("inbox sync failed, retrying", "err", err)
			} else {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.cfg.PollInterval):
		}
	}
}

// SyncOnce scans from the cursor to the chain tip in BatchSize windows and
// returns the number of newly stored letters.
func (i *Inbox) SyncOnce(ctx context.Context) (int, error) {
	session, err := i.sessions.Connect(ctx)
	if err != nil {
		return 0, err
	}
	recipient, err := session.DefaultAccount()
	if err != nil {
		return 0, err
	}
	key := recipient.Hex()

	current := i.cfg.StartBlock
	if last, ok, err := i.store.LastScannedBlock(ctx, key); err != nil {
		return 0, err
	} else if ok {
		current = last + 1
	}

	latest, err := session.Node.BlockNumber(ctx)
	if err != nil {
		return 0, classify(err, domain.KindConnection, "fetch block number")
	}

	total := 0
	for current <= latest {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		toBlock := current + i.cfg.BatchSize - 1
		if toBlock > latest {
			toBlock = latest
		}
		letters, err := i.scanner.FetchRange(ctx, current, toBlock-current+1)
		if err != nil {
			return total, err
		}
		stored, err := i.store.StoreLetters(ctx, key, letters)
		if err != nil {
			return total, err
		}
		if i.stream != nil && len(letters) > 0 {
			if err := i.stream.PublishLetters(ctx, key, letters); err != nil {
				return total, err
			}
		}
		if err := i.store.SetLastScannedBlock(ctx, key, toBlock); err != nil {
			return total, err
		}
		if i.observer != nil {
			i.observer.OnInboxSynced(current, toBlock, stored)
		}
		slog.Info("inbox batch", "from", current, "to", toBlock, "letters", len(letters), "stored", stored)

		total += stored
		current = toBlock + 1
	}
	return total, nil
}

// Letters returns the stored letters of the default account.
func (i *Inbox) Letters(ctx context.Context, filter LetterQueryFilter) ([]domain.StoredLetter, error) {
	recipient, err := i.sessions.DefaultAccount(ctx)
	if err != nil {
		return nil, err
	}
	filter.Recipient = recipient.Hex()
	return i.store.QueryLetters(ctx, filter)
}

// Rewind makes the next sync rescan from fromBlock.
func (i *Inbox) Rewind(ctx context.Context, fromBlock uint64) error {
	recipient, err := i.sessions.DefaultAccount(ctx)
	if err != nil {
		return err
	}
	key := recipient.Hex()
	if fromBlock <= i.cfg.StartBlock {
		fromBlock = i.cfg.StartBlock
		err = i.store.ClearLastScannedBlock(ctx, key)
	} else {
		err = i.store.SetLastScannedBlock(ctx, key, fromBlock-1)
	}
	if err != nil {
		return err
	}
	slog.Info("inbox rewound", "from", fromBlock)
	if i.stream != nil {
		return i.stream.PublishRewind(ctx, key, fromBlock)
	}
	return nil
}

// NormalizeLetterLimit bounds page sizes for inbox queries.
func NormalizeLetterLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
