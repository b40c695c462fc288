package application

import (
	"context"
	"errors"
	"log/slog"

	"letterbox/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ScanObserver is notified after each completed scan.
type ScanObserver interface {
	OnLatestBlock(block uint64)
	OnScanCompleted(fromBlock, toBlock uint64, letterCount int)
}

// ScanConfig sets the default window used by FetchAll and the page size of
// each node query. A zero FromBlock scans from genesis.
type ScanConfig struct {
	FromBlock uint64
	NumBlocks uint64
	PageSize  uint64
}

// LetterScanner reads the letters addressed to the session's default
// account. Events are returned in ledger order; overlapping windows are not
// deduplicated.
type LetterScanner struct {
	sessions *SessionManager
	contract *ContractHandle
	observer ScanObserver
	cfg      ScanConfig
}

func NewLetterScanner(sessions *SessionManager, contract *ContractHandle, observer ScanObserver, cfg ScanConfig) (*LetterScanner, error) {
	if sessions == nil || contract == nil {
		return nil, errors.New("scanner dependencies must not be nil")
	}
	if cfg.NumBlocks == 0 {
		cfg.NumBlocks = 1000
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 100
	}
	return &LetterScanner{sessions: sessions, contract: contract, observer: observer, cfg: cfg}, nil
}

func (s *LetterScanner) Config() ScanConfig {
	return s.cfg
}

// FetchAll scans the configured default window.
func (s *LetterScanner) FetchAll(ctx context.Context) ([]domain.Letter, error) {
	return s.FetchRange(ctx, s.cfg.FromBlock, s.cfg.NumBlocks)
}

// FetchRange scans [fromBlock, fromBlock+numBlocks). The window is clamped
// to the chain tip and queried in pages. No matching events yields an empty
// slice, not an error.
func (s *LetterScanner) FetchRange(ctx context.Context, fromBlock, numBlocks uint64) (letters []domain.Letter, err error) {
	ctx, span := otel.Tracer("letterbox/application").Start(ctx, "letters.scan", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.Int64("scan.from_block", int64(fromBlock)),
		attribute.Int64("scan.num_blocks", int64(numBlocks)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("scan.letters", len(letters)))
		}
		span.End()
	}()

	session, err := s.sessions.Connect(ctx)
	if err != nil {
		return nil, err
	}
	binding, err := s.contract.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	viewer, err := session.DefaultAccount()
	if err != nil {
		return nil, err
	}
	event, _ := binding.Artifact.Event(LetterEvent)
	slot, _ := event.FieldIndex(LetterMessageField)

	letters = []domain.Letter{}
	if numBlocks == 0 {
		return letters, nil
	}
	latest, err := session.Node.BlockNumber(ctx)
	if err != nil {
		return nil, classify(err, domain.KindConnection, "fetch block number")
	}
	if s.observer != nil {
		s.observer.OnLatestBlock(latest)
	}
	end := fromBlock + numBlocks
	if end < fromBlock || end > latest+1 {
		end = latest + 1
	}

	for page := fromBlock; page < end; page += s.cfg.PageSize {
		size := s.cfg.PageSize
		if page+size > end || page+size < page {
			size = end - page
		}
		records, err := session.Node.PrivateEvents(ctx, domain.EventQuery{
			Contract:  binding.Address,
			Event:     event,
			FromBlock: page,
			NumBlocks: size,
			Viewers:   []domain.Address{viewer},
		})
		if err != nil {
			return nil, classify(err, domain.KindConnection, "query private events")
		}
		for _, record := range records {
			letter, err := letterFromRecord(record, slot)
			if err != nil {
				return nil, err
			}
			letters = append(letters, letter)
		}
	}

	if end > fromBlock {
		slog.Debug("letters scanned", "from", fromBlock, "to", end-1, "letters", len(letters))
		if s.observer != nil {
			s.observer.OnScanCompleted(fromBlock, end-1, len(letters))
		}
	}
	return letters, nil
}

func letterFromRecord(record domain.EventRecord, slot int) (domain.Letter, error) {
	if slot >= len(record.Values) {
		return domain.Letter{}, domain.NewError(domain.KindDecode, "event in tx "+record.TxHash+" has no message slot")
	}
	message, err := domain.DecodeText(record.Values[slot])
	if err != nil {
		return domain.Letter{}, domain.WrapError(domain.KindDecode, "decode letter in tx "+record.TxHash, err)
	}
	return domain.Letter{
		Message:     message,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		EventIndex:  record.EventIndex,
	}, nil
}
