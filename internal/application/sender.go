package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"letterbox/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SendObserver is notified about every send outcome.
type SendObserver interface {
	OnLetterSent(receipt domain.TransactionReceipt)
	OnSendFailed(kind domain.Kind)
}

type SenderConfig struct {
	ReceiptPollInterval time.Duration
}

// LetterSender submits letters. Each Send submits at most one transaction;
// retry policy belongs to the caller.
type LetterSender struct {
	sessions *SessionManager
	contract *ContractHandle
	observer SendObserver
	cfg      SenderConfig
}

func NewLetterSender(sessions *SessionManager, contract *ContractHandle, observer SendObserver, cfg SenderConfig) (*LetterSender, error) {
	if sessions == nil || contract == nil {
		return nil, errors.New("sender dependencies must not be nil")
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = time.Second
	}
	return &LetterSender{sessions: sessions, contract: contract, observer: observer, cfg: cfg}, nil
}

// ValidateLetter checks a letter before anything touches the network.
// Checks run in order and stop at the first failure.
func ValidateLetter(recipient, message string) (domain.Address, error) {
	if strings.TrimSpace(recipient) == "" {
		return domain.Address{}, domain.NewError(domain.KindValidation, "invalid recipient")
	}
	address, err := domain.ParseAddress(recipient)
	if err != nil {
		return domain.Address{}, domain.WrapError(domain.KindValidation, "invalid recipient", err)
	}
	if strings.TrimSpace(message) == "" {
		return domain.Address{}, domain.NewError(domain.KindValidation, "empty message")
	}
	if len(message) > domain.FieldSize {
		return domain.Address{}, domain.NewError(domain.KindValidation, "message too long")
	}
	return address, nil
}

// Send delivers message to recipient and blocks until the transaction is
// final. A receipt with any status other than success is a Transaction error.
func (s *LetterSender) Send(ctx context.Context, recipient, message string) (receipt domain.TransactionReceipt, err error) {
	ctx, span := otel.Tracer("letterbox/application").Start(ctx, "letters.send", trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if s.observer != nil {
				s.observer.OnSendFailed(domain.KindOf(err))
			}
		}
		span.End()
	}()

	to, err := ValidateLetter(recipient, message)
	if err != nil {
		return domain.TransactionReceipt{}, err
	}
	payload := domain.EncodeText(message)

	session, err := s.sessions.Connect(ctx)
	if err != nil {
		return domain.TransactionReceipt{}, err
	}
	binding, err := s.contract.Resolve(ctx)
	if err != nil {
		return domain.TransactionReceipt{}, err
	}
	from, err := session.DefaultAccount()
	if err != nil {
		return domain.TransactionReceipt{}, err
	}
	fn, _ := binding.Artifact.Function(SendLetterFunction)

	txHash, err := session.Node.SendCall(ctx, domain.Call{
		From:     from,
		To:       binding.Address,
		Selector: fn.Selector,
		Args:     []domain.FieldValue{addressField(to), payload},
	})
	if err != nil {
		return domain.TransactionReceipt{}, classify(err, domain.KindTransaction, "letter rejected by node")
	}
	span.SetAttributes(attribute.String("tx.hash", txHash))

	receipt, err = s.waitForReceipt(ctx, session.Node, txHash)
	if err != nil {
		return domain.TransactionReceipt{}, err
	}
	span.SetAttributes(attribute.Int64("block.number", int64(receipt.BlockNumber)))
	if receipt.Status != domain.TxStatusSuccess {
		msg := "letter transaction failed"
		if receipt.Reason != "" {
			msg += ": " + receipt.Reason
		}
		return receipt, domain.NewError(domain.KindTransaction, msg)
	}

	slog.Info("letter sent", "tx", txHash, "block", receipt.BlockNumber)
	if s.observer != nil {
		s.observer.OnLetterSent(receipt)
	}
	return receipt, nil
}

func (s *LetterSender) waitForReceipt(ctx context.Context, node Node, txHash string) (domain.TransactionReceipt, error) {
	for {
		receipt, final, err := node.TxReceipt(ctx, txHash)
		if err != nil {
			return domain.TransactionReceipt{}, classify(err, domain.KindConnection, "fetch receipt for "+txHash)
		}
		if final {
			if receipt.TxHash == "" {
				receipt.TxHash = txHash
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return domain.TransactionReceipt{}, ctx.Err()
		case <-time.After(s.cfg.ReceiptPollInterval):
		}
	}
}

// addressField carries an address as a call argument.
func addressField(address domain.Address) domain.FieldValue {
	value, _ := domain.ParseFieldHex(address.Hex())
	return value
}
