package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"letterbox/internal/domain"
	"letterbox/internal/infrastructure/telemetry"
	"letterbox/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTopic = "letterbox-letters"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes inbox letters to a single topic keyed by recipient.
type Producer struct {
	writer messageWriter
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           500 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) PublishLetters(ctx context.Context, recipient string, letters []domain.Letter) error {
	if len(letters) == 0 {
		return nil
	}
	tracer := otel.Tracer("letterbox/kafka")
	messages := make([]kafka.Message, 0, len(letters))
	spans := make([]trace.Span, 0, len(letters))
	for _, letter := range letters {
		traceCtx, traceIDHex := newTraceContext(ctx)
		traceCtx, span := tracer.Start(traceCtx, "inbox.publish_letter", trace.WithSpanKind(trace.SpanKindProducer))
		span.SetAttributes(
			attribute.Int64("block.number", int64(letter.BlockNumber)),
			attribute.Int64("event.index", int64(letter.EventIndex)),
			attribute.String("tx.hash", letter.TxHash),
		)

		payload, err := streaming.Encode(streaming.Message{
			Type:        streaming.MessageTypeLetter,
			Recipient:   recipient,
			TraceID:     traceIDHex,
			BlockNumber: letter.BlockNumber,
			TxHash:      letter.TxHash,
			EventIndex:  letter.EventIndex,
			Message:     letter.Message,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			endAll(spans, err)
			return err
		}
		headers := make([]kafka.Header, 0, 2)
		telemetry.InjectKafkaHeaders(traceCtx, &headers)
		messages = append(messages, kafka.Message{
			Topic:   p.topic,
			Key:     []byte(strings.ToLower(recipient)),
			Value:   payload,
			Headers: headers,
		})
		spans = append(spans, span)
	}
	err := p.writer.WriteMessages(ctx, messages...)
	endAll(spans, err)
	return err
}

func (p *Producer) PublishRewind(ctx context.Context, recipient string, fromBlock uint64) error {
	payload, err := streaming.Encode(streaming.Message{
		Type:      streaming.MessageTypeRewind,
		Recipient: recipient,
		FromBlock: fromBlock,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(strings.ToLower(recipient)),
		Value: payload,
	})
}

func newTraceContext(ctx context.Context) (context.Context, string) {
	traceID, traceIDHex, ok := telemetry.NewTraceID()
	if !ok {
		return ctx, ""
	}
	spanCtx, ok := telemetry.NewSpanContext(traceID)
	if !ok {
		return ctx, traceIDHex
	}
	return trace.ContextWithSpanContext(ctx, spanCtx), traceIDHex
}

func endAll(spans []trace.Span, err error) {
	for _, span := range spans {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
