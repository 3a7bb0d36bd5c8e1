package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Joffythetrophy/Casino-savings/internal/service"
	"github.com/Joffythetrophy/Casino-savings/internal/treasury"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes one message per record, keyed by user so a user's
// records stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

var _ service.RecordPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// NewKafkaWriter returns a synchronous writer so publish failures reach the
// caller.
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec treasury.TransactionRecord) error {
	payload, err := encode(rec)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.User),
		Value: payload,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "transaction_type", Value: []byte(rec.TransactionType)},
			{Key: "record_id", Value: []byte(rec.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", rec.ID, err)
	}
	return nil
}
