package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/gelap-etl/internal/config"
	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// Notifier publishes a TableWritten message for every stored table.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured table topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Notifier{writer: w, logger: logger}
}

// Notify publishes one message per table in a single WriteMessages call.
// Messages are keyed by building so a house's tables share a partition.
func (n *Notifier) Notify(ctx context.Context, tables []domain.TableSummary) error {
	if len(tables) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(tables))
	for i := range tables {
		msg, err := serializeToMessage(tables[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d table notifications: %w", len(msgs), err)
	}
	n.logger.Debug("table notifications published", "topic", n.writer.Topic, "count", len(msgs))
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a TableSummary into a Kafka message.
func serializeToMessage(summary domain.TableSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize table summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(summary.Building)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table_key", Value: []byte(summary.Key)},
			{Key: "kind", Value: []byte(summary.Kind)},
			{Key: "converted_at", Value: []byte(summary.ConvertedAt.Format(time.RFC3339))},
		},
	}, nil
}
