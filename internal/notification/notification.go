package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// KindTransactionProcessed is emitted after a deposit, withdrawal or transfer commits.
	KindTransactionProcessed = "transaction.processed"
	// KindTransactionRollbacked is emitted after a rollback commits.
	KindTransactionRollbacked = "transaction.rollbacked"
	// KindExchangeProcessed is emitted after an exchange commits.
	KindExchangeProcessed = "exchange.processed"
)

// Message describes a notification payload.
type Message struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewMessage encodes payload and stamps the message with an id and time.
// key groups related messages, e.g. by account holder.
func NewMessage(kind, key string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:         uuid.NewString(),
		Kind:       kind,
		Key:        key,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"id", message.ID,
		"kind", message.Kind,
		"key", message.Key,
		"payload", string(message.Payload),
	)
	return nil
}
