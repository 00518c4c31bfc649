package payments

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/congo-pay/fxledger/internal/ledger"
	"github.com/congo-pay/fxledger/internal/notification"
	"github.com/congo-pay/fxledger/internal/observability"
)

// Service fronts the ledger engine for HTTP callers. It records metrics for
// every operation and publishes an event once a mutation has committed.
type Service struct {
	engine   *ledger.Engine
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier may be nil.
func NewService(engine *ledger.Engine, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{engine: engine, notifier: notifier, logger: logger}
}

// CreateTransaction applies a deposit, withdrawal or transfer.
func (s *Service) CreateTransaction(ctx context.Context, req ledger.Request) (ledger.Transaction, error) {
	start := time.Now()
	tx, err := s.engine.Apply(ctx, req)
	s.observe("create_transaction", start, err)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.publish(ctx, notification.KindTransactionProcessed, tx)
	return tx, nil
}

// CreateExchange converts funds between two of the user's balances.
func (s *Service) CreateExchange(ctx context.Context, req ledger.ExchangeRequest) (ledger.Transaction, error) {
	start := time.Now()
	tx, err := s.engine.Exchange(ctx, req)
	s.observe("create_exchange", start, err)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.publish(ctx, notification.KindExchangeProcessed, tx)
	return tx, nil
}

// Rollback reverses a processed transaction.
func (s *Service) Rollback(ctx context.Context, id int64) (ledger.Transaction, error) {
	start := time.Now()
	tx, err := s.engine.Rollback(ctx, id)
	s.observe("rollback_transaction", start, err)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.publish(ctx, notification.KindTransactionRollbacked, tx)
	return tx, nil
}

// List returns transactions matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ledger.Filter) ([]ledger.Transaction, error) {
	start := time.Now()
	txs, err := s.engine.List(ctx, filter)
	s.observe("list_transactions", start, err)
	return txs, err
}

func (s *Service) observe(operation string, start time.Time, err error) {
	observability.LedgerLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	observability.LedgerOperations.WithLabelValues(operation, observability.Outcome(err, ledger.IsBusiness)).Inc()
	if err != nil && !ledger.IsBusiness(err) && s.logger != nil {
		s.logger.Error("ledger operation failed", "operation", operation, "error", err)
	}
}

// publish never fails the caller: the mutation has already committed.
func (s *Service) publish(ctx context.Context, kind string, tx ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	msg, err := notification.NewMessage(kind, strconv.FormatInt(tx.SenderID, 10), tx)
	if err == nil {
		err = s.notifier.Send(ctx, msg)
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("notification failed", "kind", kind, "transaction_id", tx.ID, "error", err)
	}
}
