package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/fxledger/internal/ledger"
)

// TaskState mirrors the lifecycle of a queued generation.
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskStarted TaskState = "STARTED"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
)

const generateTimeout = 5 * time.Minute

// UserSource lists registration times.
type UserSource interface {
	CreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// TransactionSource lists transactions created in a range.
type TransactionSource interface {
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error)
}

// Service generates and caches the weekly report.
type Service struct {
	users  UserSource
	txs    TransactionSource
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewService builds a report service whose artifacts live for ttl.
func NewService(users UserSource, txs TransactionSource, store Store, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		txs:    txs,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the report and stores its JSON and XLSX renditions.
func (s *Service) Generate(ctx context.Context) error {
	now := s.now()
	from, to := Window(now)

	registrations, err := s.users.CreatedBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load registrations: %w", err)
	}
	txs, err := s.txs.TransactionsBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	weeks := Build(now, registrations, txs)
	raw, err := json.Marshal(weeks)
	if err != nil {
		return err
	}
	workbook, err := Excel(weeks)
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}

	if err := s.store.Put(ctx, KeyJSON, raw, s.ttl); err != nil {
		return err
	}
	if err := s.store.Put(ctx, KeyExcel, workbook, s.ttl); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("reports.weekly generated",
			slog.Int("transactions", len(txs)),
			slog.Int("registrations", len(registrations)),
		)
	}
	return nil
}

// JSON returns the cached JSON report.
func (s *Service) JSON(ctx context.Context) ([]byte, bool, error) {
	return s.store.Get(ctx, KeyJSON)
}

// Excel returns the cached workbook.
func (s *Service) Excel(ctx context.Context) ([]byte, bool, error) {
	return s.store.Get(ctx, KeyExcel)
}

// Enqueue starts a background generation and returns its task id.
func (s *Service) Enqueue(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.setState(ctx, id, TaskPending); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()

		_ = s.setState(bg, id, TaskStarted)
		state := TaskSuccess
		if err := s.Generate(bg); err != nil {
			state = TaskFailure
			if s.logger != nil {
				s.logger.Error("reports.weekly failed", "task_id", id, "error", err)
			}
		}
		if err := s.setState(bg, id, state); err != nil && s.logger != nil {
			s.logger.Error("reports.task state not saved", "task_id", id, "error", err)
		}
	}()
	return id, nil
}

// Status returns the state of a queued generation.
func (s *Service) Status(ctx context.Context, id string) (TaskState, bool, error) {
	raw, ok, err := s.store.Get(ctx, taskPrefix+id)
	if err != nil || !ok {
		return "", ok, err
	}
	return TaskState(raw), true, nil
}

// Wait blocks until queued generations finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) setState(ctx context.Context, id string, state TaskState) error {
	ttl := s.ttl
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return s.store.Put(ctx, taskPrefix+id, []byte(state), ttl)
}
