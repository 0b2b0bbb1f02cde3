package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
)

var (
	uowMeter      = otel.Meter("finledger.db")
	uowRetries, _ = uowMeter.Int64Counter("ledger.uow.retries",
		metric.WithDescription("Units of work retried after a serialization failure or deadlock"),
	)
)

const retryBaseDelay = 20 * time.Millisecond

// UnitOfWork runs ledger units of work in PostgreSQL transactions.
type UnitOfWork struct {
	db         *DB
	maxRetries int
	log        zerolog.Logger
}

var _ ledger.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *DB, maxRetries int, log zerolog.Logger) *UnitOfWork {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &UnitOfWork{
		db:         db,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "uow").Logger(),
	}
}

// Run executes fn in a READ COMMITTED transaction. Row locks taken by the
// repositories' Lock methods serialize conflicting writers; a deadlock or
// serialization failure rolls back and runs fn again.
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, s ledger.Store) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}

	for attempt := 0; ; attempt++ {
		err := u.runTx(ctx, opts, fn)
		if err == nil || !isRetryable(err) || attempt >= u.maxRetries {
			return err
		}

		uowRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("db.error", pqCode(err))))
		u.log.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying unit of work")

		delay := retryBaseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// View executes fn in a read-only snapshot.
func (u *UnitOfWork) View(ctx context.Context, fn func(ctx context.Context, s ledger.Store) error) error {
	return u.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (u *UnitOfWork) runTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, s ledger.Store) error) error {
	tx, err := u.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, newStore(querier{ex: tx})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
func isRetryable(err error) bool {
	switch pqCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// isUniqueViolation reports a 23505 error, optionally on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// store hands out repositories bound to one transaction.
type store struct {
	q querier
}

func newStore(q querier) *store {
	return &store{q: q}
}

func (s *store) Accounts() account.Repository                   { return NewAccountRepository(s.q) }
func (s *store) Transactions() transaction.Repository           { return NewTransactionRepository(s.q) }
func (s *store) CardConfigs() creditcard.ConfigRepository       { return NewCardConfigRepository(s.q) }
func (s *store) Invoices() creditcard.InvoiceRepository         { return NewInvoiceRepository(s.q) }
func (s *store) Installments() creditcard.InstallmentRepository { return NewInstallmentRepository(s.q) }
func (s *store) Payments() creditcard.PaymentRepository         { return NewPaymentRepository(s.q) }
