// Package ledger is the financial ledger engine: account balances, the
// transaction state machine and the credit card sub-ledger (limits,
// invoices, installments and payments).
//
// Every mutating operation runs inside one UnitOfWork. Services never keep
// state between calls; persistence, event publishing and time are injected
// through Deps.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
)

var (
	ledgerTracer           = otel.Tracer("finledger/ledger")
	ledgerMeter            = otel.Meter("finledger/ledger")
	transactionsApplied, _ = ledgerMeter.Int64Counter("ledger.transactions.applied",
		metric.WithDescription("Transactions whose balance effect was applied or reversed"),
	)
	paymentsApplied, _ = ledgerMeter.Int64Counter("ledger.payments.applied",
		metric.WithDescription("Invoice payments applied by type"),
	)
)

// Store gives access to every repository inside one unit of work.
type Store interface {
	Accounts() account.Repository
	Transactions() transaction.Repository
	CardConfigs() creditcard.ConfigRepository
	Invoices() creditcard.InvoiceRepository
	Installments() creditcard.InstallmentRepository
	Payments() creditcard.PaymentRepository
}

// UnitOfWork groups reads and writes that commit or roll back together.
//
// Run may call fn more than once when the backend retries a serialization
// failure, so fn must not keep side effects outside the Store.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	View(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Deps are the collaborators of the engine.
type Deps struct {
	UnitOfWork UnitOfWork
	Publisher  EventPublisher
	Logger     zerolog.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
	// SweepConcurrency bounds the invoices a maintenance run processes at
	// once. Zero means 4.
	SweepConcurrency int
}

// Engine bundles the ledger services. They share one core and may be used
// concurrently.
type Engine struct {
	Accounts     *AccountService
	Transactions *TransactionService
	Cards        *CardService
	Limits       *LimitTracker
	Invoices     *InvoiceService
	Installments *InstallmentService
	Payments     *PaymentService
}

// New wires an Engine.
func New(d Deps) *Engine {
	c := &core{
		uow:        d.UnitOfWork,
		publisher:  d.Publisher,
		log:        d.Logger.With().Str("component", "ledger").Logger(),
		now:        d.Now,
		sweepLimit: d.SweepConcurrency,
	}
	if c.publisher == nil {
		c.publisher = NopPublisher{}
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.sweepLimit <= 0 {
		c.sweepLimit = defaultSweepConcurrency
	}

	return &Engine{
		Accounts:     &AccountService{c},
		Transactions: &TransactionService{c},
		Cards:        &CardService{c},
		Limits:       &LimitTracker{c},
		Invoices:     &InvoiceService{c},
		Installments: &InstallmentService{c},
		Payments:     &PaymentService{c},
	}
}

type core struct {
	uow        UnitOfWork
	publisher  EventPublisher
	log        zerolog.Logger
	now        func() time.Time
	sweepLimit int
}

// unit is the per-attempt state of one unit of work.
type unit struct {
	Store
	rc     tenant.RequestContext
	now    time.Time
	events []Event
}

func (u *unit) emit(typ EventType, entityID int64, data any) {
	u.events = append(u.events, Event{
		Type:       typ,
		CompanyID:  u.rc.CompanyID,
		EntityID:   entityID,
		OccurredAt: u.now,
		Data:       data,
	})
}

// mutate runs fn in a read-write unit of work for a caller allowed to
// write, then publishes the events fn emitted.
func (c *core) mutate(ctx context.Context, rc tenant.RequestContext, op string, fn func(ctx context.Context, u *unit) error) error {
	if err := authorizeWrite(rc); err != nil {
		return err
	}

	ctx, span := c.startSpan(ctx, rc, op)
	defer span.End()

	var last *unit
	err := c.uow.Run(ctx, func(ctx context.Context, s Store) error {
		last = &unit{Store: s, rc: rc, now: c.now()}
		return fn(ctx, last)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.publish(ctx, last.events)
	return nil
}

// authorizeWrite rejects callers without a complete identity or write role.
// Operations that check their parameters before the unit of work call it
// first so identity errors win over validation errors.
func authorizeWrite(rc tenant.RequestContext) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	if !rc.CanWrite() {
		return tenant.ErrAccessDenied
	}
	return nil
}

// read runs fn in a read-only unit of work.
func (c *core) read(ctx context.Context, rc tenant.RequestContext, op string, fn func(ctx context.Context, u *unit) error) error {
	if err := rc.Validate(); err != nil {
		return err
	}

	ctx, span := c.startSpan(ctx, rc, op)
	defer span.End()

	err := c.uow.View(ctx, func(ctx context.Context, s Store) error {
		return fn(ctx, &unit{Store: s, rc: rc, now: c.now()})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *core) startSpan(ctx context.Context, rc tenant.RequestContext, op string) (context.Context, trace.Span) {
	return ledgerTracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.Int64("company.id", rc.CompanyID),
		attribute.Int64("user.id", rc.UserID),
	))
}

// publish hands committed events to the publisher. A publishing failure
// cannot undo the commit, so it is only logged.
func (c *core) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	if err := c.publisher.Publish(ctx, events...); err != nil {
		c.log.Error().Err(err).Int("events", len(events)).Msg("failed to publish ledger events")
	}
}

// getAccount loads an account owned by the caller's company.
func (u *unit) getAccount(ctx context.Context, id int64) (*account.Account, error) {
	a, err := u.Accounts().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(a.CompanyID); err != nil {
		return nil, err
	}
	return a, nil
}

// lockAccount is getAccount holding the row lock.
func (u *unit) lockAccount(ctx context.Context, id int64) (*account.Account, error) {
	a, err := u.Accounts().LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(a.CompanyID); err != nil {
		return nil, err
	}
	return a, nil
}

// lockAccounts locks ids in ascending order, the lock order every
// operation follows before touching card configs and invoices.
func (u *unit) lockAccounts(ctx context.Context, ids ...int64) (map[int64]*account.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked := make(map[int64]*account.Account, len(sorted))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", id, err)
		}
		locked[id] = a
	}
	return locked, nil
}

func (u *unit) getTransaction(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, err := u.Transactions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(t.CompanyID); err != nil {
		return nil, err
	}
	return t, nil
}

func (u *unit) lockTransaction(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, err := u.Transactions().LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(t.CompanyID); err != nil {
		return nil, err
	}
	return t, nil
}

func (u *unit) lockConfig(ctx context.Context, accountID int64) (*creditcard.Config, error) {
	cfg, err := u.CardConfigs().LockByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(cfg.CompanyID); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (u *unit) getInvoice(ctx context.Context, id int64) (*creditcard.Invoice, error) {
	inv, err := u.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := u.rc.Authorize(inv.CompanyID); err != nil {
		return nil, err
	}
	return inv, nil
}
