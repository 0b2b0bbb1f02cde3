// Package memory is an in-process ledger backend. A unit of work runs
// against a private copy of the state which replaces the shared state only
// when the work succeeds, so a failed operation leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
)

type state struct {
	seq          map[string]int64
	accounts     map[int64]*account.Account
	transactions map[int64]*transaction.Transaction
	configs      map[int64]*creditcard.Config // by account ID
	invoices     map[int64]*creditcard.Invoice
	links        map[int64]map[int64]struct{} // invoice ID -> transaction IDs
	installments map[int64]*creditcard.Installment
	shares       map[int64]*creditcard.Share
	payments     map[int64]*creditcard.InvoicePayment
}

func newState() *state {
	return &state{
		seq:          make(map[string]int64),
		accounts:     make(map[int64]*account.Account),
		transactions: make(map[int64]*transaction.Transaction),
		configs:      make(map[int64]*creditcard.Config),
		invoices:     make(map[int64]*creditcard.Invoice),
		links:        make(map[int64]map[int64]struct{}),
		installments: make(map[int64]*creditcard.Installment),
		shares:       make(map[int64]*creditcard.Share),
		payments:     make(map[int64]*creditcard.InvoicePayment),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// clone copies every row. Rows are replaced on write, never mutated in
// place, so copying the structs is enough.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for id, a := range s.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	for id, t := range s.transactions {
		c.transactions[id] = t.Clone()
	}
	for id, cfg := range s.configs {
		cp := *cfg
		c.configs[id] = &cp
	}
	for id, inv := range s.invoices {
		cp := *inv
		c.invoices[id] = &cp
	}
	for id, set := range s.links {
		cp := make(map[int64]struct{}, len(set))
		for tx := range set {
			cp[tx] = struct{}{}
		}
		c.links[id] = cp
	}
	for id, inst := range s.installments {
		cp := *inst
		c.installments[id] = &cp
	}
	for id, sh := range s.shares {
		cp := *sh
		c.shares[id] = &cp
	}
	for id, p := range s.payments {
		cp := *p
		c.payments[id] = &cp
	}
	return c
}

// Store is a ledger.UnitOfWork kept in memory. Units of work are
// serialized and each one copies the whole state, so the store suits
// development and tests, not production volumes.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ ledger.UnitOfWork = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

// Run executes fn on a copy of the state and commits the copy when fn
// returns nil.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, st ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &repos{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View executes fn on a copy of the state that is then discarded.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, st ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()
	return fn(ctx, &repos{st: snapshot})
}

// repos exposes one state through the repository interfaces.
type repos struct {
	st *state
}

func (r *repos) Accounts() account.Repository                   { return accountRepo{r.st} }
func (r *repos) Transactions() transaction.Repository           { return transactionRepo{r.st} }
func (r *repos) CardConfigs() creditcard.ConfigRepository       { return configRepo{r.st} }
func (r *repos) Invoices() creditcard.InvoiceRepository         { return invoiceRepo{r.st} }
func (r *repos) Installments() creditcard.InstallmentRepository { return installmentRepo{r.st} }
func (r *repos) Payments() creditcard.PaymentRepository         { return paymentRepo{r.st} }
