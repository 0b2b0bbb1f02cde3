package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
)

// TransactionService is the transaction state machine. COMPLETED
// transactions are reflected in account balances; every status move applies
// or reverses exactly that effect.
type TransactionService struct {
	*core
}

// createOptions tune how a new transaction touches the card sub-ledger.
type createOptions struct {
	// invoiceID links the card side to this invoice instead of the open
	// invoice of the transaction date.
	invoiceID int64
	// skipLimit leaves the card limit untouched; the caller reserves or
	// releases it itself.
	skipLimit bool
	// skipCard keeps the transaction off invoices and limits entirely.
	skipCard bool
}

// Create records a transaction. Without an explicit status it is created
// COMPLETED and applied immediately.
func (s *TransactionService) Create(ctx context.Context, rc tenant.RequestContext, p transaction.CreateParams) (*transaction.Transaction, error) {
	var created *transaction.Transaction
	err := s.mutate(ctx, rc, "transaction.create", func(ctx context.Context, u *unit) error {
		t, err := s.createTransaction(ctx, u, p, createOptions{})
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get retrieves a transaction of the caller's company.
func (s *TransactionService) Get(ctx context.Context, rc tenant.RequestContext, id int64) (*transaction.Transaction, error) {
	var t *transaction.Transaction
	err := s.read(ctx, rc, "transaction.get", func(ctx context.Context, u *unit) error {
		var err error
		t, err = u.getTransaction(ctx, id)
		return err
	})
	return t, err
}

// List returns one page of the company's transactions.
func (s *TransactionService) List(ctx context.Context, rc tenant.RequestContext, f transaction.Filter) (*transaction.Page, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	f.CompanyID = rc.CompanyID
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.Normalized()

	page := &transaction.Page{Page: f.Page, PageSize: f.PageSize}
	err := s.read(ctx, rc, "transaction.list", func(ctx context.Context, u *unit) error {
		items, total, err := u.Transactions().List(ctx, f)
		if err != nil {
			return err
		}
		page.Items = items
		page.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []*transaction.Transaction{}
	}
	return page, nil
}

// Update edits a transaction. For a COMPLETED transaction whose amount,
// date or accounts change, the old effect is reversed and the new one
// applied in the same unit of work.
func (s *TransactionService) Update(ctx context.Context, rc tenant.RequestContext, id int64, p transaction.UpdateParams) (*transaction.Transaction, error) {
	var updated *transaction.Transaction
	err := s.mutate(ctx, rc, "transaction.update", func(ctx context.Context, u *unit) error {
		t, err := u.lockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == transaction.StatusCanceled {
			return transaction.ErrTransactionCanceled
		}
		if err := s.ensureUnmanaged(ctx, u, t); err != nil {
			return err
		}

		next, err := p.Apply(t)
		if err != nil {
			return err
		}
		next.UpdatedAt = u.now
		if p.FromAccountID != nil || p.ToAccountID != nil {
			if _, err := s.checkAccounts(ctx, u, next, false); err != nil {
				return err
			}
		}

		if !t.IsCompleted() || !p.ChangesEffects() {
			if err := u.Transactions().Update(ctx, next); err != nil {
				return err
			}
			updated = next
			u.emit(EventTransactionUpdated, next.ID, next)
			return nil
		}

		if _, err := u.lockAccounts(ctx, append(t.AccountIDs(), next.AccountIDs()...)...); err != nil {
			return err
		}
		if err := s.reverse(ctx, u, t); err != nil {
			return err
		}
		if err := u.Transactions().Update(ctx, next); err != nil {
			return err
		}
		if err := s.apply(ctx, u, next, createOptions{}); err != nil {
			return err
		}
		updated = next
		u.emit(EventTransactionUpdated, next.ID, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStatus moves a transaction along PENDING → COMPLETED → CANCELED.
func (s *TransactionService) UpdateStatus(ctx context.Context, rc tenant.RequestContext, id int64, status transaction.Status) (*transaction.Transaction, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	if !transaction.IsValidStatus(status) {
		return nil, transaction.ErrInvalidStatus
	}

	var updated *transaction.Transaction
	err := s.mutate(ctx, rc, "transaction.update_status", func(ctx context.Context, u *unit) error {
		t, err := u.lockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.ensureUnmanaged(ctx, u, t); err != nil {
			return err
		}
		if err := s.transition(ctx, u, t, status); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a transaction, reversing its effect first when COMPLETED.
func (s *TransactionService) Delete(ctx context.Context, rc tenant.RequestContext, id int64) error {
	return s.mutate(ctx, rc, "transaction.delete", func(ctx context.Context, u *unit) error {
		t, err := u.lockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := s.ensureUnmanaged(ctx, u, t); err != nil {
			return err
		}
		if t.IsCompleted() {
			if err := s.reverse(ctx, u, t); err != nil {
				return err
			}
		}
		if err := u.Transactions().Delete(ctx, t.ID); err != nil {
			return err
		}
		u.emit(EventTransactionDeleted, t.ID, nil)
		return nil
	})
}

// Summarize aggregates the COMPLETED transactions matching f by type,
// category or month.
func (s *TransactionService) Summarize(ctx context.Context, rc tenant.RequestContext, f transaction.Filter, groupBy string) ([]transaction.SummaryRow, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	g, err := transaction.ParseGroupBy(groupBy)
	if err != nil {
		return nil, err
	}
	completed := transaction.StatusCompleted
	f.CompanyID = rc.CompanyID
	f.Status = &completed
	f.Page, f.PageSize = 0, 0
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var items []*transaction.Transaction
	err = s.read(ctx, rc, "transaction.summarize", func(ctx context.Context, u *unit) error {
		var err error
		items, _, err = u.Transactions().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*transaction.SummaryRow)
	for _, t := range items {
		key := summaryKey(t, g)
		row, ok := groups[key]
		if !ok {
			row = &transaction.SummaryRow{Key: key}
			groups[key] = row
		}
		row.Count++
		row.Total = row.Total.Add(t.Amount)
	}

	rows := make([]transaction.SummaryRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func summaryKey(t *transaction.Transaction, g transaction.GroupBy) string {
	switch g {
	case transaction.GroupByType:
		return string(t.Type)
	case transaction.GroupByCategory:
		if t.CategoryID == nil {
			return "uncategorized"
		}
		return strconv.FormatInt(*t.CategoryID, 10)
	default:
		return t.Date.Format("2006-01")
	}
}

// createTransaction validates p, inserts the row and applies it when
// COMPLETED.
func (c *core) createTransaction(ctx context.Context, u *unit, p transaction.CreateParams, opts createOptions) (*transaction.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = transaction.StatusCompleted
	}

	t := &transaction.Transaction{
		CompanyID:     u.rc.CompanyID,
		Description:   strings.TrimSpace(p.Description),
		Amount:        p.Amount,
		Date:          p.Date,
		Type:          p.Type,
		Status:        status,
		FromAccountID: p.FromAccountID,
		ToAccountID:   p.ToAccountID,
		CategoryID:    p.CategoryID,
		Tags:          p.Tags,
		Notes:         p.Notes,
		CreatedBy:     u.rc.UserID,
		CreatedAt:     u.now,
		UpdatedAt:     u.now,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}

	if _, err := c.checkAccounts(ctx, u, t, t.IsCompleted()); err != nil {
		return nil, err
	}
	if err := u.Transactions().Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if t.IsCompleted() {
		if err := c.apply(ctx, u, t, opts); err != nil {
			return nil, err
		}
	}

	u.emit(EventTransactionCreated, t.ID, t)
	c.log.Debug().
		Int64("transaction_id", t.ID).
		Str("type", string(t.Type)).
		Str("status", string(t.Status)).
		Str("amount", t.Amount.String()).
		Msg("transaction created")
	return t, nil
}

// checkAccounts verifies that every referenced account belongs to the
// caller's company and is active. With lock set the rows stay locked.
func (c *core) checkAccounts(ctx context.Context, u *unit, t *transaction.Transaction, lock bool) (map[int64]*account.Account, error) {
	ids := t.AccountIDs()
	var (
		accounts map[int64]*account.Account
		err      error
	)
	if lock {
		accounts, err = u.lockAccounts(ctx, ids...)
		if err != nil {
			return nil, err
		}
	} else {
		accounts = make(map[int64]*account.Account, len(ids))
		for _, id := range ids {
			a, err := u.getAccount(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("account %d: %w", id, err)
			}
			accounts[id] = a
		}
	}
	for _, a := range accounts {
		if !a.IsActive {
			return nil, fmt.Errorf("account %d: %w", a.ID, account.ErrAccountInactive)
		}
	}
	return accounts, nil
}

// transition performs a status move on a locked transaction.
func (c *core) transition(ctx context.Context, u *unit, t *transaction.Transaction, next transaction.Status) error {
	if t.Status == transaction.StatusCanceled {
		return transaction.ErrTransactionCanceled
	}
	if !t.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", transaction.ErrInvalidStatusTransition, t.Status, next)
	}

	switch {
	case t.Status == transaction.StatusPending && next == transaction.StatusCompleted:
		if _, err := c.checkAccounts(ctx, u, t, true); err != nil {
			return err
		}
		t.Status = next
		t.UpdatedAt = u.now
		if err := u.Transactions().Update(ctx, t); err != nil {
			return err
		}
		if err := c.apply(ctx, u, t, createOptions{}); err != nil {
			return err
		}
		u.emit(EventTransactionCompleted, t.ID, t)

	case next == transaction.StatusCanceled:
		if t.IsCompleted() {
			if err := c.reverse(ctx, u, t); err != nil {
				return err
			}
		}
		t.Status = next
		t.UpdatedAt = u.now
		if err := u.Transactions().Update(ctx, t); err != nil {
			return err
		}
		u.emit(EventTransactionCanceled, t.ID, t)
	}

	c.log.Debug().Int64("transaction_id", t.ID).Str("status", string(t.Status)).Msg("transaction status changed")
	return nil
}

// apply adds the effect of a COMPLETED transaction to its accounts. All
// checks run before the first write; card accounts are then attached to an
// invoice and their limit adjusted.
func (c *core) apply(ctx context.Context, u *unit, t *transaction.Transaction, opts createOptions) error {
	effects := t.Effects()
	ids := make([]int64, 0, len(effects))
	for _, e := range effects {
		ids = append(ids, e.AccountID)
	}
	accounts, err := u.lockAccounts(ctx, ids...)
	if err != nil {
		return err
	}

	for _, e := range effects {
		a := accounts[e.AccountID]
		if e.Delta.IsNegative() && !a.CanDebit(e.Delta.Neg()) {
			return fmt.Errorf("account %d: %w", a.ID, account.ErrNegativeBalanceNotAllowed)
		}
	}

	for _, e := range effects {
		a := accounts[e.AccountID]
		a.Balance = a.Balance.Add(e.Delta)
		if err := u.Accounts().UpdateBalance(ctx, a.ID, a.Balance); err != nil {
			return fmt.Errorf("update balance of account %d: %w", a.ID, err)
		}
	}

	if !opts.skipCard {
		for _, e := range effects {
			if a := accounts[e.AccountID]; a.IsCreditCard() {
				if err := c.attachToCard(ctx, u, a, t, opts); err != nil {
					return err
				}
			}
		}
	}

	transactionsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(t.Type)),
		attribute.String("direction", "apply"),
	))
	return nil
}

// reverse removes the effect of a COMPLETED transaction using its recorded
// amount and accounts. A card-side transaction must still sit on an OPEN
// invoice.
func (c *core) reverse(ctx context.Context, u *unit, t *transaction.Transaction) error {
	effects := t.Effects()
	ids := make([]int64, 0, len(effects))
	for _, e := range effects {
		ids = append(ids, e.AccountID)
	}
	accounts, err := u.lockAccounts(ctx, ids...)
	if err != nil {
		return err
	}

	type cardSide struct {
		cfg *creditcard.Config
		inv *creditcard.Invoice
	}
	var cards []cardSide
	for _, e := range effects {
		a := accounts[e.AccountID]
		if !a.IsCreditCard() {
			continue
		}
		inv, err := u.Invoices().FindByTransaction(ctx, a.ID, t.ID)
		if err != nil {
			return err
		}
		if inv == nil {
			continue
		}
		cfg, err := u.lockConfig(ctx, a.ID)
		if err != nil {
			return err
		}
		inv, err = u.Invoices().LockByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		if inv.Status != creditcard.InvoiceOpen {
			return fmt.Errorf("invoice %s: %w", inv.Period(), creditcard.ErrInvoiceNotOpen)
		}
		cards = append(cards, cardSide{cfg: cfg, inv: inv})
	}

	for _, e := range effects {
		a := accounts[e.AccountID]
		a.Balance = a.Balance.Sub(e.Delta)
		if err := u.Accounts().UpdateBalance(ctx, a.ID, a.Balance); err != nil {
			return fmt.Errorf("update balance of account %d: %w", a.ID, err)
		}
	}

	for _, cs := range cards {
		if err := u.Invoices().UnlinkTransaction(ctx, cs.inv.ID, t.ID); err != nil {
			return err
		}
		if isCardDebit(t, cs.cfg.AccountID) {
			cs.cfg.AdjustUsed(t.Amount, creditcard.LimitSubtract)
		} else {
			cs.cfg.AdjustUsed(t.Amount, creditcard.LimitAdd)
		}
		cs.cfg.UpdatedAt = u.now
		if err := u.CardConfigs().Update(ctx, cs.cfg); err != nil {
			return err
		}
		if err := c.recalculate(ctx, u, cs.inv, cs.cfg); err != nil {
			return err
		}
	}

	transactionsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(t.Type)),
		attribute.String("direction", "reverse"),
	))
	return nil
}

// ensureUnmanaged rejects direct edits of transactions owned by an invoice
// payment or an installment purchase.
func (c *core) ensureUnmanaged(ctx context.Context, u *unit, t *transaction.Transaction) error {
	payment, err := u.Payments().FindByTransaction(ctx, t.ID)
	if err != nil {
		return err
	}
	if payment != nil {
		return transaction.ErrManagedTransaction
	}
	share, err := u.Installments().FindShareByTransaction(ctx, t.ID)
	if err != nil {
		return err
	}
	if share != nil {
		return transaction.ErrManagedTransaction
	}
	return nil
}

// isCardDebit reports whether t spends from the card: a purchase or a
// transfer out of it.
func isCardDebit(t *transaction.Transaction, cardID int64) bool {
	return t.FromAccountID != nil && *t.FromAccountID == cardID
}
