package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

// maxRollForward bounds the search for an OPEN invoice past closed periods.
const maxRollForward = 24

// defaultSweepConcurrency is how many invoices a maintenance sweep
// processes at once unless configured.
const defaultSweepConcurrency = 4

// InvoiceService manages the lifecycle of card invoices:
// OPEN → CLOSED → PAID | PARTIALLY_PAID, with OVERDUE once the due date
// passes unpaid and CANCELED as an administrative side exit.
type InvoiceService struct {
	*core
}

// Generate creates the invoice of a period. The prior period's unpaid
// remainder is carried as the previous balance.
func (s *InvoiceService) Generate(ctx context.Context, rc tenant.RequestContext, accountID int64, month time.Month, year int) (*creditcard.Invoice, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	p := creditcard.Period{Year: year, Month: month}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: period %s", creditcard.ErrInvalidInput, p)
	}

	var inv *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.generate", func(ctx context.Context, u *unit) error {
		cfg, err := s.cardConfig(ctx, u, accountID)
		if err != nil {
			return err
		}
		existing, err := u.Invoices().GetByPeriod(ctx, accountID, p)
		if err != nil && !errors.Is(err, creditcard.ErrInvoiceNotFound) {
			return err
		}
		if existing != nil {
			return creditcard.ErrInvoiceAlreadyExists
		}
		inv, err = s.generate(ctx, u, cfg, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Current returns the OPEN invoice collecting today's purchases, creating
// it when missing.
func (s *InvoiceService) Current(ctx context.Context, rc tenant.RequestContext, accountID int64) (*creditcard.Invoice, error) {
	var inv *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.current", func(ctx context.Context, u *unit) error {
		cfg, err := s.cardConfig(ctx, u, accountID)
		if err != nil {
			return err
		}
		inv, err = s.openInvoiceFor(ctx, u, cfg, u.now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Get retrieves one invoice.
func (s *InvoiceService) Get(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	var inv *creditcard.Invoice
	err := s.read(ctx, rc, "invoice.get", func(ctx context.Context, u *unit) error {
		var err error
		inv, err = u.getInvoice(ctx, id)
		return err
	})
	return inv, err
}

// List returns the card's invoices, optionally for one reference year.
func (s *InvoiceService) List(ctx context.Context, rc tenant.RequestContext, accountID int64, year int) ([]*creditcard.Invoice, error) {
	var invoices []*creditcard.Invoice
	err := s.read(ctx, rc, "invoice.list", func(ctx context.Context, u *unit) error {
		if _, err := u.getAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		invoices, err = u.Invoices().List(ctx, creditcard.InvoiceFilter{
			CompanyID: rc.CompanyID,
			AccountID: accountID,
			Year:      year,
		})
		return err
	})
	return invoices, err
}

// Transactions lists the transactions linked to an invoice.
func (s *InvoiceService) Transactions(ctx context.Context, rc tenant.RequestContext, id int64) ([]*transaction.Transaction, error) {
	var txs []*transaction.Transaction
	err := s.read(ctx, rc, "invoice.transactions", func(ctx context.Context, u *unit) error {
		if _, err := u.getInvoice(ctx, id); err != nil {
			return err
		}
		var err error
		txs, err = u.Invoices().ListTransactions(ctx, id)
		return err
	})
	return txs, err
}

// AddTransaction links a COMPLETED card transaction to an OPEN invoice and
// moves the card limit accordingly.
func (s *InvoiceService) AddTransaction(ctx context.Context, rc tenant.RequestContext, invoiceID, transactionID int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.add_transaction", func(ctx context.Context, u *unit) error {
		cfg, inv, err := s.lockInvoice(ctx, u, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != creditcard.InvoiceOpen {
			return creditcard.ErrInvoiceNotOpen
		}
		t, err := u.lockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if !t.Touches(inv.AccountID) || !t.IsCompleted() {
			return creditcard.ErrTransactionNotOnCard
		}
		linked, err := u.Invoices().FindByTransaction(ctx, inv.AccountID, t.ID)
		if err != nil {
			return err
		}
		if linked != nil {
			return creditcard.ErrTransactionAlreadyLinked
		}

		if isCardDebit(t, inv.AccountID) {
			if !cfg.HasAvailable(t.Amount) {
				return creditcard.ErrInsufficientCreditLimit
			}
			cfg.AdjustUsed(t.Amount, creditcard.LimitAdd)
		} else {
			cfg.AdjustUsed(t.Amount, creditcard.LimitSubtract)
		}
		cfg.UpdatedAt = u.now
		if err := u.CardConfigs().Update(ctx, cfg); err != nil {
			return err
		}
		if err := u.Invoices().LinkTransaction(ctx, inv.ID, t.ID); err != nil {
			return err
		}
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveTransaction unlinks a transaction from an OPEN invoice, undoing its
// limit movement.
func (s *InvoiceService) RemoveTransaction(ctx context.Context, rc tenant.RequestContext, invoiceID, transactionID int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.remove_transaction", func(ctx context.Context, u *unit) error {
		cfg, inv, err := s.lockInvoice(ctx, u, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != creditcard.InvoiceOpen {
			return creditcard.ErrInvoiceNotOpen
		}
		t, err := u.lockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		linked, err := u.Invoices().FindByTransaction(ctx, inv.AccountID, t.ID)
		if err != nil {
			return err
		}
		if linked == nil || linked.ID != inv.ID {
			return creditcard.ErrTransactionNotLinked
		}
		if err := s.ensureUnmanaged(ctx, u, t); err != nil {
			return err
		}

		if t.IsCompleted() {
			if isCardDebit(t, inv.AccountID) {
				cfg.AdjustUsed(t.Amount, creditcard.LimitSubtract)
			} else {
				cfg.AdjustUsed(t.Amount, creditcard.LimitAdd)
			}
			cfg.UpdatedAt = u.now
			if err := u.CardConfigs().Update(ctx, cfg); err != nil {
				return err
			}
		}
		if err := u.Invoices().UnlinkTransaction(ctx, inv.ID, t.ID); err != nil {
			return err
		}
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recalculate re-derives the invoice totals from its linked transactions
// and payments. Running it again without changes yields the same totals.
func (s *InvoiceService) Recalculate(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.recalculate", func(ctx context.Context, u *unit) error {
		cfg, inv, err := s.lockInvoice(ctx, u, id)
		if err != nil {
			return err
		}
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyInterest charges the card's interest rate on the previous balance.
func (s *InvoiceService) ApplyInterest(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	return s.charge(ctx, rc, id, "invoice.apply_interest", func(inv *creditcard.Invoice, cfg *creditcard.Config) {
		inv.InterestAmount = inv.PreviousBalance.Percent(cfg.InterestRate)
	})
}

// ApplyFees charges the card's late fee on the previous balance.
func (s *InvoiceService) ApplyFees(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	return s.charge(ctx, rc, id, "invoice.apply_fees", func(inv *creditcard.Invoice, cfg *creditcard.Config) {
		inv.FeesAmount = inv.PreviousBalance.Percent(cfg.LateFeePercent)
	})
}

func (s *InvoiceService) charge(ctx context.Context, rc tenant.RequestContext, id int64, op string, set func(*creditcard.Invoice, *creditcard.Config)) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, op, func(ctx context.Context, u *unit) error {
		cfg, inv, err := s.lockInvoice(ctx, u, id)
		if err != nil {
			return err
		}
		if inv.Status != creditcard.InvoiceOpen {
			return creditcard.ErrInvoiceNotOpen
		}
		set(inv, cfg)
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close recalculates an OPEN invoice and closes it.
func (s *InvoiceService) Close(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.close", func(ctx context.Context, u *unit) error {
		var err error
		out, err = s.closeInvoice(ctx, u, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InvoiceService) closeInvoice(ctx context.Context, u *unit, id int64) (*creditcard.Invoice, error) {
	cfg, inv, err := s.lockInvoice(ctx, u, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != creditcard.InvoiceOpen {
		return nil, creditcard.ErrInvoiceNotOpen
	}
	// invoices created ahead of time by installments missed the carry
	if _, err := s.carryPrior(ctx, u, inv); err != nil {
		return nil, err
	}
	if err := s.recalculate(ctx, u, inv, cfg); err != nil {
		return nil, err
	}

	closedAt := u.now
	inv.Status = creditcard.InvoiceClosed
	inv.ClosedAt = &closedAt
	inv.UpdatedAt = u.now
	if err := u.Invoices().Update(ctx, inv); err != nil {
		return nil, err
	}

	u.emit(EventInvoiceClosed, inv.ID, inv)
	s.log.Info().
		Int64("invoice_id", inv.ID).
		Str("period", inv.Period().String()).
		Str("total", inv.TotalAmount.String()).
		Msg("invoice closed")
	return inv, nil
}

// MarkOverdue flags an unpaid invoice whose due date has passed. Paid,
// canceled or not yet due invoices are returned unchanged.
func (s *InvoiceService) MarkOverdue(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.mark_overdue", func(ctx context.Context, u *unit) error {
		var err error
		out, err = s.markOverdue(ctx, u, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InvoiceService) markOverdue(ctx context.Context, u *unit, id int64) (*creditcard.Invoice, error) {
	_, inv, err := s.lockInvoice(ctx, u, id)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid || !inv.CanBecomeOverdue() || !inv.IsPastDue(u.now) {
		return inv, nil
	}

	inv.Status = creditcard.InvoiceOverdue
	inv.UpdatedAt = u.now
	if err := u.Invoices().Update(ctx, inv); err != nil {
		return nil, err
	}

	u.emit(EventInvoiceOverdue, inv.ID, inv)
	s.log.Info().
		Int64("invoice_id", inv.ID).
		Str("remaining", inv.RemainingAmount.String()).
		Msg("invoice overdue")
	return inv, nil
}

// Cancel administratively cancels an invoice that has no payments and no
// linked transactions.
func (s *InvoiceService) Cancel(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Invoice, error) {
	var out *creditcard.Invoice
	err := s.mutate(ctx, rc, "invoice.cancel", func(ctx context.Context, u *unit) error {
		cfg, inv, err := s.lockInvoice(ctx, u, id)
		if err != nil {
			return err
		}
		if inv.Status == creditcard.InvoicePaid || inv.Status == creditcard.InvoiceCanceled || inv.IsCarried() {
			return creditcard.ErrInvalidInvoiceTransition
		}
		payments, err := u.Payments().ListByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return creditcard.ErrInvoiceHasPayments
		}
		txs, err := u.Invoices().ListTransactions(ctx, inv.ID)
		if err != nil {
			return err
		}
		if len(txs) > 0 {
			return creditcard.ErrInvoiceHasTransactions
		}

		if err := s.uncarryPrior(ctx, u, cfg, inv); err != nil {
			return err
		}
		inv.Status = creditcard.InvoiceCanceled
		inv.UpdatedAt = u.now
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MaintenanceResult counts what a maintenance run changed.
type MaintenanceResult struct {
	Closed  int
	Overdue int
	Errors  []error
}

// RunMaintenance closes the company's OPEN invoices whose closing date has
// passed, then flags unpaid invoices past their due date. Each invoice is
// handled in its own unit of work; failures are collected, not fatal.
func (s *InvoiceService) RunMaintenance(ctx context.Context, companyID int64, asOf time.Time) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}
	if err := s.closeDue(ctx, companyID, asOf, result); err != nil {
		return nil, err
	}
	if err := s.flagOverdue(ctx, companyID, asOf, result); err != nil {
		return result, err
	}

	s.log.Info().
		Int64("company_id", companyID).
		Int("closed", result.Closed).
		Int("overdue", result.Overdue).
		Int("errors", len(result.Errors)).
		Msg("invoice maintenance finished")
	return result, nil
}

// CloseDueInvoices closes the company's OPEN invoices whose closing date is before asOf.
func (s *InvoiceService) CloseDueInvoices(ctx context.Context, companyID int64, asOf time.Time) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}
	if err := s.closeDue(ctx, companyID, asOf, result); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkOverdueInvoices marks the company's unpaid invoices past their due date OVERDUE.
func (s *InvoiceService) MarkOverdueInvoices(ctx context.Context, companyID int64, asOf time.Time) (*MaintenanceResult, error) {
	result := &MaintenanceResult{}
	if err := s.flagOverdue(ctx, companyID, asOf, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *InvoiceService) closeDue(ctx context.Context, companyID int64, asOf time.Time, result *MaintenanceResult) error {
	rc := tenant.System(companyID)
	today := startOfDay(asOf)

	toClose, err := s.listForSweep(ctx, rc, creditcard.InvoiceFilter{
		CompanyID:     companyID,
		Statuses:      []creditcard.InvoiceStatus{creditcard.InvoiceOpen},
		ClosingBefore: &today,
	})
	if err != nil {
		return err
	}
	closed, errs := s.sweep(ctx, rc, toClose, func(ctx context.Context, u *unit, id int64) (bool, error) {
		_, err := s.closeInvoice(ctx, u, id)
		if errors.Is(err, creditcard.ErrInvoiceNotOpen) {
			return false, nil
		}
		return err == nil, err
	})
	result.Closed += closed
	result.Errors = append(result.Errors, errs...)
	return nil
}

func (s *InvoiceService) flagOverdue(ctx context.Context, companyID int64, asOf time.Time, result *MaintenanceResult) error {
	rc := tenant.System(companyID)
	today := startOfDay(asOf)

	toFlag, err := s.listForSweep(ctx, rc, creditcard.InvoiceFilter{
		CompanyID: companyID,
		Statuses: []creditcard.InvoiceStatus{
			creditcard.InvoiceOpen,
			creditcard.InvoiceClosed,
			creditcard.InvoicePartiallyPaid,
		},
		DueBefore: &today,
	})
	if err != nil {
		return err
	}
	flagged, errs := s.sweep(ctx, rc, toFlag, func(ctx context.Context, u *unit, id int64) (bool, error) {
		inv, err := s.markOverdue(ctx, u, id)
		if err != nil {
			return false, err
		}
		return inv.Status == creditcard.InvoiceOverdue, nil
	})
	result.Overdue += flagged
	result.Errors = append(result.Errors, errs...)
	return nil
}

// CompaniesDueForMaintenance lists the companies with an invoice to close
// or flag as of asOf.
func (s *InvoiceService) CompaniesDueForMaintenance(ctx context.Context, asOf time.Time) ([]int64, error) {
	today := startOfDay(asOf)
	seen := make(map[int64]struct{})

	err := s.uow.View(ctx, func(ctx context.Context, st Store) error {
		filters := []creditcard.InvoiceFilter{
			{Statuses: []creditcard.InvoiceStatus{creditcard.InvoiceOpen}, ClosingBefore: &today},
			{Statuses: []creditcard.InvoiceStatus{creditcard.InvoiceOpen, creditcard.InvoiceClosed, creditcard.InvoicePartiallyPaid}, DueBefore: &today},
		}
		for _, f := range filters {
			invoices, err := st.Invoices().List(ctx, f)
			if err != nil {
				return err
			}
			for _, inv := range invoices {
				if f.DueBefore != nil && inv.IsPaid {
					continue
				}
				seen[inv.CompanyID] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *InvoiceService) listForSweep(ctx context.Context, rc tenant.RequestContext, f creditcard.InvoiceFilter) ([]int64, error) {
	var ids []int64
	err := s.read(ctx, rc, "invoice.sweep_list", func(ctx context.Context, u *unit) error {
		invoices, err := u.Invoices().List(ctx, f)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			ids = append(ids, inv.ID)
		}
		return nil
	})
	return ids, err
}

// sweep runs fn for every invoice in its own unit of work, a few at a time.
func (s *InvoiceService) sweep(ctx context.Context, rc tenant.RequestContext, ids []int64, fn func(ctx context.Context, u *unit, id int64) (bool, error)) (int, []error) {
	var (
		g      errgroup.Group
		counts = make([]bool, len(ids))
		errs   = make([]error, len(ids))
	)
	g.SetLimit(s.sweepLimit)

	for i, id := range ids {
		g.Go(func() error {
			err := s.mutate(ctx, rc, "invoice.sweep", func(ctx context.Context, u *unit) error {
				changed, err := fn(ctx, u, id)
				counts[i] = changed
				return err
			})
			if err != nil {
				errs[i] = fmt.Errorf("invoice %d: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	changed := 0
	var failed []error
	for i := range ids {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		if counts[i] {
			changed++
		}
	}
	return changed, failed
}

// cardConfig loads the config of a card account owned by the caller,
// holding the config lock.
func (c *core) cardConfig(ctx context.Context, u *unit, accountID int64) (*creditcard.Config, error) {
	a, err := u.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a.Type != account.TypeCreditCard {
		return nil, creditcard.ErrNotCreditCard
	}
	return u.lockConfig(ctx, accountID)
}

// lockInvoice locks the invoice's card config, then the invoice itself.
func (c *core) lockInvoice(ctx context.Context, u *unit, id int64) (*creditcard.Config, *creditcard.Invoice, error) {
	inv, err := u.getInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := u.lockConfig(ctx, inv.AccountID)
	if err != nil {
		return nil, nil, err
	}
	inv, err = u.Invoices().LockByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return cfg, inv, nil
}

// attachToCard links a transaction just applied to a card account to its
// invoice and moves the card limit. Cards without a configuration have no
// invoices and are left alone.
func (c *core) attachToCard(ctx context.Context, u *unit, card *account.Account, t *transaction.Transaction, opts createOptions) error {
	cfg, err := u.lockConfig(ctx, card.ID)
	if errors.Is(err, creditcard.ErrConfigNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var inv *creditcard.Invoice
	if opts.invoiceID != 0 {
		inv, err = u.Invoices().LockByID(ctx, opts.invoiceID)
		if err != nil {
			return err
		}
		if inv.AccountID != card.ID {
			return creditcard.ErrTransactionNotOnCard
		}
	} else {
		inv, err = c.openInvoiceFor(ctx, u, cfg, t.Date)
		if err != nil {
			return err
		}
	}

	if !opts.skipLimit {
		if isCardDebit(t, card.ID) {
			if !cfg.HasAvailable(t.Amount) {
				return creditcard.ErrInsufficientCreditLimit
			}
			cfg.AdjustUsed(t.Amount, creditcard.LimitAdd)
		} else {
			cfg.AdjustUsed(t.Amount, creditcard.LimitSubtract)
		}
		cfg.UpdatedAt = u.now
		if err := u.CardConfigs().Update(ctx, cfg); err != nil {
			return err
		}
		if st := cfg.Status(); st.AlertTriggered && isCardDebit(t, card.ID) {
			u.emit(EventLimitAlert, card.ID, st)
		}
	}

	if err := u.Invoices().LinkTransaction(ctx, inv.ID, t.ID); err != nil {
		return err
	}
	return c.recalculate(ctx, u, inv, cfg)
}

// openInvoiceFor returns the OPEN invoice collecting purchases made on
// date, rolling forward past periods that are already closed and creating
// the invoice when missing.
func (c *core) openInvoiceFor(ctx context.Context, u *unit, cfg *creditcard.Config, date time.Time) (*creditcard.Invoice, error) {
	p := creditcard.PeriodFor(date, cfg.ClosingDay)
	for i := 0; i < maxRollForward; i++ {
		inv, err := u.Invoices().LockByPeriod(ctx, cfg.AccountID, p)
		if errors.Is(err, creditcard.ErrInvoiceNotFound) {
			return c.generate(ctx, u, cfg, p)
		}
		if err != nil {
			return nil, err
		}
		if inv.Status == creditcard.InvoiceOpen {
			return inv, nil
		}
		p = p.Next()
	}
	return nil, fmt.Errorf("no open invoice within %d periods: %w", maxRollForward, creditcard.ErrInvoiceNotOpen)
}

// invoiceForPeriod returns the invoice of p, creating it when missing. It
// must still be OPEN.
func (c *core) invoiceForPeriod(ctx context.Context, u *unit, cfg *creditcard.Config, p creditcard.Period) (*creditcard.Invoice, error) {
	inv, err := u.Invoices().LockByPeriod(ctx, cfg.AccountID, p)
	if errors.Is(err, creditcard.ErrInvoiceNotFound) {
		return c.generate(ctx, u, cfg, p)
	}
	if err != nil {
		return nil, err
	}
	if inv.Status != creditcard.InvoiceOpen {
		return nil, fmt.Errorf("invoice %s: %w", p, creditcard.ErrInvoiceNotOpen)
	}
	return inv, nil
}

// generate creates the OPEN invoice of p and carries the prior period's
// unpaid remainder into it.
func (c *core) generate(ctx context.Context, u *unit, cfg *creditcard.Config, p creditcard.Period) (*creditcard.Invoice, error) {
	inv := &creditcard.Invoice{
		CompanyID:      cfg.CompanyID,
		AccountID:      cfg.AccountID,
		ReferenceYear:  p.Year,
		ReferenceMonth: p.Month,
		ClosingDate:    p.ClosingDate(cfg.ClosingDay),
		DueDate:        p.DueDate(cfg),
		Status:         creditcard.InvoiceOpen,
		CreatedAt:      u.now,
		UpdatedAt:      u.now,
	}
	inv.Recalculate(money.Zero, money.Zero, money.Zero, cfg.MinimumPaymentPercent)
	if err := u.Invoices().Create(ctx, inv); err != nil {
		return nil, err
	}

	carried, err := c.carryPrior(ctx, u, inv)
	if err != nil {
		return nil, err
	}
	if carried {
		inv.Recalculate(money.Zero, money.Zero, money.Zero, cfg.MinimumPaymentPercent)
		if err := u.Invoices().Update(ctx, inv); err != nil {
			return nil, err
		}
	}

	c.log.Debug().
		Int64("account_id", cfg.AccountID).
		Str("period", p.String()).
		Str("previous_balance", inv.PreviousBalance.String()).
		Msg("invoice generated")
	return inv, nil
}

// carryPrior moves the unpaid remainder of the prior period's billed
// invoice onto inv. The prior invoice stops accepting payments, so the
// remainder is owed on inv alone. The caller recalculates and persists inv.
func (c *core) carryPrior(ctx context.Context, u *unit, inv *creditcard.Invoice) (bool, error) {
	prior, err := u.Invoices().LockByPeriod(ctx, inv.AccountID, inv.Period().Prev())
	if errors.Is(err, creditcard.ErrInvoiceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !prior.CarriesBalance() {
		return false, nil
	}

	payments, err := u.Payments().ListByInvoice(ctx, prior.ID)
	if err != nil {
		return false, err
	}
	held := prior.Principal()
	for _, p := range payments {
		held = held.Sub(p.LimitReleased)
	}

	amount := prior.RemainingAmount
	prior.CarryTo(inv, held)
	prior.UpdatedAt = u.now
	if err := u.Invoices().Update(ctx, prior); err != nil {
		return false, err
	}

	c.log.Info().
		Int64("from_invoice_id", prior.ID).
		Int64("to_invoice_id", inv.ID).
		Str("amount", amount.String()).
		Msg("invoice balance carried")
	return true, nil
}

// uncarryPrior returns to the prior invoice any balance it carried onto
// inv.
func (c *core) uncarryPrior(ctx context.Context, u *unit, cfg *creditcard.Config, inv *creditcard.Invoice) error {
	prior, err := u.Invoices().LockByPeriod(ctx, inv.AccountID, inv.Period().Prev())
	if errors.Is(err, creditcard.ErrInvoiceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if prior.CarriedToInvoiceID == nil || *prior.CarriedToInvoiceID != inv.ID {
		return nil
	}
	prior.Uncarry(inv)
	return c.recalculate(ctx, u, prior, cfg)
}

// recalculate re-derives inv's totals and persists them. Purchases are
// COMPLETED debits of the card; credits are COMPLETED incomes into it and
// transfers into it that do not back a recorded invoice payment, which are
// counted through the payments instead.
func (c *core) recalculate(ctx context.Context, u *unit, inv *creditcard.Invoice, cfg *creditcard.Config) error {
	payments, err := u.Payments().ListByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	paid := money.Zero
	paymentTx := make(map[int64]struct{}, len(payments))
	for _, p := range payments {
		paid = paid.Add(p.Amount)
		paymentTx[p.TransactionID] = struct{}{}
	}

	txs, err := u.Invoices().ListTransactions(ctx, inv.ID)
	if err != nil {
		return err
	}
	purchases, credits := money.Zero, money.Zero
	for _, t := range txs {
		if !t.IsCompleted() {
			continue
		}
		if _, ok := paymentTx[t.ID]; ok {
			continue
		}
		if isCardDebit(t, inv.AccountID) {
			purchases = purchases.Add(t.Amount)
		} else if t.ToAccountID != nil && *t.ToAccountID == inv.AccountID {
			credits = credits.Add(t.Amount)
		}
	}

	inv.Recalculate(purchases, credits, paid, cfg.MinimumPaymentPercent)
	inv.UpdatedAt = u.now
	return u.Invoices().Update(ctx, inv)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
