package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

// PaymentService pays card invoices from another account of the company.
type PaymentService struct {
	*core
}

// PaymentResult is what a successful payment produced.
type PaymentResult struct {
	Payment     *creditcard.InvoicePayment `json:"payment"`
	Invoice     *creditcard.Invoice        `json:"invoice"`
	Transaction *transaction.Transaction   `json:"transaction"`
}

// PayFull pays the whole remaining amount of an invoice.
func (s *PaymentService) PayFull(ctx context.Context, rc tenant.RequestContext, invoiceID, sourceAccountID int64) (*PaymentResult, error) {
	return s.processPayment(ctx, rc, invoiceID, sourceAccountID, creditcard.PaymentFull, money.Zero)
}

// PayMinimum pays the invoice's minimum payment, or the remaining amount
// when that is smaller.
func (s *PaymentService) PayMinimum(ctx context.Context, rc tenant.RequestContext, invoiceID, sourceAccountID int64) (*PaymentResult, error) {
	return s.processPayment(ctx, rc, invoiceID, sourceAccountID, creditcard.PaymentMinimum, money.Zero)
}

// PayPartial pays amount, which must cover at least the minimum payment
// and at most the remaining amount.
func (s *PaymentService) PayPartial(ctx context.Context, rc tenant.RequestContext, invoiceID, sourceAccountID int64, amount money.Money) (*PaymentResult, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, creditcard.ErrInvalidAmount
	}
	return s.processPayment(ctx, rc, invoiceID, sourceAccountID, creditcard.PaymentPartial, amount)
}

// Pay dispatches on the payment type.
func (s *PaymentService) Pay(ctx context.Context, rc tenant.RequestContext, invoiceID, sourceAccountID int64, typ creditcard.PaymentType, amount money.Money) (*PaymentResult, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	switch typ {
	case creditcard.PaymentFull:
		return s.PayFull(ctx, rc, invoiceID, sourceAccountID)
	case creditcard.PaymentMinimum:
		return s.PayMinimum(ctx, rc, invoiceID, sourceAccountID)
	case creditcard.PaymentPartial:
		return s.PayPartial(ctx, rc, invoiceID, sourceAccountID, amount)
	default:
		return nil, creditcard.ErrInvalidPaymentType
	}
}

// History lists the payments applied to an invoice.
func (s *PaymentService) History(ctx context.Context, rc tenant.RequestContext, invoiceID int64) ([]*creditcard.InvoicePayment, error) {
	var payments []*creditcard.InvoicePayment
	err := s.read(ctx, rc, "payment.history", func(ctx context.Context, u *unit) error {
		if _, err := u.getInvoice(ctx, invoiceID); err != nil {
			return err
		}
		var err error
		payments, err = u.Payments().ListByInvoice(ctx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []*creditcard.InvoicePayment{}
	}
	return payments, nil
}

// processPayment moves money from the source account into the card with a
// COMPLETED transfer, records the payment and releases the share of the
// card limit that the paid principal was holding. The transfer, payment
// row, invoice totals and limit change commit together.
func (s *PaymentService) processPayment(ctx context.Context, rc tenant.RequestContext, invoiceID, sourceAccountID int64, typ creditcard.PaymentType, requested money.Money) (*PaymentResult, error) {
	var result *PaymentResult
	err := s.mutate(ctx, rc, "payment.process", func(ctx context.Context, u *unit) error {
		inv, err := u.getInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if sourceAccountID == inv.AccountID {
			return transaction.ErrInconsistentAccountsForType
		}
		if _, err := u.lockAccounts(ctx, sourceAccountID, inv.AccountID); err != nil {
			return err
		}
		cfg, inv, err := s.lockInvoice(ctx, u, invoiceID)
		if err != nil {
			return err
		}
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}
		if err := inv.AcceptsPayments(); err != nil {
			return err
		}

		amount, err := paymentAmount(inv, typ, requested)
		if err != nil {
			return err
		}

		existing, err := u.Payments().ListByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		release := limitRelease(inv, existing, amount)
		wasOverdue := inv.Status == creditcard.InvoiceOverdue

		t, err := s.createTransaction(ctx, u, transaction.CreateParams{
			Description:   fmt.Sprintf("Invoice payment %s", inv.Period()),
			Amount:        amount,
			Date:          u.now,
			Type:          transaction.TypeTransfer,
			Status:        transaction.StatusCompleted,
			FromAccountID: &sourceAccountID,
			ToAccountID:   &inv.AccountID,
			Tags:          []string{"invoice-payment"},
		}, createOptions{invoiceID: inv.ID, skipLimit: true})
		if err != nil {
			return err
		}

		payment := &creditcard.InvoicePayment{
			CompanyID:       inv.CompanyID,
			InvoiceID:       inv.ID,
			TransactionID:   t.ID,
			SourceAccountID: sourceAccountID,
			Amount:          amount,
			Type:            typ,
			LimitReleased:   release,
			PaidAt:          u.now,
			CreatedBy:       u.rc.UserID,
		}
		if err := u.Payments().Create(ctx, payment); err != nil {
			return err
		}

		if inv, err = u.Invoices().LockByID(ctx, inv.ID); err != nil {
			return err
		}
		if err := s.recalculate(ctx, u, inv, cfg); err != nil {
			return err
		}

		if release.IsPositive() {
			if cfg, err = u.lockConfig(ctx, inv.AccountID); err != nil {
				return err
			}
			cfg.AdjustUsed(release, creditcard.LimitSubtract)
			cfg.UpdatedAt = u.now
			if err := u.CardConfigs().Update(ctx, cfg); err != nil {
				return err
			}
		}

		switch {
		case inv.IsPaid:
			paidAt := u.now
			inv.Status = creditcard.InvoicePaid
			inv.PaidAt = &paidAt
			if err := s.settleShares(ctx, u, inv.ID); err != nil {
				return err
			}
			if err := s.settleCarried(ctx, u, inv); err != nil {
				return err
			}
		case wasOverdue:
			inv.Status = creditcard.InvoiceOverdue
		default:
			inv.Status = creditcard.InvoicePartiallyPaid
		}
		inv.UpdatedAt = u.now
		if err := u.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		if inv.Status == creditcard.InvoicePaid {
			u.emit(EventInvoicePaid, inv.ID, inv)
		}

		result = &PaymentResult{Payment: payment, Invoice: inv, Transaction: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	paymentsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(typ))))
	s.log.Info().
		Int64("invoice_id", invoiceID).
		Int64("payment_id", result.Payment.ID).
		Str("type", string(typ)).
		Str("amount", result.Payment.Amount.String()).
		Str("status", string(result.Invoice.Status)).
		Msg("invoice payment applied")
	return result, nil
}

// paymentAmount resolves how much a payment of typ transfers.
func paymentAmount(inv *creditcard.Invoice, typ creditcard.PaymentType, requested money.Money) (money.Money, error) {
	remaining := inv.RemainingAmount
	var amount money.Money
	switch typ {
	case creditcard.PaymentFull:
		amount = remaining
	case creditcard.PaymentMinimum:
		amount = money.Min(inv.MinimumPayment, remaining)
	case creditcard.PaymentPartial:
		if requested.LessThan(money.Min(inv.MinimumPayment, remaining)) {
			return money.Zero, creditcard.ErrBelowMinimumPayment
		}
		if requested.GreaterThan(remaining) {
			return money.Zero, creditcard.ErrAboveTotalAmount
		}
		amount = requested
	default:
		return money.Zero, creditcard.ErrInvalidPaymentType
	}
	if !amount.IsPositive() {
		return money.Zero, creditcard.ErrInvalidAmount
	}
	return amount, nil
}

// limitRelease is the part of the card limit a payment frees. Interest and
// fees never consumed limit, so only the principal share of the payment is
// released; settling the invoice releases whatever principal is left.
func limitRelease(inv *creditcard.Invoice, existing []*creditcard.InvoicePayment, amount money.Money) money.Money {
	principal := inv.Principal()
	released := money.Zero
	for _, p := range existing {
		released = released.Add(p.LimitReleased)
	}
	left := money.Max(principal.Sub(released), money.Zero)
	if amount.GreaterThanOrEqual(inv.RemainingAmount) {
		return left
	}

	if !inv.TotalAmount.IsPositive() {
		return money.Zero
	}
	share, err := amount.Ratio(principal, inv.TotalAmount)
	if err != nil {
		return money.Zero
	}
	return money.Max(money.Min(share, left), money.Zero)
}

// settleCarried marks as PAID the earlier invoices whose balances were
// carried, one period at a time, into the paid invoice inv.
func (c *core) settleCarried(ctx context.Context, u *unit, inv *creditcard.Invoice) error {
	next := inv
	for {
		prior, err := u.Invoices().LockByPeriod(ctx, next.AccountID, next.Period().Prev())
		if errors.Is(err, creditcard.ErrInvoiceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if prior.CarriedToInvoiceID == nil || *prior.CarriedToInvoiceID != next.ID || prior.Status == creditcard.InvoicePaid {
			return nil
		}

		paidAt := u.now
		prior.Status = creditcard.InvoicePaid
		prior.PaidAt = &paidAt
		prior.UpdatedAt = u.now
		if err := u.Invoices().Update(ctx, prior); err != nil {
			return err
		}
		if err := c.settleShares(ctx, u, prior.ID); err != nil {
			return err
		}
		u.emit(EventInvoicePaid, prior.ID, prior)
		next = prior
	}
}

// settleShares marks the installment shares billed on a paid invoice as
// paid, completing purchases whose shares are all settled.
func (c *core) settleShares(ctx context.Context, u *unit, invoiceID int64) error {
	shares, err := u.Installments().ListSharesByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	touched := make(map[int64]struct{})
	for _, share := range shares {
		if share.Settled() {
			continue
		}
		paidAt := u.now
		share.IsPaid = true
		share.PaidAt = &paidAt
		if err := u.Installments().UpdateShare(ctx, share); err != nil {
			return err
		}
		touched[share.InstallmentID] = struct{}{}
	}

	for id := range touched {
		inst, err := u.Installments().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if inst.Status != creditcard.InstallmentActive {
			continue
		}
		all, err := u.Installments().ListShares(ctx, id)
		if err != nil {
			return err
		}
		done := true
		for _, share := range all {
			if !share.Settled() {
				done = false
				break
			}
		}
		if !done {
			continue
		}
		inst.Status = creditcard.InstallmentCompleted
		inst.UpdatedAt = u.now
		if err := u.Installments().Update(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}
