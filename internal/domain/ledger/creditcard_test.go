package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

func TestCardConfigLifecycle(t *testing.T) {
	h := newHarness(t)
	bank := h.account("Bank", account.TypeChecking, "0", false)

	_, err := h.engine.Cards.CreateConfig(h.ctx, owner, bank.ID, creditcard.ConfigParams{CreditLimit: m("100"), ClosingDay: 1, DueDay: 10})
	assert.ErrorIs(t, err, creditcard.ErrNotCreditCard)

	card := h.card("1000.00")
	_, err = h.engine.Cards.CreateConfig(h.ctx, owner, card.ID, creditcard.ConfigParams{CreditLimit: m("100"), ClosingDay: 1, DueDay: 10})
	assert.ErrorIs(t, err, creditcard.ErrConfigAlreadyExists)

	_, err = h.expense(card.ID, "600.00")
	require.NoError(t, err)

	lower := m("500.00")
	_, err = h.engine.Cards.UpdateConfig(h.ctx, owner, card.ID, creditcard.ConfigUpdateParams{CreditLimit: &lower})
	assert.ErrorIs(t, err, creditcard.ErrConfigInUse)

	higher := m("2000.00")
	cfg, err := h.engine.Cards.UpdateConfig(h.ctx, owner, card.ID, creditcard.ConfigUpdateParams{CreditLimit: &higher})
	require.NoError(t, err)
	assert.Equal(t, "1400.00", cfg.AvailableLimit.String())

	assert.ErrorIs(t, h.engine.Cards.DeleteConfig(h.ctx, owner, card.ID), creditcard.ErrConfigInUse)
}

func TestCardExpenseReservesAndCancelReleases(t *testing.T) {
	h := newHarness(t)
	card := h.card("500.00")

	_, err := h.expense(card.ID, "600.00")
	require.ErrorIs(t, err, creditcard.ErrInsufficientCreditLimit)
	assert.Equal(t, "0.00", h.balance(card.ID), "rejected purchase must not move the balance")

	tx, err := h.expense(card.ID, "420.00")
	require.NoError(t, err)
	st := h.limit(card.ID)
	assert.Equal(t, "420.00", st.UsedLimit.String())
	assert.True(t, st.AlertTriggered)
	assert.Contains(t, h.events.Types(), ledger.EventLimitAlert)
	assert.Equal(t, "-420.00", h.balance(card.ID))

	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.Period{Year: 2024, Month: time.March}, inv.Period())
	assert.Equal(t, "420.00", inv.PurchasesAmount.String())

	_, err = h.engine.Transactions.UpdateStatus(h.ctx, owner, tx.ID, transaction.StatusCanceled)
	require.NoError(t, err)
	assert.True(t, h.limit(card.ID).UsedLimit.IsZero())
	assert.Equal(t, "0.00", h.balance(card.ID))

	inv, err = h.engine.Invoices.Get(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.IsZero())
}

func TestLimitTracker(t *testing.T) {
	h := newHarness(t)
	card := h.card("1000.00")

	_, err := h.engine.Limits.UpdateUsedLimit(h.ctx, owner, card.ID, m("250.00"), creditcard.LimitAdd)
	require.NoError(t, err)
	ok, err := h.engine.Limits.CheckLimitAvailable(h.ctx, owner, card.ID, m("750.00"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = h.engine.Limits.CheckLimitAvailable(h.ctx, owner, card.ID, m("750.01"))
	require.NoError(t, err)
	assert.False(t, ok)

	cfg, err := h.engine.Limits.UpdateUsedLimit(h.ctx, owner, card.ID, m("900.00"), creditcard.LimitSubtract)
	require.NoError(t, err)
	assert.True(t, cfg.UsedLimit.IsZero(), "used limit clamps at zero")
	assert.Equal(t, "1000.00", h.limit(card.ID).AvailableLimit.String())

	_, err = h.engine.Limits.UpdateUsedLimit(h.ctx, owner, card.ID, m("1.00"), "multiply")
	assert.ErrorIs(t, err, creditcard.ErrInvalidInput)
}

func TestPurchaseAfterClosingGoesToNextInvoice(t *testing.T) {
	h := newHarness(t)
	card := h.card("1000.00")

	h.clock.Set(time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC))
	_, err := h.expense(card.ID, "10.00")
	require.NoError(t, err)

	list, err := h.engine.Invoices.List(h.ctx, owner, card.ID, 2024)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, time.April, list[0].ReferenceMonth)
	assert.Equal(t, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC), list[0].ClosingDate)
	assert.Equal(t, time.Date(2024, time.April, 25, 0, 0, 0, 0, time.UTC), list[0].DueDate)
}

func TestInvoicePaymentScenario(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")
	bank := h.account("Bank", account.TypeChecking, "5000.00", false)

	_, err := h.expense(card.ID, "1000.00")
	require.NoError(t, err)
	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	assert.True(t, inv.PreviousBalance.IsZero())
	assert.Equal(t, "1000.00", inv.TotalAmount.String())
	assert.Equal(t, "100.00", inv.MinimumPayment.String())

	_, err = h.engine.Payments.PayPartial(h.ctx, owner, inv.ID, bank.ID, m("50.00"))
	require.ErrorIs(t, err, creditcard.ErrBelowMinimumPayment)
	_, err = h.engine.Payments.PayPartial(h.ctx, owner, inv.ID, bank.ID, m("1000.01"))
	require.ErrorIs(t, err, creditcard.ErrAboveTotalAmount)
	assert.Equal(t, "5000.00", h.balance(bank.ID))

	res, err := h.engine.Payments.PayPartial(h.ctx, owner, inv.ID, bank.ID, m("100.00"))
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoicePartiallyPaid, res.Invoice.Status)
	assert.Equal(t, "900.00", res.Invoice.RemainingAmount.String())
	assert.Equal(t, "100.00", res.Payment.LimitReleased.String())
	assert.Equal(t, "4900.00", h.balance(bank.ID))
	assert.Equal(t, "-900.00", h.balance(card.ID))
	assert.Equal(t, "900.00", h.limit(card.ID).UsedLimit.String())

	// totals stay stable once the payment transfer is linked
	again, err := h.engine.Invoices.Recalculate(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", again.TotalAmount.String())
	assert.Equal(t, "900.00", again.RemainingAmount.String())

	_, err = h.engine.Transactions.UpdateStatus(h.ctx, owner, res.Transaction.ID, transaction.StatusCanceled)
	assert.ErrorIs(t, err, transaction.ErrManagedTransaction)
	assert.ErrorIs(t, h.engine.Transactions.Delete(h.ctx, owner, res.Transaction.ID), transaction.ErrManagedTransaction)

	full, err := h.engine.Payments.PayFull(h.ctx, owner, inv.ID, bank.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoicePaid, full.Invoice.Status)
	assert.NotNil(t, full.Invoice.PaidAt)
	assert.Equal(t, "900.00", full.Payment.Amount.String())
	assert.True(t, h.limit(card.ID).UsedLimit.IsZero())
	assert.Equal(t, "0.00", h.balance(card.ID))
	assert.Contains(t, h.events.Types(), ledger.EventInvoicePaid)

	_, err = h.engine.Payments.PayMinimum(h.ctx, owner, inv.ID, bank.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceAlreadyPaid)

	history, err := h.engine.Payments.History(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, creditcard.PaymentPartial, history[0].Type)
	assert.Equal(t, creditcard.PaymentFull, history[1].Type)
}

func TestPayMinimumAndSourceChecks(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")
	poor := h.account("Poor", account.TypeChecking, "10.00", false)

	_, err := h.expense(card.ID, "500.00")
	require.NoError(t, err)
	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)

	_, err = h.engine.Payments.PayFull(h.ctx, owner, inv.ID, card.ID)
	assert.ErrorIs(t, err, transaction.ErrInconsistentAccountsForType)

	_, err = h.engine.Payments.PayMinimum(h.ctx, owner, inv.ID, poor.ID)
	assert.ErrorIs(t, err, account.ErrNegativeBalanceNotAllowed)

	_, err = h.engine.Payments.Pay(h.ctx, owner, inv.ID, poor.ID, "ALL", money.Zero)
	assert.ErrorIs(t, err, creditcard.ErrInvalidPaymentType)

	_, err = h.engine.Accounts.AdjustBalance(h.ctx, owner, poor.ID, m("1000.00"), "salary")
	require.NoError(t, err)
	res, err := h.engine.Payments.PayMinimum(h.ctx, owner, inv.ID, poor.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", res.Payment.Amount.String())
	assert.Equal(t, creditcard.InvoicePartiallyPaid, res.Invoice.Status)
	assert.Equal(t, "950.00", h.balance(poor.ID))
}

func TestInvoiceMaintenance(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")

	tx, err := h.expense(card.ID, "300.00")
	require.NoError(t, err)
	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)

	companies, err := h.engine.Invoices.CompaniesDueForMaintenance(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, companies)

	h.clock.Set(time.Date(2024, time.March, 20, 3, 0, 0, 0, time.UTC))
	companies, err = h.engine.Invoices.CompaniesDueForMaintenance(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{owner.CompanyID}, companies)

	res, err := h.engine.Invoices.RunMaintenance(h.ctx, owner.CompanyID, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 0, res.Overdue)
	assert.Empty(t, res.Errors)

	closed, err := h.engine.Invoices.Get(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoiceClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = h.engine.Transactions.UpdateStatus(h.ctx, owner, tx.ID, transaction.StatusCanceled)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceNotOpen, "billed purchases cannot be canceled")

	h.clock.Set(time.Date(2024, time.March, 26, 3, 0, 0, 0, time.UTC))
	res, err = h.engine.Invoices.RunMaintenance(h.ctx, owner.CompanyID, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Overdue)

	overdue, err := h.engine.Invoices.Get(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoiceOverdue, overdue.Status)

	next, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	assert.Equal(t, time.April, next.ReferenceMonth)
	assert.Equal(t, "300.00", next.PreviousBalance.String(), "unpaid remainder carries over")

	charged, err := h.engine.Invoices.ApplyInterest(h.ctx, owner, next.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", charged.InterestAmount.String())
	charged, err = h.engine.Invoices.ApplyFees(h.ctx, owner, next.ID)
	require.NoError(t, err)
	assert.Equal(t, "6.00", charged.FeesAmount.String())
	assert.Equal(t, "336.00", charged.TotalAmount.String())

	res, err = h.engine.Invoices.RunMaintenance(h.ctx, owner.CompanyID, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Closed+res.Overdue, "maintenance is idempotent")
}

func TestInvoiceCloseDueAndMarkOverdue(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")

	_, err := h.expense(card.ID, "120.00")
	require.NoError(t, err)
	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)

	// past the due date: flagging alone leaves OPEN invoices to close first
	asOf := time.Date(2024, time.March, 26, 3, 0, 0, 0, time.UTC)
	h.clock.Set(asOf)

	res, err := h.engine.Invoices.CloseDueInvoices(h.ctx, owner.CompanyID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.Zero(t, res.Overdue)

	got, err := h.engine.Invoices.Get(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoiceClosed, got.Status)

	res, err = h.engine.Invoices.MarkOverdueInvoices(h.ctx, owner.CompanyID, asOf)
	require.NoError(t, err)
	assert.Zero(t, res.Closed)
	assert.Equal(t, 1, res.Overdue)

	got, err = h.engine.Invoices.Get(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoiceOverdue, got.Status)
}

func TestInvoiceGenerateAndCancel(t *testing.T) {
	h := newHarness(t)
	card := h.card("1000.00")

	inv, err := h.engine.Invoices.Generate(h.ctx, owner, card.ID, time.February, 2024)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC), inv.ClosingDate)

	_, err = h.engine.Invoices.Generate(h.ctx, owner, card.ID, time.February, 2024)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceAlreadyExists)

	_, err = h.engine.Invoices.Generate(h.ctx, owner, card.ID, 13, 2024)
	assert.ErrorIs(t, err, creditcard.ErrInvalidInput)

	canceled, err := h.engine.Invoices.Cancel(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoiceCanceled, canceled.Status)

	_, err = h.engine.Invoices.Cancel(h.ctx, owner, inv.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvalidInvoiceTransition)

	_, err = h.expense(card.ID, "10.00")
	require.NoError(t, err)
	current, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	_, err = h.engine.Invoices.Cancel(h.ctx, owner, current.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceHasTransactions)
}

func TestManualInvoiceLinks(t *testing.T) {
	h := newHarness(t)
	card := h.card("1000.00")

	tx, err := h.expense(card.ID, "100.00")
	require.NoError(t, err)
	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)

	_, err = h.engine.Invoices.AddTransaction(h.ctx, owner, inv.ID, tx.ID)
	assert.ErrorIs(t, err, creditcard.ErrTransactionAlreadyLinked)

	out, err := h.engine.Invoices.RemoveTransaction(h.ctx, owner, inv.ID, tx.ID)
	require.NoError(t, err)
	assert.True(t, out.PurchasesAmount.IsZero())
	assert.True(t, h.limit(card.ID).UsedLimit.IsZero())

	_, err = h.engine.Invoices.RemoveTransaction(h.ctx, owner, inv.ID, tx.ID)
	assert.ErrorIs(t, err, creditcard.ErrTransactionNotLinked)

	out, err = h.engine.Invoices.AddTransaction(h.ctx, owner, inv.ID, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", out.PurchasesAmount.String())
	assert.Equal(t, "100.00", h.limit(card.ID).UsedLimit.String())

	linked, err := h.engine.Invoices.Transactions(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, tx.ID, linked[0].ID)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")

	for _, amount := range []string{"10.01", "20.02", "30.03"} {
		_, err := h.expense(card.ID, amount)
		require.NoError(t, err)
	}
	_, err := h.income(card.ID, "5.00")
	require.NoError(t, err)

	inv, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)

	first, err := h.engine.Invoices.Recalculate(h.ctx, owner, inv.ID)
	require.NoError(t, err)
	second, err := h.engine.Invoices.Recalculate(h.ctx, owner, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, "60.06", first.PurchasesAmount.String())
	assert.Equal(t, "5.00", first.PaymentsAmount.String())
	assert.Equal(t, "55.06", first.TotalAmount.String())
	for name, pair := range map[string][2]money.Money{
		"total":     {first.TotalAmount, second.TotalAmount},
		"minimum":   {first.MinimumPayment, second.MinimumPayment},
		"remaining": {first.RemainingAmount, second.RemainingAmount},
		"purchases": {first.PurchasesAmount, second.PurchasesAmount},
	} {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s changed between recalculations: %s then %s", name, pair[0], pair[1])
		}
	}
}

func TestCarriedBalanceIsPaidOnce(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")
	bank := h.account("Bank", account.TypeChecking, "5000.00", false)

	_, err := h.expense(card.ID, "1000.00")
	require.NoError(t, err)
	march, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	_, err = h.engine.Invoices.Close(h.ctx, owner, march.ID)
	require.NoError(t, err)
	_, err = h.engine.Payments.PayPartial(h.ctx, owner, march.ID, bank.ID, m("100.00"))
	require.NoError(t, err)

	h.clock.Set(time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC))
	_, err = h.expense(card.ID, "50.00")
	require.NoError(t, err)
	april, err := h.engine.Invoices.Current(h.ctx, owner, card.ID)
	require.NoError(t, err)
	assert.Equal(t, time.April, april.ReferenceMonth)
	assert.Equal(t, "900.00", april.PreviousBalance.String())
	assert.Equal(t, "900.00", april.PreviousPrincipal.String())
	assert.Equal(t, "950.00", april.TotalAmount.String())

	_, err = h.engine.Payments.PayFull(h.ctx, owner, march.ID, bank.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceBalanceCarried)

	res, err := h.engine.Payments.PayFull(h.ctx, owner, april.ID, bank.ID)
	require.NoError(t, err)
	assert.Equal(t, "950.00", res.Payment.Amount.String())
	assert.Equal(t, creditcard.InvoicePaid, res.Invoice.Status)

	assert.Equal(t, "3950.00", h.balance(bank.ID))
	assert.Equal(t, "0.00", h.balance(card.ID))
	assert.True(t, h.limit(card.ID).UsedLimit.IsZero())

	settled, err := h.engine.Invoices.Get(h.ctx, owner, march.ID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoicePaid, settled.Status)
	assert.True(t, settled.RemainingAmount.IsZero())
	require.NotNil(t, settled.CarriedToInvoiceID)
	assert.Equal(t, april.ID, *settled.CarriedToInvoiceID)

	_, err = h.engine.Payments.PayFull(h.ctx, owner, march.ID, bank.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceAlreadyPaid)
	assert.Equal(t, "3950.00", h.balance(bank.ID))
}

func TestCloseCarriesIntoInvoiceCreatedAhead(t *testing.T) {
	h := newHarness(t)
	card := h.card("5000.00")
	bank := h.account("Bank", account.TypeChecking, "5000.00", false)

	inst, err := h.engine.Installments.Create(h.ctx, owner, creditcard.InstallmentParams{
		AccountID:        card.ID,
		Description:      "Camera",
		TotalAmount:      m("300.00"),
		InstallmentCount: 3,
		PurchaseDate:     h.clock.Now(),
	})
	require.NoError(t, err)
	marchID, aprilID := inst.Shares[0].InvoiceID, inst.Shares[1].InvoiceID

	_, err = h.engine.Invoices.Close(h.ctx, owner, marchID)
	require.NoError(t, err)
	april, err := h.engine.Invoices.Get(h.ctx, owner, aprilID)
	require.NoError(t, err)
	assert.True(t, april.PreviousBalance.IsZero(), "created before March was billed")

	april, err = h.engine.Invoices.Close(h.ctx, owner, aprilID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", april.PreviousBalance.String())
	assert.Equal(t, "200.00", april.TotalAmount.String())

	march, err := h.engine.Invoices.Get(h.ctx, owner, marchID)
	require.NoError(t, err)
	assert.True(t, march.IsCarried())
	_, err = h.engine.Payments.PayFull(h.ctx, owner, marchID, bank.ID)
	assert.ErrorIs(t, err, creditcard.ErrInvoiceBalanceCarried)

	res, err := h.engine.Payments.PayFull(h.ctx, owner, aprilID, bank.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", res.Payment.Amount.String())
	assert.Equal(t, "200.00", res.Payment.LimitReleased.String())
	assert.Equal(t, "100.00", h.limit(card.ID).UsedLimit.String())
	assert.Equal(t, "4800.00", h.balance(bank.ID))

	march, err = h.engine.Invoices.Get(h.ctx, owner, marchID)
	require.NoError(t, err)
	assert.Equal(t, creditcard.InvoicePaid, march.Status)

	got, err := h.engine.Installments.Get(h.ctx, owner, inst.ID)
	require.NoError(t, err)
	assert.True(t, got.Shares[0].IsPaid)
	assert.True(t, got.Shares[1].IsPaid)
	assert.False(t, got.Shares[2].IsPaid)
}
