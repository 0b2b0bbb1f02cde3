package creditcard

import (
	"time"

	"finledger/internal/shared/money"
)

type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "OPEN"
	InvoiceClosed        InvoiceStatus = "CLOSED"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceOverdue       InvoiceStatus = "OVERDUE"
	InvoiceCanceled      InvoiceStatus = "CANCELED"
)

var invoiceStatuses = map[InvoiceStatus]struct{}{
	InvoiceOpen:          {},
	InvoiceClosed:        {},
	InvoicePaid:          {},
	InvoicePartiallyPaid: {},
	InvoiceOverdue:       {},
	InvoiceCanceled:      {},
}

// Invoice is one monthly billing cycle of a card. Its amounts are always
// re-derivable from linked transactions, recorded payments and the balance
// carried between neighbouring periods. PreviousBalance is the unpaid
// remainder carried in from the prior period and PreviousPrincipal the part
// of it still holding card limit. CarriedAmount left for the invoice
// CarriedToInvoiceID and is owed there instead of here.
type Invoice struct {
	ID                 int64         `json:"id"`
	CompanyID          int64         `json:"companyId"`
	AccountID          int64         `json:"accountId"`
	ReferenceYear      int           `json:"referenceYear"`
	ReferenceMonth     time.Month    `json:"referenceMonth"`
	ClosingDate        time.Time     `json:"closingDate"`
	DueDate            time.Time     `json:"dueDate"`
	PreviousBalance    money.Money   `json:"previousBalance"`
	PreviousPrincipal  money.Money   `json:"previousPrincipal"`
	PurchasesAmount    money.Money   `json:"purchasesAmount"`
	PaymentsAmount     money.Money   `json:"paymentsAmount"`
	InterestAmount     money.Money   `json:"interestAmount"`
	FeesAmount         money.Money   `json:"feesAmount"`
	TotalAmount        money.Money   `json:"totalAmount"`
	MinimumPayment     money.Money   `json:"minimumPayment"`
	PaidAmount         money.Money   `json:"paidAmount"`
	CarriedAmount      money.Money   `json:"carriedAmount"`
	CarriedToInvoiceID *int64        `json:"carriedToInvoiceId,omitempty"`
	RemainingAmount    money.Money   `json:"remainingAmount"`
	IsPaid             bool          `json:"isPaid"`
	Status             InvoiceStatus `json:"status"`
	ClosedAt           *time.Time    `json:"closedAt,omitempty"`
	PaidAt             *time.Time    `json:"paidAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// Period returns the invoice reference month.
func (inv *Invoice) Period() Period {
	return Period{Year: inv.ReferenceYear, Month: inv.ReferenceMonth}
}

// Recalculate derives every total from its sources. Calling it again with
// the same inputs yields the same amounts.
func (inv *Invoice) Recalculate(purchases, payments, paid, minimumPaymentPercent money.Money) {
	inv.PurchasesAmount = purchases
	inv.PaymentsAmount = payments
	inv.PaidAmount = paid
	inv.TotalAmount = inv.PreviousBalance.Add(purchases, inv.InterestAmount, inv.FeesAmount).Sub(payments)
	inv.MinimumPayment = money.Max(inv.TotalAmount.Percent(minimumPaymentPercent), money.Zero)
	inv.RemainingAmount = inv.TotalAmount.Sub(paid).Sub(inv.CarriedAmount)
	inv.IsPaid = !inv.RemainingAmount.IsPositive()
}

// Principal is the part of the invoice backed by reserved card limit: the
// carried principal plus this cycle's purchases net of credits. Interest
// and fees never reserve limit.
func (inv *Invoice) Principal() money.Money {
	return money.Max(inv.PreviousPrincipal.Add(inv.PurchasesAmount).Sub(inv.PaymentsAmount), money.Zero)
}

// CarryTo moves the remaining amount onto the invoice next, whose previous
// balance absorbs it. This invoice owes nothing afterwards.
func (inv *Invoice) CarryTo(next *Invoice, principal money.Money) {
	amount := inv.RemainingAmount
	nextID := next.ID
	inv.CarriedAmount = inv.CarriedAmount.Add(amount)
	inv.CarriedToInvoiceID = &nextID
	inv.RemainingAmount = money.Zero
	inv.IsPaid = true

	next.PreviousBalance = next.PreviousBalance.Add(amount)
	next.PreviousPrincipal = next.PreviousPrincipal.Add(money.Min(money.Max(principal, money.Zero), amount))
}

// Uncarry takes back the amount this invoice carried to next.
func (inv *Invoice) Uncarry(next *Invoice) {
	next.PreviousBalance = money.Max(next.PreviousBalance.Sub(inv.CarriedAmount), money.Zero)
	next.PreviousPrincipal = money.Min(next.PreviousPrincipal, next.PreviousBalance)
	inv.RemainingAmount = inv.RemainingAmount.Add(inv.CarriedAmount)
	inv.CarriedAmount = money.Zero
	inv.CarriedToInvoiceID = nil
	inv.IsPaid = !inv.RemainingAmount.IsPositive()
}

// IsCarried reports whether the balance moved to a later invoice.
func (inv *Invoice) IsCarried() bool {
	return inv.CarriedToInvoiceID != nil
}

// AcceptsPayments reports whether a payment may be applied.
func (inv *Invoice) AcceptsPayments() error {
	switch inv.Status {
	case InvoiceCanceled:
		return ErrInvalidInvoiceTransition
	case InvoicePaid:
		return ErrInvoiceAlreadyPaid
	}
	if inv.IsCarried() {
		return ErrInvoiceBalanceCarried
	}
	if inv.IsPaid {
		return ErrInvoiceAlreadyPaid
	}
	return nil
}

// IsPastDue reports whether the due date is strictly before asOf's day.
func (inv *Invoice) IsPastDue(asOf time.Time) bool {
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	return inv.DueDate.Before(today)
}

// CarriesBalance reports whether the next period's invoice starts with this
// invoice's remaining amount. Only billed, unsettled invoices carry; an OPEN
// invoice is still collecting purchases.
func (inv *Invoice) CarriesBalance() bool {
	switch inv.Status {
	case InvoiceClosed, InvoicePartiallyPaid, InvoiceOverdue:
		return !inv.IsCarried() && inv.RemainingAmount.IsPositive()
	}
	return false
}

// CanBecomeOverdue reports whether the status allows the OVERDUE move.
func (inv *Invoice) CanBecomeOverdue() bool {
	switch inv.Status {
	case InvoiceOpen, InvoiceClosed, InvoicePartiallyPaid:
		return true
	}
	return false
}

// IsValidInvoiceStatus checks if the provided status is valid.
func IsValidInvoiceStatus(s InvoiceStatus) bool {
	_, ok := invoiceStatuses[s]
	return ok
}

// InvoiceFilter narrows invoice listings. CompanyID 0 spans all companies
// and is reserved for maintenance sweeps.
type InvoiceFilter struct {
	CompanyID     int64
	AccountID     int64
	Year          int
	Statuses      []InvoiceStatus
	ClosingBefore *time.Time
	DueBefore     *time.Time
}

type PaymentType string

const (
	PaymentFull    PaymentType = "FULL"
	PaymentMinimum PaymentType = "MINIMUM"
	PaymentPartial PaymentType = "PARTIAL"
)

// IsValidPaymentType checks if the provided payment type is valid.
func IsValidPaymentType(t PaymentType) bool {
	switch t {
	case PaymentFull, PaymentMinimum, PaymentPartial:
		return true
	}
	return false
}

// InvoicePayment records one payment applied to an invoice.
type InvoicePayment struct {
	ID              int64       `json:"id"`
	CompanyID       int64       `json:"companyId"`
	InvoiceID       int64       `json:"invoiceId"`
	TransactionID   int64       `json:"transactionId"`
	SourceAccountID int64       `json:"sourceAccountId"`
	Amount          money.Money `json:"amount"`
	Type            PaymentType `json:"type"`
	LimitReleased   money.Money `json:"limitReleased"`
	PaidAt          time.Time   `json:"paidAt"`
	CreatedBy       int64       `json:"createdBy"`
}
