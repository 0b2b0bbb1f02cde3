package creditcard

import (
	"errors"
	"fmt"
	"time"

	"finledger/internal/shared/money"
)

// Domain errors
var (
	ErrConfigNotFound          = errors.New("credit card configuration not found")
	ErrConfigAlreadyExists     = errors.New("credit card configuration already exists")
	ErrConfigInUse             = errors.New("credit card limit is in use")
	ErrNotCreditCard           = errors.New("account is not a credit card")
	ErrInsufficientCreditLimit = errors.New("insufficient credit limit")
	ErrInvalidInput            = errors.New("invalid input")

	ErrInvoiceNotFound          = errors.New("invoice not found")
	ErrInvoiceAlreadyExists     = errors.New("invoice already exists for this period")
	ErrInvoiceNotOpen           = errors.New("invoice is not open")
	ErrInvoiceAlreadyPaid       = errors.New("invoice is already paid")
	ErrInvalidInvoiceTransition = errors.New("invalid invoice status transition")
	ErrInvoiceHasPayments       = errors.New("invoice has payments")
	ErrInvoiceHasTransactions   = errors.New("invoice has linked transactions")
	ErrInvoiceBalanceCarried    = errors.New("invoice balance was carried to the next invoice")
	ErrTransactionAlreadyLinked = errors.New("transaction is already linked to an invoice")
	ErrTransactionNotLinked     = errors.New("transaction is not linked to this invoice")
	ErrTransactionNotOnCard     = errors.New("transaction does not belong to this card")

	ErrInstallmentNotFound     = errors.New("installment purchase not found")
	ErrInvalidInstallmentCount = errors.New("installment count must be between 2 and 48")
	ErrInstallmentCanceled     = errors.New("installment purchase is canceled")
	ErrInstallmentCompleted    = errors.New("installment purchase is fully paid")
	ErrDuplicatePurchaseKey    = errors.New("installment purchase key already used")

	ErrBelowMinimumPayment = errors.New("payment is below the minimum payment")
	ErrAboveTotalAmount    = errors.New("payment exceeds the amount due")
	ErrInvalidPaymentType  = errors.New("invalid payment type")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
)

const (
	MinInstallments = 2
	MaxInstallments = 48
)

var hundred = money.NewFromInt(100)

// Config is the one-to-one credit card configuration of a CREDIT_CARD
// account. AvailableLimit + UsedLimit always equals CreditLimit.
type Config struct {
	ID                    int64       `json:"id"`
	CompanyID             int64       `json:"companyId"`
	AccountID             int64       `json:"accountId"`
	CreditLimit           money.Money `json:"creditLimit"`
	UsedLimit             money.Money `json:"usedLimit"`
	AvailableLimit        money.Money `json:"availableLimit"`
	ClosingDay            int         `json:"closingDay"`
	DueDay                int         `json:"dueDay"`
	DueDaysAfterClosing   int         `json:"dueDaysAfterClosing"`
	InterestRate          money.Money `json:"interestRate"`
	LateFeePercent        money.Money `json:"lateFeePercent"`
	MinimumPaymentPercent money.Money `json:"minimumPaymentPercent"`
	AlertThresholdPercent money.Money `json:"alertThresholdPercent"`
	AlertEnabled          bool        `json:"alertEnabled"`
	CreatedAt             time.Time   `json:"createdAt"`
	UpdatedAt             time.Time   `json:"updatedAt"`
}

type LimitOp string

const (
	LimitAdd      LimitOp = "add"
	LimitSubtract LimitOp = "subtract"
)

// AdjustUsed moves UsedLimit by amount, clamps it at zero and recomputes
// AvailableLimit.
func (c *Config) AdjustUsed(amount money.Money, op LimitOp) {
	switch op {
	case LimitAdd:
		c.UsedLimit = c.UsedLimit.Add(amount)
	case LimitSubtract:
		c.UsedLimit = c.UsedLimit.Sub(amount)
	}
	if c.UsedLimit.IsNegative() {
		c.UsedLimit = money.Zero
	}
	c.AvailableLimit = c.CreditLimit.Sub(c.UsedLimit)
}

// HasAvailable reports whether amount fits in the available limit.
func (c *Config) HasAvailable(amount money.Money) bool {
	return c.AvailableLimit.GreaterThanOrEqual(amount)
}

// SetCreditLimit changes the limit while keeping the used amount.
func (c *Config) SetCreditLimit(limit money.Money) {
	c.CreditLimit = limit
	c.AvailableLimit = limit.Sub(c.UsedLimit)
}

// LimitStatus summarizes card limit usage.
type LimitStatus struct {
	AccountID      int64       `json:"accountId"`
	CreditLimit    money.Money `json:"creditLimit"`
	UsedLimit      money.Money `json:"usedLimit"`
	AvailableLimit money.Money `json:"availableLimit"`
	UsagePercent   money.Money `json:"usagePercent"`
	AlertTriggered bool        `json:"alertTriggered"`
}

// Status computes the usage summary of c.
func (c *Config) Status() LimitStatus {
	usage := money.Zero
	if c.CreditLimit.IsPositive() {
		usage, _ = c.UsedLimit.Ratio(hundred, c.CreditLimit)
	}
	return LimitStatus{
		AccountID:      c.AccountID,
		CreditLimit:    c.CreditLimit,
		UsedLimit:      c.UsedLimit,
		AvailableLimit: c.AvailableLimit,
		UsagePercent:   usage,
		AlertTriggered: c.AlertEnabled && c.AlertThresholdPercent.IsPositive() && usage.GreaterThanOrEqual(c.AlertThresholdPercent),
	}
}

// ConfigParams contains parameters for creating a card configuration
type ConfigParams struct {
	CreditLimit           money.Money
	ClosingDay            int
	DueDay                int
	DueDaysAfterClosing   int
	InterestRate          money.Money
	LateFeePercent        money.Money
	MinimumPaymentPercent money.Money
	AlertThresholdPercent money.Money
	AlertEnabled          bool
}

// Validate validates the config parameters
func (p ConfigParams) Validate() error {
	if p.CreditLimit.IsNegative() {
		return invalid("credit limit cannot be negative")
	}
	if p.ClosingDay < 1 || p.ClosingDay > 31 {
		return invalid("closing day must be between 1 and 31")
	}
	if p.DueDay < 1 || p.DueDay > 31 {
		return invalid("due day must be between 1 and 31")
	}
	if p.DueDaysAfterClosing < 0 || p.DueDaysAfterClosing > 60 {
		return invalid("due days after closing must be between 0 and 60")
	}
	for name, pct := range map[string]money.Money{
		"interest rate":           p.InterestRate,
		"late fee percent":        p.LateFeePercent,
		"minimum payment percent": p.MinimumPaymentPercent,
		"alert threshold percent": p.AlertThresholdPercent,
	} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return invalid(name + " must be between 0 and 100")
		}
	}
	return nil
}

// ConfigUpdateParams contains parameters for updating a card configuration
type ConfigUpdateParams struct {
	CreditLimit           *money.Money
	ClosingDay            *int
	DueDay                *int
	DueDaysAfterClosing   *int
	InterestRate          *money.Money
	LateFeePercent        *money.Money
	MinimumPaymentPercent *money.Money
	AlertThresholdPercent *money.Money
	AlertEnabled          *bool
}

// Apply returns c with the params applied and validated.
func (p ConfigUpdateParams) Apply(c *Config) (*Config, error) {
	next := *c
	params := ConfigParams{
		CreditLimit:           c.CreditLimit,
		ClosingDay:            c.ClosingDay,
		DueDay:                c.DueDay,
		DueDaysAfterClosing:   c.DueDaysAfterClosing,
		InterestRate:          c.InterestRate,
		LateFeePercent:        c.LateFeePercent,
		MinimumPaymentPercent: c.MinimumPaymentPercent,
		AlertThresholdPercent: c.AlertThresholdPercent,
		AlertEnabled:          c.AlertEnabled,
	}
	if p.CreditLimit != nil {
		params.CreditLimit = *p.CreditLimit
	}
	if p.ClosingDay != nil {
		params.ClosingDay = *p.ClosingDay
	}
	if p.DueDay != nil {
		params.DueDay = *p.DueDay
	}
	if p.DueDaysAfterClosing != nil {
		params.DueDaysAfterClosing = *p.DueDaysAfterClosing
	}
	if p.InterestRate != nil {
		params.InterestRate = *p.InterestRate
	}
	if p.LateFeePercent != nil {
		params.LateFeePercent = *p.LateFeePercent
	}
	if p.MinimumPaymentPercent != nil {
		params.MinimumPaymentPercent = *p.MinimumPaymentPercent
	}
	if p.AlertThresholdPercent != nil {
		params.AlertThresholdPercent = *p.AlertThresholdPercent
	}
	if p.AlertEnabled != nil {
		params.AlertEnabled = *p.AlertEnabled
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	next.SetCreditLimit(params.CreditLimit)
	next.ClosingDay = params.ClosingDay
	next.DueDay = params.DueDay
	next.DueDaysAfterClosing = params.DueDaysAfterClosing
	next.InterestRate = params.InterestRate
	next.LateFeePercent = params.LateFeePercent
	next.MinimumPaymentPercent = params.MinimumPaymentPercent
	next.AlertThresholdPercent = params.AlertThresholdPercent
	next.AlertEnabled = params.AlertEnabled
	return &next, nil
}

// invalid wraps a validation message in ErrInvalidInput.
func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
