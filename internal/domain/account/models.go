package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finledger/internal/shared/money"
)

type Type string

const (
	TypeChecking   Type = "CHECKING"
	TypeSavings    Type = "SAVINGS"
	TypeCreditCard Type = "CREDIT_CARD"
	TypeInvestment Type = "INVESTMENT"
	TypeCash       Type = "CASH"
)

var accountTypes = map[Type]struct{}{
	TypeChecking:   {},
	TypeSavings:    {},
	TypeCreditCard: {},
	TypeInvestment: {},
	TypeCash:       {},
}

// Domain errors
var (
	ErrInvalidAccountType         = errors.New("invalid account type")
	ErrAccountNotFound            = errors.New("account not found")
	ErrInvalidInput               = errors.New("invalid input")
	ErrDuplicateAccountName       = errors.New("an active account with this name already exists")
	ErrAccountInactive            = errors.New("account is inactive")
	ErrHasTransactions            = errors.New("account has transactions")
	ErrNegativeBalanceNotAllowed  = errors.New("negative balance not allowed for this account")
	ErrNegativeBalancePresent     = errors.New("account currently has a negative balance")
	ErrCreditCardRequiresNegative = errors.New("credit card accounts must allow negative balances")
	ErrNoDefaultAccount           = errors.New("company has no default account")
)

// Account is a company-scoped financial account. Balance is only changed
// by the transaction engine and by explicit balance adjustments.
type Account struct {
	ID                   int64       `json:"id"`
	CompanyID            int64       `json:"companyId"`
	Name                 string      `json:"name"`
	Type                 Type        `json:"type"`
	InitialBalance       money.Money `json:"initialBalance"`
	Balance              money.Money `json:"balance"`
	IsActive             bool        `json:"isActive"`
	IsDefault            bool        `json:"isDefault"`
	AllowNegativeBalance bool        `json:"allowNegativeBalance"`
	Description          string      `json:"description"`
	Color                string      `json:"color"`
	CreatedBy            int64       `json:"createdBy"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// IsCreditCard reports whether the account is a credit card sub-ledger.
func (a *Account) IsCreditCard() bool {
	return a.Type == TypeCreditCard
}

// CanDebit reports whether subtracting amount keeps the balance within the
// account's negative-balance policy.
func (a *Account) CanDebit(amount money.Money) bool {
	if a.AllowNegativeBalance {
		return true
	}
	return !a.Balance.Sub(amount).IsNegative()
}

// CreateParams contains parameters for creating a new account
type CreateParams struct {
	CompanyID            int64
	Name                 string
	Type                 Type
	InitialBalance       money.Money
	IsDefault            bool
	AllowNegativeBalance bool
	Description          string
	Color                string
	CreatedBy            int64
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.CompanyID <= 0 {
		return invalid("valid company ID is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return invalid("account name is required")
	}
	if len(p.Name) > 100 {
		return invalid("account name must be at most 100 characters")
	}
	if p.Type == "" {
		return invalid("account type is required")
	}
	if !IsValidType(p.Type) {
		return ErrInvalidAccountType
	}
	return nil
}

// Normalize applies defaults and the credit-card negative balance rule.
func (p *CreateParams) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	if p.Type == TypeCreditCard {
		p.AllowNegativeBalance = true
	}
}

// UpdateParams contains parameters for updating an account
type UpdateParams struct {
	Name        *string
	Description *string
	Color       *string
	IsActive    *bool
}

func (p UpdateParams) Validate() error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return invalid("account name cannot be empty")
		}
		if len(name) > 100 {
			return invalid("account name must be at most 100 characters")
		}
	}
	return nil
}

// Filter narrows account listings.
type Filter struct {
	Type     *Type
	IsActive *bool
}

// IsValidType checks if the provided account type is valid.
func IsValidType(t Type) bool {
	_, ok := accountTypes[t]
	return ok
}

// invalid wraps a validation message in ErrInvalidInput.
func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
