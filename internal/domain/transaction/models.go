package transaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"finledger/internal/shared/money"
)

type Type string

const (
	TypeIncome   Type = "INCOME"
	TypeExpense  Type = "EXPENSE"
	TypeTransfer Type = "TRANSFER"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

var (
	transactionTypes = map[Type]struct{}{
		TypeIncome:   {},
		TypeExpense:  {},
		TypeTransfer: {},
	}
	statuses = map[Status]struct{}{
		StatusPending:   {},
		StatusCompleted: {},
		StatusCanceled:  {},
	}
	// allowed status moves; CANCELED is terminal
	transitions = map[Status][]Status{
		StatusPending:   {StatusCompleted, StatusCanceled},
		StatusCompleted: {StatusCanceled},
	}
)

// Domain errors
var (
	ErrTransactionNotFound         = errors.New("transaction not found")
	ErrInvalidInput                = errors.New("invalid input")
	ErrInvalidType                 = errors.New("invalid transaction type")
	ErrInvalidStatus               = errors.New("invalid transaction status")
	ErrInvalidAmount               = errors.New("amount must be greater than zero")
	ErrInconsistentAccountsForType = errors.New("accounts are inconsistent with the transaction type")
	ErrInvalidStatusTransition     = errors.New("invalid status transition")
	ErrTransactionCanceled         = errors.New("transaction is canceled")
	ErrInvalidDateRange            = errors.New("start date must not be after end date")
	ErrInvalidGroupBy              = errors.New("invalid group by")
	ErrManagedTransaction          = errors.New("transaction is managed by a card payment or installment purchase")
)

type Transaction struct {
	ID            int64       `json:"id"`
	CompanyID     int64       `json:"companyId"`
	Description   string      `json:"description"`
	Amount        money.Money `json:"amount"`
	Date          time.Time   `json:"date"`
	Type          Type        `json:"type"`
	Status        Status      `json:"status"`
	FromAccountID *int64      `json:"fromAccountId,omitempty"`
	ToAccountID   *int64      `json:"toAccountId,omitempty"`
	CategoryID    *int64      `json:"categoryId,omitempty"`
	Tags          []string    `json:"tags"`
	Notes         string      `json:"notes"`
	CreatedBy     int64       `json:"createdBy"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Effect is the signed balance change a COMPLETED transaction applies to
// one account.
type Effect struct {
	AccountID int64
	Delta     money.Money
}

// Effects returns the balance changes of t ordered by ascending account ID,
// which is also the row-lock order.
func (t *Transaction) Effects() []Effect {
	var effects []Effect
	switch t.Type {
	case TypeExpense:
		if t.FromAccountID != nil {
			effects = append(effects, Effect{AccountID: *t.FromAccountID, Delta: t.Amount.Neg()})
		}
	case TypeIncome:
		if t.ToAccountID != nil {
			effects = append(effects, Effect{AccountID: *t.ToAccountID, Delta: t.Amount})
		}
	case TypeTransfer:
		if t.FromAccountID != nil {
			effects = append(effects, Effect{AccountID: *t.FromAccountID, Delta: t.Amount.Neg()})
		}
		if t.ToAccountID != nil {
			effects = append(effects, Effect{AccountID: *t.ToAccountID, Delta: t.Amount})
		}
	}
	sort.Slice(effects, func(i, j int) bool { return effects[i].AccountID < effects[j].AccountID })
	return effects
}

// EffectOn returns the signed change t applies to accountID when COMPLETED.
func (t *Transaction) EffectOn(accountID int64) money.Money {
	total := money.Zero
	for _, e := range t.Effects() {
		if e.AccountID == accountID {
			total = total.Add(e.Delta)
		}
	}
	return total
}

// AccountIDs returns the referenced account IDs in ascending order.
func (t *Transaction) AccountIDs() []int64 {
	var ids []int64
	if t.FromAccountID != nil {
		ids = append(ids, *t.FromAccountID)
	}
	if t.ToAccountID != nil && (t.FromAccountID == nil || *t.ToAccountID != *t.FromAccountID) {
		ids = append(ids, *t.ToAccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Touches reports whether t references accountID on either side.
func (t *Transaction) Touches(accountID int64) bool {
	return (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
		(t.ToAccountID != nil && *t.ToAccountID == accountID)
}

// IsCompleted reports whether t currently affects balances.
func (t *Transaction) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Clone returns a deep copy of t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.FromAccountID = cloneID(t.FromAccountID)
	c.ToAccountID = cloneID(t.ToAccountID)
	c.CategoryID = cloneID(t.CategoryID)
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	return &c
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// CanTransitionTo reports whether moving from the current status to next is
// allowed.
func (t *Transaction) CanTransitionTo(next Status) bool {
	for _, s := range transitions[t.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// ValidateAccounts checks that the account pair matches the type.
func ValidateAccounts(typ Type, from, to *int64) error {
	switch typ {
	case TypeExpense:
		if from == nil || to != nil {
			return ErrInconsistentAccountsForType
		}
	case TypeIncome:
		if to == nil || from != nil {
			return ErrInconsistentAccountsForType
		}
	case TypeTransfer:
		if from == nil || to == nil || *from == *to {
			return ErrInconsistentAccountsForType
		}
	default:
		return ErrInvalidType
	}
	return nil
}

// CreateParams contains parameters for creating a transaction
type CreateParams struct {
	Description   string
	Amount        money.Money
	Date          time.Time
	Type          Type
	Status        Status
	FromAccountID *int64
	ToAccountID   *int64
	CategoryID    *int64
	Tags          []string
	Notes         string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.Description) == "" {
		return invalid("description is required")
	}
	if len(p.Description) > 255 {
		return invalid("description must be at most 255 characters")
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.Date.IsZero() {
		return invalid("date is required")
	}
	if !IsValidType(p.Type) {
		return ErrInvalidType
	}
	if p.Status != "" && p.Status != StatusPending && p.Status != StatusCompleted {
		return ErrInvalidStatus
	}
	return ValidateAccounts(p.Type, p.FromAccountID, p.ToAccountID)
}

// UpdateParams contains parameters for updating a transaction. The type and
// status are changed through their own operations.
type UpdateParams struct {
	Description   *string
	Amount        *money.Money
	Date          *time.Time
	FromAccountID *int64
	ToAccountID   *int64
	CategoryID    *int64
	ClearCategory bool
	Tags          *[]string
	Notes         *string
}

// Apply returns a copy of t with the params applied.
func (p UpdateParams) Apply(t *Transaction) (*Transaction, error) {
	next := t.Clone()
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return nil, invalid("description cannot be empty")
		}
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		next.Amount = *p.Amount
	}
	if p.Date != nil {
		next.Date = *p.Date
	}
	if p.FromAccountID != nil {
		next.FromAccountID = cloneID(p.FromAccountID)
	}
	if p.ToAccountID != nil {
		next.ToAccountID = cloneID(p.ToAccountID)
	}
	if p.ClearCategory {
		next.CategoryID = nil
	} else if p.CategoryID != nil {
		next.CategoryID = cloneID(p.CategoryID)
	}
	if p.Tags != nil {
		next.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if err := ValidateAccounts(next.Type, next.FromAccountID, next.ToAccountID); err != nil {
		return nil, err
	}
	return next, nil
}

// ChangesEffects reports whether the update alters balances.
func (p UpdateParams) ChangesEffects() bool {
	return p.Amount != nil || p.FromAccountID != nil || p.ToAccountID != nil || p.Date != nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter narrows transaction listings. PageSize 0 disables paging.
type Filter struct {
	CompanyID  int64
	StartDate  *time.Time
	EndDate    *time.Time
	Type       *Type
	Status     *Status
	AccountID  *int64
	CategoryID *int64
	Search     string
	Page       int
	PageSize   int
}

func (f Filter) Validate() error {
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return ErrInvalidDateRange
	}
	if f.Type != nil && !IsValidType(*f.Type) {
		return ErrInvalidType
	}
	if f.Status != nil && !IsValidStatus(*f.Status) {
		return ErrInvalidStatus
	}
	return nil
}

// Normalized clamps paging to sane values.
func (f Filter) Normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset returns the row offset for the current page.
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// Page is one page of a listing.
type Page struct {
	Items    []*Transaction `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type GroupBy string

const (
	GroupByType     GroupBy = "type"
	GroupByCategory GroupBy = "category"
	GroupByMonth    GroupBy = "month"
)

// SummaryRow aggregates COMPLETED transactions for one group key.
type SummaryRow struct {
	Key   string      `json:"key"`
	Count int         `json:"count"`
	Total money.Money `json:"total"`
}

// IsValidType checks if the provided transaction type is valid.
func IsValidType(t Type) bool {
	_, ok := transactionTypes[t]
	return ok
}

// IsValidStatus checks if the provided status is valid.
func IsValidStatus(s Status) bool {
	_, ok := statuses[s]
	return ok
}

// ParseGroupBy validates a group-by value.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(s)); g {
	case GroupByType, GroupByCategory, GroupByMonth:
		return g, nil
	}
	return "", ErrInvalidGroupBy
}

// invalid wraps a validation message in ErrInvalidInput.
func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
