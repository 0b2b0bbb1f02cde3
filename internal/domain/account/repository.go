package account

import (
	"context"

	"finledger/internal/shared/money"
)

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create inserts a new account and sets its ID and timestamps
	Create(ctx context.Context, a *Account) error

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// LockByID retrieves an account and holds a row lock until the unit of work ends
	LockByID(ctx context.Context, id int64) (*Account, error)

	// List retrieves the company's accounts
	List(ctx context.Context, companyID int64, f Filter) ([]*Account, error)

	// Update persists every mutable field except the balance
	Update(ctx context.Context, a *Account) error

	// UpdateBalance sets the stored balance
	UpdateBalance(ctx context.Context, id int64, balance money.Money) error

	// Delete removes an account together with its card configuration and invoices
	Delete(ctx context.Context, id int64) error

	// ExistsActiveByName checks for another active account with the same name
	ExistsActiveByName(ctx context.Context, companyID int64, name string, excludeID int64) (bool, error)

	// ClearDefault unsets the default flag on every company account except exceptID
	ClearDefault(ctx context.Context, companyID int64, exceptID int64) error

	// GetDefault retrieves the company's active default account
	GetDefault(ctx context.Context, companyID int64) (*Account, error)
}
