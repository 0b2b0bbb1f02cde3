package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	// Create inserts t and sets its ID and timestamps
	Create(ctx context.Context, t *Transaction) error

	GetByID(ctx context.Context, id int64) (*Transaction, error)

	// LockByID retrieves a transaction and holds a row lock until the unit of work ends
	LockByID(ctx context.Context, id int64) (*Transaction, error)

	// Update persists every mutable field of t
	Update(ctx context.Context, t *Transaction) error

	Delete(ctx context.Context, id int64) error

	// List returns the matching page and the total count before paging
	List(ctx context.Context, f Filter) ([]*Transaction, int, error)

	// ListByAccount returns every transaction touching accountID with the given status
	ListByAccount(ctx context.Context, accountID int64, status Status) ([]*Transaction, error)

	// CountByAccount counts transactions referencing accountID in any status
	CountByAccount(ctx context.Context, accountID int64) (int, error)
}
