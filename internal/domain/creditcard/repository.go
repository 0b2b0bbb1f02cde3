package creditcard

import (
	"context"

	"finledger/internal/domain/transaction"
)

// ConfigRepository defines data access for card configurations
type ConfigRepository interface {
	Create(ctx context.Context, c *Config) error
	GetByAccountID(ctx context.Context, accountID int64) (*Config, error)
	// LockByAccountID holds a row lock until the unit of work ends. Every
	// limit change and invoice creation for a card goes through it first.
	LockByAccountID(ctx context.Context, accountID int64) (*Config, error)
	Update(ctx context.Context, c *Config) error
	Delete(ctx context.Context, accountID int64) error
}

// InvoiceRepository defines data access for invoices and their links
type InvoiceRepository interface {
	// Create inserts inv; a duplicate (account, year, month) fails with ErrInvoiceAlreadyExists
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	LockByID(ctx context.Context, id int64) (*Invoice, error)
	GetByPeriod(ctx context.Context, accountID int64, p Period) (*Invoice, error)
	LockByPeriod(ctx context.Context, accountID int64, p Period) (*Invoice, error)
	List(ctx context.Context, f InvoiceFilter) ([]*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	LinkTransaction(ctx context.Context, invoiceID, transactionID int64) error
	UnlinkTransaction(ctx context.Context, invoiceID, transactionID int64) error
	// FindByTransaction returns the invoice of accountID that transactionID is linked to, or nil
	FindByTransaction(ctx context.Context, accountID, transactionID int64) (*Invoice, error)
	ListTransactions(ctx context.Context, invoiceID int64) ([]*transaction.Transaction, error)
}

// InstallmentRepository defines data access for installment purchases
type InstallmentRepository interface {
	// Create inserts inst; a reused purchase key fails with ErrDuplicatePurchaseKey
	Create(ctx context.Context, inst *Installment) error
	GetByID(ctx context.Context, id int64) (*Installment, error)
	LockByID(ctx context.Context, id int64) (*Installment, error)
	GetByPurchaseKey(ctx context.Context, companyID int64, key string) (*Installment, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*Installment, error)
	Update(ctx context.Context, inst *Installment) error

	CreateShare(ctx context.Context, s *Share) error
	UpdateShare(ctx context.Context, s *Share) error
	ListShares(ctx context.Context, installmentID int64) ([]*Share, error)
	ListSharesByInvoice(ctx context.Context, invoiceID int64) ([]*Share, error)
	// FindShareByTransaction returns the share backed by transactionID, or nil
	FindShareByTransaction(ctx context.Context, transactionID int64) (*Share, error)
}

// PaymentRepository defines data access for invoice payments
type PaymentRepository interface {
	Create(ctx context.Context, p *InvoicePayment) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]*InvoicePayment, error)
	// FindByTransaction returns the payment backed by transactionID, or nil
	FindByTransaction(ctx context.Context, transactionID int64) (*InvoicePayment, error)
}
