package creditcard

import (
	"strings"
	"time"

	"finledger/internal/shared/money"
)

type InstallmentStatus string

const (
	InstallmentActive    InstallmentStatus = "ACTIVE"
	InstallmentCompleted InstallmentStatus = "COMPLETED"
	InstallmentCanceled  InstallmentStatus = "CANCELED"
)

// Installment is a purchase split across several future invoices.
type Installment struct {
	ID                int64             `json:"id"`
	CompanyID         int64             `json:"companyId"`
	AccountID         int64             `json:"accountId"`
	PurchaseKey       string            `json:"purchaseKey"`
	Description       string            `json:"description"`
	TotalAmount       money.Money       `json:"totalAmount"`
	InstallmentCount  int               `json:"installmentCount"`
	InstallmentAmount money.Money       `json:"installmentAmount"`
	PurchaseDate      time.Time         `json:"purchaseDate"`
	CategoryID        *int64            `json:"categoryId,omitempty"`
	Status            InstallmentStatus `json:"status"`
	CreatedBy         int64             `json:"createdBy"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	Shares            []*Share          `json:"shares,omitempty"`
}

// Share is one installment of a purchase, billed on a single invoice.
type Share struct {
	ID            int64       `json:"id"`
	InstallmentID int64       `json:"installmentId"`
	Number        int         `json:"number"`
	Amount        money.Money `json:"amount"`
	InvoiceID     int64       `json:"invoiceId"`
	TransactionID int64       `json:"transactionId"`
	DueDate       time.Time   `json:"dueDate"`
	IsPaid        bool        `json:"isPaid"`
	PaidAt        *time.Time  `json:"paidAt,omitempty"`
	CanceledAt    *time.Time  `json:"canceledAt,omitempty"`
}

// Settled reports whether the share needs no further action.
func (s *Share) Settled() bool {
	return s.IsPaid || s.CanceledAt != nil
}

// InstallmentParams contains parameters for an installment purchase
type InstallmentParams struct {
	AccountID        int64
	Description      string
	TotalAmount      money.Money
	InstallmentCount int
	PurchaseDate     time.Time
	CategoryID       *int64
	// PurchaseKey makes creation idempotent; a repeated key returns the
	// existing purchase.
	PurchaseKey      string
}

// Validate validates the installment parameters
func (p InstallmentParams) Validate() error {
	if p.AccountID <= 0 {
		return invalid("valid account ID is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return invalid("description is required")
	}
	if !p.TotalAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.InstallmentCount < MinInstallments || p.InstallmentCount > MaxInstallments {
		return ErrInvalidInstallmentCount
	}
	if p.PurchaseDate.IsZero() {
		return invalid("purchase date is required")
	}
	if len(p.PurchaseKey) > 64 {
		return invalid("purchase key must be at most 64 characters")
	}
	return nil
}
