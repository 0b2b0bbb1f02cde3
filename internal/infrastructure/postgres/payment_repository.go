package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finledger/internal/domain/creditcard"
)

type PaymentRepository struct {
	db querier
}

func NewPaymentRepository(db querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, company_id, invoice_id, transaction_id, source_account_id, amount, payment_type,
	limit_released, paid_at, created_by`

func scanPayment(row rowScanner) (*creditcard.InvoicePayment, error) {
	var p creditcard.InvoicePayment
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.InvoiceID, &p.TransactionID, &p.SourceAccountID, &p.Amount, &p.Type,
		&p.LimitReleased, &p.PaidAt, &p.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *creditcard.InvoicePayment) error {
	query := `
		INSERT INTO invoice_payments (company_id, invoice_id, transaction_id, source_account_id, amount,
		                              payment_type, limit_released, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		p.CompanyID, p.InvoiceID, p.TransactionID, p.SourceAccountID, p.Amount,
		p.Type, p.LimitReleased, p.PaidAt, p.CreatedBy,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create invoice payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]*creditcard.InvoicePayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM invoice_payments WHERE invoice_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice payments: %w", err)
	}
	defer rows.Close()

	payments := []*creditcard.InvoicePayment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) FindByTransaction(ctx context.Context, transactionID int64) (*creditcard.InvoicePayment, error) {
	query := `SELECT ` + paymentColumns + ` FROM invoice_payments WHERE transaction_id = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice payment: %w", err)
	}
	return p, nil
}
