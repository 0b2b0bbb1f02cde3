package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/transaction"
)

type InvoiceRepository struct {
	db querier
}

func NewInvoiceRepository(db querier) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, company_id, account_id, reference_year, reference_month, closing_date, due_date,
	previous_balance, previous_principal, purchases_amount, payments_amount, interest_amount, fees_amount, total_amount,
	minimum_payment, paid_amount, carried_amount, carried_to_invoice_id, remaining_amount, is_paid, status,
	closed_at, paid_at, created_at, updated_at`

func scanInvoice(row rowScanner) (*creditcard.Invoice, error) {
	var inv creditcard.Invoice
	var month int
	var carriedTo sql.NullInt64
	var closedAt, paidAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.AccountID, &inv.ReferenceYear, &month, &inv.ClosingDate, &inv.DueDate,
		&inv.PreviousBalance, &inv.PreviousPrincipal, &inv.PurchasesAmount, &inv.PaymentsAmount, &inv.InterestAmount,
		&inv.FeesAmount, &inv.TotalAmount, &inv.MinimumPayment, &inv.PaidAmount, &inv.CarriedAmount, &carriedTo,
		&inv.RemainingAmount, &inv.IsPaid, &inv.Status, &closedAt, &paidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.ReferenceMonth = time.Month(month)
	inv.ClosingDate = inv.ClosingDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.CarriedToInvoiceID = int64Ptr(carriedTo)
	inv.ClosedAt = timePtr(closedAt)
	inv.PaidAt = timePtr(paidAt)
	return &inv, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *creditcard.Invoice) error {
	query := `
		INSERT INTO credit_card_invoices (company_id, account_id, reference_year, reference_month, closing_date,
		                                  due_date, previous_balance, previous_principal, purchases_amount,
		                                  payments_amount, interest_amount, fees_amount, total_amount,
		                                  minimum_payment, paid_amount, carried_amount, carried_to_invoice_id,
		                                  remaining_amount, is_paid, status, closed_at, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22,
		        $23, $24)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.CompanyID, inv.AccountID, inv.ReferenceYear, int(inv.ReferenceMonth), inv.ClosingDate,
		inv.DueDate, inv.PreviousBalance, inv.PreviousPrincipal, inv.PurchasesAmount,
		inv.PaymentsAmount, inv.InterestAmount, inv.FeesAmount, inv.TotalAmount,
		inv.MinimumPayment, inv.PaidAmount, inv.CarriedAmount, nullInt64(inv.CarriedToInvoiceID),
		inv.RemainingAmount, inv.IsPaid, inv.Status, nullTime(inv.ClosedAt), nullTime(inv.PaidAt), inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if isUniqueViolation(err, "credit_card_invoices_period_key") {
		return creditcard.ErrInvoiceAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*creditcard.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM credit_card_invoices WHERE id = $1`, id)
}

func (r *InvoiceRepository) LockByID(ctx context.Context, id int64) (*creditcard.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM credit_card_invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *InvoiceRepository) GetByPeriod(ctx context.Context, accountID int64, p creditcard.Period) (*creditcard.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM credit_card_invoices
		WHERE account_id = $1 AND reference_year = $2 AND reference_month = $3`
	return r.get(ctx, query, accountID, p.Year, int(p.Month))
}

func (r *InvoiceRepository) LockByPeriod(ctx context.Context, accountID int64, p creditcard.Period) (*creditcard.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM credit_card_invoices
		WHERE account_id = $1 AND reference_year = $2 AND reference_month = $3 FOR UPDATE`
	return r.get(ctx, query, accountID, p.Year, int(p.Month))
}

func (r *InvoiceRepository) get(ctx context.Context, query string, args ...any) (*creditcard.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, creditcard.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// List returns matching invoices ordered by reference period.
func (r *InvoiceRepository) List(ctx context.Context, f creditcard.InvoiceFilter) ([]*creditcard.Invoice, error) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.CompanyID != 0 {
		add("company_id = $%d", f.CompanyID)
	}
	if f.AccountID != 0 {
		add("account_id = $%d", f.AccountID)
	}
	if f.Year != 0 {
		add("reference_year = $%d", f.Year)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if f.ClosingBefore != nil {
		add("closing_date < $%d", *f.ClosingBefore)
	}
	if f.DueBefore != nil {
		add("due_date < $%d", *f.DueBefore)
	}

	query := `SELECT ` + invoiceColumns + ` FROM credit_card_invoices`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY reference_year, reference_month, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*creditcard.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *creditcard.Invoice) error {
	query := `
		UPDATE credit_card_invoices
		SET closing_date = $1, due_date = $2, previous_balance = $3, previous_principal = $4,
		    purchases_amount = $5, payments_amount = $6, interest_amount = $7, fees_amount = $8,
		    total_amount = $9, minimum_payment = $10, paid_amount = $11, carried_amount = $12,
		    carried_to_invoice_id = $13, remaining_amount = $14, is_paid = $15, status = $16,
		    closed_at = $17, paid_at = $18, updated_at = $19
		WHERE id = $20
	`

	result, err := r.db.ExecContext(ctx, query,
		inv.ClosingDate, inv.DueDate, inv.PreviousBalance, inv.PreviousPrincipal,
		inv.PurchasesAmount, inv.PaymentsAmount, inv.InterestAmount, inv.FeesAmount,
		inv.TotalAmount, inv.MinimumPayment, inv.PaidAmount, inv.CarriedAmount,
		nullInt64(inv.CarriedToInvoiceID), inv.RemainingAmount, inv.IsPaid, inv.Status,
		nullTime(inv.ClosedAt), nullTime(inv.PaidAt), inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return expectOne(result, creditcard.ErrInvoiceNotFound)
}

func (r *InvoiceRepository) LinkTransaction(ctx context.Context, invoiceID, transactionID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credit_card_invoice_transactions (invoice_id, transaction_id) VALUES ($1, $2)`,
		invoiceID, transactionID,
	)
	if isUniqueViolation(err, "credit_card_invoice_transactions_pkey") {
		return creditcard.ErrTransactionAlreadyLinked
	}
	if err != nil {
		return fmt.Errorf("failed to link transaction to invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) UnlinkTransaction(ctx context.Context, invoiceID, transactionID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM credit_card_invoice_transactions WHERE invoice_id = $1 AND transaction_id = $2`,
		invoiceID, transactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink transaction from invoice: %w", err)
	}
	return expectOne(result, creditcard.ErrTransactionNotLinked)
}

func (r *InvoiceRepository) FindByTransaction(ctx context.Context, accountID, transactionID int64) (*creditcard.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM credit_card_invoices
		WHERE account_id = $1
		  AND id IN (SELECT invoice_id FROM credit_card_invoice_transactions WHERE transaction_id = $2)
		LIMIT 1
	`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, accountID, transactionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find invoice by transaction: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) ListTransactions(ctx context.Context, invoiceID int64) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN credit_card_invoice_transactions it ON it.transaction_id = t.id
		WHERE it.invoice_id = $1
		ORDER BY t.transaction_date DESC, t.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
