package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finledger/internal/domain/creditcard"
)

type InstallmentRepository struct {
	db querier
}

func NewInstallmentRepository(db querier) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

const installmentColumns = `id, company_id, account_id, purchase_key, description, total_amount, installment_count,
	installment_amount, purchase_date, category_id, status, created_by, created_at, updated_at`

const shareColumns = `id, installment_id, share_number, amount, invoice_id, transaction_id, due_date,
	is_paid, paid_at, canceled_at`

func scanInstallment(row rowScanner) (*creditcard.Installment, error) {
	var inst creditcard.Installment
	var category sql.NullInt64

	err := row.Scan(
		&inst.ID, &inst.CompanyID, &inst.AccountID, &inst.PurchaseKey, &inst.Description, &inst.TotalAmount,
		&inst.InstallmentCount, &inst.InstallmentAmount, &inst.PurchaseDate, &category, &inst.Status,
		&inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.CategoryID = int64Ptr(category)
	return &inst, nil
}

func scanShare(row rowScanner) (*creditcard.Share, error) {
	var s creditcard.Share
	var paidAt, canceledAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.InstallmentID, &s.Number, &s.Amount, &s.InvoiceID, &s.TransactionID, &s.DueDate,
		&s.IsPaid, &paidAt, &canceledAt,
	)
	if err != nil {
		return nil, err
	}
	s.DueDate = s.DueDate.UTC()
	s.PaidAt = timePtr(paidAt)
	s.CanceledAt = timePtr(canceledAt)
	return &s, nil
}

// Create inserts the purchase row only; shares are added with CreateShare.
func (r *InstallmentRepository) Create(ctx context.Context, inst *creditcard.Installment) error {
	query := `
		INSERT INTO installment_purchases (company_id, account_id, purchase_key, description, total_amount,
		                                   installment_count, installment_amount, purchase_date, category_id,
		                                   status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		inst.CompanyID, inst.AccountID, inst.PurchaseKey, inst.Description, inst.TotalAmount,
		inst.InstallmentCount, inst.InstallmentAmount, inst.PurchaseDate, nullInt64(inst.CategoryID),
		inst.Status, inst.CreatedBy, inst.CreatedAt, inst.UpdatedAt,
	).Scan(&inst.ID)
	if isUniqueViolation(err, "installment_purchases_key") {
		return creditcard.ErrDuplicatePurchaseKey
	}
	if err != nil {
		return fmt.Errorf("failed to create installment purchase: %w", err)
	}
	return nil
}

func (r *InstallmentRepository) GetByID(ctx context.Context, id int64) (*creditcard.Installment, error) {
	return r.get(ctx, `SELECT `+installmentColumns+` FROM installment_purchases WHERE id = $1`, id)
}

func (r *InstallmentRepository) LockByID(ctx context.Context, id int64) (*creditcard.Installment, error) {
	return r.get(ctx, `SELECT `+installmentColumns+` FROM installment_purchases WHERE id = $1 FOR UPDATE`, id)
}

func (r *InstallmentRepository) GetByPurchaseKey(ctx context.Context, companyID int64, key string) (*creditcard.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installment_purchases WHERE company_id = $1 AND purchase_key = $2`
	return r.get(ctx, query, companyID, key)
}

func (r *InstallmentRepository) get(ctx context.Context, query string, args ...any) (*creditcard.Installment, error) {
	inst, err := scanInstallment(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, creditcard.ErrInstallmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installment purchase: %w", err)
	}
	return inst, nil
}

func (r *InstallmentRepository) ListByAccount(ctx context.Context, accountID int64) ([]*creditcard.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installment_purchases WHERE account_id = $1 ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installment purchases: %w", err)
	}
	defer rows.Close()

	list := []*creditcard.Installment{}
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment purchase: %w", err)
		}
		list = append(list, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installment purchases: %w", err)
	}
	return list, nil
}

func (r *InstallmentRepository) Update(ctx context.Context, inst *creditcard.Installment) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE installment_purchases SET status = $1, description = $2, updated_at = $3 WHERE id = $4`,
		inst.Status, inst.Description, inst.UpdatedAt, inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment purchase: %w", err)
	}
	return expectOne(result, creditcard.ErrInstallmentNotFound)
}

func (r *InstallmentRepository) CreateShare(ctx context.Context, s *creditcard.Share) error {
	query := `
		INSERT INTO installment_shares (installment_id, share_number, amount, invoice_id, transaction_id,
		                                due_date, is_paid, paid_at, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		s.InstallmentID, s.Number, s.Amount, s.InvoiceID, s.TransactionID,
		s.DueDate, s.IsPaid, nullTime(s.PaidAt), nullTime(s.CanceledAt),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create installment share: %w", err)
	}
	return nil
}

func (r *InstallmentRepository) UpdateShare(ctx context.Context, s *creditcard.Share) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE installment_shares SET is_paid = $1, paid_at = $2, canceled_at = $3 WHERE id = $4`,
		s.IsPaid, nullTime(s.PaidAt), nullTime(s.CanceledAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment share: %w", err)
	}
	return expectOne(result, creditcard.ErrInstallmentNotFound)
}

func (r *InstallmentRepository) ListShares(ctx context.Context, installmentID int64) ([]*creditcard.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM installment_shares WHERE installment_id = $1 ORDER BY share_number`
	return r.listShares(ctx, query, installmentID)
}

func (r *InstallmentRepository) ListSharesByInvoice(ctx context.Context, invoiceID int64) ([]*creditcard.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM installment_shares WHERE invoice_id = $1 ORDER BY installment_id, share_number`
	return r.listShares(ctx, query, invoiceID)
}

func (r *InstallmentRepository) listShares(ctx context.Context, query string, id int64) ([]*creditcard.Share, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list installment shares: %w", err)
	}
	defer rows.Close()

	shares := []*creditcard.Share{}
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment share: %w", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installment shares: %w", err)
	}
	return shares, nil
}

func (r *InstallmentRepository) FindShareByTransaction(ctx context.Context, transactionID int64) (*creditcard.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM installment_shares WHERE transaction_id = $1`

	s, err := scanShare(r.db.QueryRowContext(ctx, query, transactionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find installment share: %w", err)
	}
	return s, nil
}
