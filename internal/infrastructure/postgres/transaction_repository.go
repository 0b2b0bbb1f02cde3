package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"finledger/internal/domain/transaction"
)

type TransactionRepository struct {
	db querier
}

func NewTransactionRepository(db querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `t.id, t.company_id, t.description, t.amount, t.transaction_date, t.transaction_type,
	t.status, t.from_account_id, t.to_account_id, t.category_id, t.tags, t.notes, t.created_by,
	t.created_at, t.updated_at`

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var from, to, category sql.NullInt64
	var tags pq.StringArray

	err := row.Scan(
		&t.ID, &t.CompanyID, &t.Description, &t.Amount, &t.Date, &t.Type,
		&t.Status, &from, &to, &category, &tags, &t.Notes, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.FromAccountID = int64Ptr(from)
	t.ToAccountID = int64Ptr(to)
	t.CategoryID = int64Ptr(category)
	t.Tags = []string(tags)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func scanTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	transactions := []*transaction.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func tagsArray(tags []string) pq.StringArray {
	if tags == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(tags)
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (company_id, description, amount, transaction_date, transaction_type, status,
		                          from_account_id, to_account_id, category_id, tags, notes, created_by,
		                          created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		t.CompanyID, t.Description, t.Amount, t.Date, t.Type, t.Status,
		nullInt64(t.FromAccountID), nullInt64(t.ToAccountID), nullInt64(t.CategoryID),
		tagsArray(t.Tags), t.Notes, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) LockByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1 FOR UPDATE`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, transaction.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET description = $1, amount = $2, transaction_date = $3, status = $4, from_account_id = $5,
		    to_account_id = $6, category_id = $7, tags = $8, notes = $9, updated_at = $10
		WHERE id = $11
	`

	result, err := r.db.ExecContext(ctx, query,
		t.Description, t.Amount, t.Date, t.Status, nullInt64(t.FromAccountID),
		nullInt64(t.ToAccountID), nullInt64(t.CategoryID), tagsArray(t.Tags), t.Notes, t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOne(result, transaction.ErrTransactionNotFound)
}

// Delete removes a transaction; invoice links go with it through ON DELETE CASCADE.
func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOne(result, transaction.ErrTransactionNotFound)
}

// List returns one page ordered by date then ID, newest first, with the
// total count of matching rows.
func (r *TransactionRepository) List(ctx context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	where, args := transactionConditions(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions t` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t` + where +
		` ORDER BY t.transaction_date DESC, t.id DESC`
	if f.PageSize > 0 {
		args = append(args, f.PageSize, f.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

func transactionConditions(f transaction.Filter) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if f.CompanyID != 0 {
		add("t.company_id = ?", f.CompanyID)
	}
	if f.StartDate != nil {
		add("t.transaction_date >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		add("t.transaction_date <= ?", *f.EndDate)
	}
	if f.Type != nil {
		add("t.transaction_type = ?", *f.Type)
	}
	if f.Status != nil {
		add("t.status = ?", *f.Status)
	}
	if f.AccountID != nil {
		add("(t.from_account_id = ? OR t.to_account_id = ?)", *f.AccountID)
	}
	if f.CategoryID != nil {
		add("t.category_id = ?", *f.CategoryID)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		add("(t.description ILIKE ? OR t.notes ILIKE ?)", "%"+escapeLike(search)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike makes user input literal inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID int64, status transaction.Status) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t
		WHERE (t.from_account_id = $1 OR t.to_account_id = $1) AND t.status = $2
		ORDER BY t.id`

	rows, err := r.db.QueryContext(ctx, query, accountID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list account transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *TransactionRepository) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM transactions WHERE from_account_id = $1 OR to_account_id = $1`
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count account transactions: %w", err)
	}
	return n, nil
}
