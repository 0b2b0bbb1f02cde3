package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"finledger/internal/domain/account"
	"finledger/internal/shared/money"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, company_id, name, account_type, initial_balance, balance, is_active, is_default,
	allow_negative_balance, description, color, created_by, created_at, updated_at`

// rowScanner is satisfied by *sql.Rows and *tracedRow.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var a account.Account
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.Name, &a.Type, &a.InitialBalance, &a.Balance,
		&a.IsActive, &a.IsDefault, &a.AllowNegativeBalance, &a.Description, &a.Color,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account and sets its ID
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (company_id, name, account_type, initial_balance, balance, is_active, is_default,
		                      allow_negative_balance, description, color, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		a.CompanyID, a.Name, a.Type, a.InitialBalance, a.Balance, a.IsActive, a.IsDefault,
		a.AllowNegativeBalance, a.Description, a.Color, a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if isUniqueViolation(err, "idx_accounts_active_name") {
		return account.ErrDuplicateAccountName
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// LockByID retrieves an account and locks its row until the transaction ends
func (r *AccountRepository) LockByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return a, nil
}

// List retrieves the company's accounts ordered by name
func (r *AccountRepository) List(ctx context.Context, companyID int64, f account.Filter) ([]*account.Account, error) {
	conditions := []string{"company_id = $1"}
	args := []any{companyID}

	if f.Type != nil {
		args = append(args, *f.Type)
		conditions = append(conditions, fmt.Sprintf("account_type = $%d", len(args)))
	}
	if f.IsActive != nil {
		args = append(args, *f.IsActive)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*account.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Update persists every mutable field except the balance
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	query := `
		UPDATE accounts
		SET name = $1, is_active = $2, is_default = $3, allow_negative_balance = $4,
		    description = $5, color = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		a.Name, a.IsActive, a.IsDefault, a.AllowNegativeBalance, a.Description, a.Color, a.UpdatedAt, a.ID,
	)
	if isUniqueViolation(err, "idx_accounts_active_name") {
		return account.ErrDuplicateAccountName
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOne(result, account.ErrAccountNotFound)
}

// UpdateBalance sets the stored balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, balance money.Money) error {
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, id)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return expectOne(result, account.ErrAccountNotFound)
}

// Delete removes an account; its card configuration, invoices and invoice
// links go with it through ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectOne(result, account.ErrAccountNotFound)
}

func (r *AccountRepository) ExistsActiveByName(ctx context.Context, companyID int64, name string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM accounts
			WHERE company_id = $1 AND is_active AND LOWER(name) = LOWER($2) AND id <> $3
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, companyID, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account name: %w", err)
	}
	return exists, nil
}

func (r *AccountRepository) ClearDefault(ctx context.Context, companyID int64, exceptID int64) error {
	query := `UPDATE accounts SET is_default = FALSE, updated_at = NOW() WHERE company_id = $1 AND id <> $2 AND is_default`
	if _, err := r.db.ExecContext(ctx, query, companyID, exceptID); err != nil {
		return fmt.Errorf("failed to clear default account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetDefault(ctx context.Context, companyID int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE company_id = $1 AND is_default AND is_active`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, companyID))
	if err == sql.ErrNoRows {
		return nil, account.ErrNoDefaultAccount
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default account: %w", err)
	}
	return a, nil
}

// expectOne maps an UPDATE or DELETE that touched no row to notFound.
func expectOne(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
