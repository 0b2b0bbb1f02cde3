package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"finledger/internal/domain/creditcard"
)

type CardConfigRepository struct {
	db querier
}

func NewCardConfigRepository(db querier) *CardConfigRepository {
	return &CardConfigRepository{db: db}
}

const cardConfigColumns = `id, company_id, account_id, credit_limit, used_limit, available_limit, closing_day, due_day,
	due_days_after_closing, interest_rate, late_fee_percent, minimum_payment_percent, alert_threshold_percent,
	alert_enabled, created_at, updated_at`

func scanCardConfig(row rowScanner) (*creditcard.Config, error) {
	var c creditcard.Config
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.AccountID, &c.CreditLimit, &c.UsedLimit, &c.AvailableLimit, &c.ClosingDay, &c.DueDay,
		&c.DueDaysAfterClosing, &c.InterestRate, &c.LateFeePercent, &c.MinimumPaymentPercent, &c.AlertThresholdPercent,
		&c.AlertEnabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CardConfigRepository) Create(ctx context.Context, c *creditcard.Config) error {
	query := `
		INSERT INTO credit_card_configs (company_id, account_id, credit_limit, used_limit, available_limit,
		                                 closing_day, due_day, due_days_after_closing, interest_rate, late_fee_percent,
		                                 minimum_payment_percent, alert_threshold_percent, alert_enabled,
		                                 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		c.CompanyID, c.AccountID, c.CreditLimit, c.UsedLimit, c.AvailableLimit,
		c.ClosingDay, c.DueDay, c.DueDaysAfterClosing, c.InterestRate, c.LateFeePercent,
		c.MinimumPaymentPercent, c.AlertThresholdPercent, c.AlertEnabled,
		c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if isUniqueViolation(err, "credit_card_configs_account_id_key") {
		return creditcard.ErrConfigAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create card config: %w", err)
	}
	return nil
}

func (r *CardConfigRepository) GetByAccountID(ctx context.Context, accountID int64) (*creditcard.Config, error) {
	return r.get(ctx, `SELECT `+cardConfigColumns+` FROM credit_card_configs WHERE account_id = $1`, accountID)
}

func (r *CardConfigRepository) LockByAccountID(ctx context.Context, accountID int64) (*creditcard.Config, error) {
	return r.get(ctx, `SELECT `+cardConfigColumns+` FROM credit_card_configs WHERE account_id = $1 FOR UPDATE`, accountID)
}

func (r *CardConfigRepository) get(ctx context.Context, query string, accountID int64) (*creditcard.Config, error) {
	c, err := scanCardConfig(r.db.QueryRowContext(ctx, query, accountID))
	if err == sql.ErrNoRows {
		return nil, creditcard.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card config: %w", err)
	}
	return c, nil
}

func (r *CardConfigRepository) Update(ctx context.Context, c *creditcard.Config) error {
	query := `
		UPDATE credit_card_configs
		SET credit_limit = $1, used_limit = $2, available_limit = $3, closing_day = $4, due_day = $5,
		    due_days_after_closing = $6, interest_rate = $7, late_fee_percent = $8,
		    minimum_payment_percent = $9, alert_threshold_percent = $10, alert_enabled = $11, updated_at = $12
		WHERE account_id = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		c.CreditLimit, c.UsedLimit, c.AvailableLimit, c.ClosingDay, c.DueDay,
		c.DueDaysAfterClosing, c.InterestRate, c.LateFeePercent,
		c.MinimumPaymentPercent, c.AlertThresholdPercent, c.AlertEnabled, c.UpdatedAt,
		c.AccountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card config: %w", err)
	}
	return expectOne(result, creditcard.ErrConfigNotFound)
}

func (r *CardConfigRepository) Delete(ctx context.Context, accountID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credit_card_configs WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete card config: %w", err)
	}
	return expectOne(result, creditcard.ErrConfigNotFound)
}
