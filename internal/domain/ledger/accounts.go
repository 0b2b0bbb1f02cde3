package ledger

import (
	"context"
	"fmt"
	"strings"

	"finledger/internal/domain/account"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

// AccountService owns account state outside of transaction effects:
// creation, naming, the company default and balance policy.
type AccountService struct {
	*core
}

// Create opens an account with its initial balance.
func (s *AccountService) Create(ctx context.Context, rc tenant.RequestContext, p account.CreateParams) (*account.Account, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	p.CompanyID = rc.CompanyID
	p.CreatedBy = rc.UserID
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.InitialBalance.IsNegative() && !p.AllowNegativeBalance {
		return nil, account.ErrNegativeBalanceNotAllowed
	}

	var created *account.Account
	err := s.mutate(ctx, rc, "account.create", func(ctx context.Context, u *unit) error {
		exists, err := u.Accounts().ExistsActiveByName(ctx, rc.CompanyID, p.Name, 0)
		if err != nil {
			return err
		}
		if exists {
			return account.ErrDuplicateAccountName
		}

		a := &account.Account{
			CompanyID:            p.CompanyID,
			Name:                 p.Name,
			Type:                 p.Type,
			InitialBalance:       p.InitialBalance,
			Balance:              p.InitialBalance,
			IsActive:             true,
			IsDefault:            p.IsDefault,
			AllowNegativeBalance: p.AllowNegativeBalance,
			Description:          p.Description,
			Color:                p.Color,
			CreatedBy:            p.CreatedBy,
			CreatedAt:            u.now,
			UpdatedAt:            u.now,
		}
		if err := u.Accounts().Create(ctx, a); err != nil {
			return err
		}
		if a.IsDefault {
			if err := u.Accounts().ClearDefault(ctx, rc.CompanyID, a.ID); err != nil {
				return err
			}
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("account_id", created.ID).Str("type", string(created.Type)).Msg("account created")
	return created, nil
}

// Get retrieves one account.
func (s *AccountService) Get(ctx context.Context, rc tenant.RequestContext, id int64) (*account.Account, error) {
	var a *account.Account
	err := s.read(ctx, rc, "account.get", func(ctx context.Context, u *unit) error {
		var err error
		a, err = u.getAccount(ctx, id)
		return err
	})
	return a, err
}

// List returns the company's accounts.
func (s *AccountService) List(ctx context.Context, rc tenant.RequestContext, f account.Filter) ([]*account.Account, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if f.Type != nil && !account.IsValidType(*f.Type) {
		return nil, account.ErrInvalidAccountType
	}
	var accounts []*account.Account
	err := s.read(ctx, rc, "account.list", func(ctx context.Context, u *unit) error {
		var err error
		accounts, err = u.Accounts().List(ctx, rc.CompanyID, f)
		return err
	})
	return accounts, err
}

// GetDefault returns the company's default account for quick entry.
func (s *AccountService) GetDefault(ctx context.Context, rc tenant.RequestContext) (*account.Account, error) {
	var a *account.Account
	err := s.read(ctx, rc, "account.get_default", func(ctx context.Context, u *unit) error {
		var err error
		a, err = u.Accounts().GetDefault(ctx, rc.CompanyID)
		return err
	})
	return a, err
}

// Update changes an account's descriptive fields and active flag. A
// deactivated account stops being the default.
func (s *AccountService) Update(ctx context.Context, rc tenant.RequestContext, id int64, p account.UpdateParams) (*account.Account, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var updated *account.Account
	err := s.mutate(ctx, rc, "account.update", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}

		if p.Name != nil {
			a.Name = strings.TrimSpace(*p.Name)
		}
		if p.Description != nil {
			a.Description = *p.Description
		}
		if p.Color != nil {
			a.Color = *p.Color
		}
		if p.IsActive != nil {
			a.IsActive = *p.IsActive
		}
		if !a.IsActive {
			a.IsDefault = false
		}

		if a.IsActive && (p.Name != nil || p.IsActive != nil) {
			exists, err := u.Accounts().ExistsActiveByName(ctx, a.CompanyID, a.Name, a.ID)
			if err != nil {
				return err
			}
			if exists {
				return account.ErrDuplicateAccountName
			}
		}

		a.UpdatedAt = u.now
		if err := u.Accounts().Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an account no transaction references.
func (s *AccountService) Delete(ctx context.Context, rc tenant.RequestContext, id int64) error {
	return s.mutate(ctx, rc, "account.delete", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		n, err := u.Transactions().CountByAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return account.ErrHasTransactions
		}
		return u.Accounts().Delete(ctx, a.ID)
	})
}

// SetDefault makes an active account the company default, clearing any
// other.
func (s *AccountService) SetDefault(ctx context.Context, rc tenant.RequestContext, id int64) (*account.Account, error) {
	var updated *account.Account
	err := s.mutate(ctx, rc, "account.set_default", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		if !a.IsActive {
			return account.ErrAccountInactive
		}
		if err := u.Accounts().ClearDefault(ctx, a.CompanyID, a.ID); err != nil {
			return err
		}
		a.IsDefault = true
		a.UpdatedAt = u.now
		if err := u.Accounts().Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ToggleNegativeBalance sets the negative balance policy. Credit cards must
// allow it, and it cannot be disallowed while the balance is negative.
func (s *AccountService) ToggleNegativeBalance(ctx context.Context, rc tenant.RequestContext, id int64, allow bool) (*account.Account, error) {
	var updated *account.Account
	err := s.mutate(ctx, rc, "account.toggle_negative_balance", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		if !allow {
			if a.IsCreditCard() {
				return account.ErrCreditCardRequiresNegative
			}
			if a.Balance.IsNegative() {
				return account.ErrNegativeBalancePresent
			}
		}
		a.AllowNegativeBalance = allow
		a.UpdatedAt = u.now
		if err := u.Accounts().Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Adjustment is the outcome of a balance adjustment. Transaction is nil
// when the balance already matched.
type Adjustment struct {
	Account     *account.Account         `json:"account"`
	Transaction *transaction.Transaction `json:"transaction,omitempty"`
	Delta       money.Money              `json:"delta"`
}

// AdjustBalance sets an account balance to target and records the
// difference as a COMPLETED audit transaction in the same unit of work.
func (s *AccountService) AdjustBalance(ctx context.Context, rc tenant.RequestContext, id int64, target money.Money, reason string) (*Adjustment, error) {
	reason = strings.TrimSpace(reason)

	var out *Adjustment
	err := s.mutate(ctx, rc, "account.adjust_balance", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		if !a.IsActive {
			return account.ErrAccountInactive
		}
		if target.IsNegative() && !a.AllowNegativeBalance {
			return account.ErrNegativeBalanceNotAllowed
		}

		delta := target.Sub(a.Balance)
		out = &Adjustment{Account: a, Delta: delta}
		if delta.IsZero() {
			return nil
		}

		description := "Balance adjustment"
		if reason != "" {
			description += ": " + reason
		}
		p := transaction.CreateParams{
			Description: description,
			Amount:      delta.Abs(),
			Date:        u.now,
			Type:        transaction.TypeIncome,
			Status:      transaction.StatusCompleted,
			ToAccountID: &a.ID,
			Notes:       reason,
		}
		if delta.IsNegative() {
			p.Type = transaction.TypeExpense
			p.ToAccountID = nil
			p.FromAccountID = &a.ID
		}
		if err := p.Validate(); err != nil {
			return err
		}

		t := &transaction.Transaction{
			CompanyID:     a.CompanyID,
			Description:   p.Description,
			Amount:        p.Amount,
			Date:          p.Date,
			Type:          p.Type,
			Status:        p.Status,
			FromAccountID: p.FromAccountID,
			ToAccountID:   p.ToAccountID,
			Tags:          []string{"adjustment"},
			Notes:         p.Notes,
			CreatedBy:     rc.UserID,
			CreatedAt:     u.now,
			UpdatedAt:     u.now,
		}
		if err := u.Transactions().Create(ctx, t); err != nil {
			return fmt.Errorf("create adjustment transaction: %w", err)
		}

		a.Balance = target
		if err := u.Accounts().UpdateBalance(ctx, a.ID, a.Balance); err != nil {
			return err
		}

		out.Transaction = t
		u.emit(EventBalanceAdjusted, a.ID, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Transaction != nil {
		s.log.Info().
			Int64("account_id", id).
			Str("delta", out.Delta.String()).
			Str("reason", reason).
			Msg("balance adjusted")
	}
	return out, nil
}

// Reconciliation compares the stored balance with the one derived from the
// initial balance and COMPLETED transactions.
type Reconciliation struct {
	AccountID       int64       `json:"accountId"`
	StoredBalance   money.Money `json:"storedBalance"`
	ComputedBalance money.Money `json:"computedBalance"`
	Drift           money.Money `json:"drift"`
	Healed          bool        `json:"healed"`
}

// Reconcile re-derives an account balance. With heal set, a drifted stored
// balance is overwritten by the derived one.
func (s *AccountService) Reconcile(ctx context.Context, rc tenant.RequestContext, id int64, heal bool) (*Reconciliation, error) {
	var out *Reconciliation
	check := func(ctx context.Context, u *unit, a *account.Account) error {
		txs, err := u.Transactions().ListByAccount(ctx, a.ID, transaction.StatusCompleted)
		if err != nil {
			return err
		}
		computed := a.InitialBalance
		for _, t := range txs {
			computed = computed.Add(t.EffectOn(a.ID))
		}
		out = &Reconciliation{
			AccountID:       a.ID,
			StoredBalance:   a.Balance,
			ComputedBalance: computed,
			Drift:           a.Balance.Sub(computed),
		}
		return nil
	}

	if !heal {
		err := s.read(ctx, rc, "account.reconcile", func(ctx context.Context, u *unit) error {
			a, err := u.getAccount(ctx, id)
			if err != nil {
				return err
			}
			return check(ctx, u, a)
		})
		return out, err
	}

	err := s.mutate(ctx, rc, "account.reconcile", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := check(ctx, u, a); err != nil {
			return err
		}
		if out.Drift.IsZero() {
			return nil
		}
		if err := u.Accounts().UpdateBalance(ctx, a.ID, out.ComputedBalance); err != nil {
			return err
		}
		out.Healed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Healed {
		s.log.Warn().
			Int64("account_id", out.AccountID).
			Str("drift", out.Drift.String()).
			Msg("account balance healed")
	}
	return out, nil
}
