package ledger

import (
	"context"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/shared/money"
)

// CardService manages the configuration of credit card accounts.
type CardService struct {
	*core
}

// CreateConfig attaches a configuration to a CREDIT_CARD account. The
// whole limit starts available.
func (s *CardService) CreateConfig(ctx context.Context, rc tenant.RequestContext, accountID int64, p creditcard.ConfigParams) (*creditcard.Config, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var cfg *creditcard.Config
	err := s.mutate(ctx, rc, "card.create_config", func(ctx context.Context, u *unit) error {
		a, err := u.lockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if a.Type != account.TypeCreditCard {
			return creditcard.ErrNotCreditCard
		}

		cfg = &creditcard.Config{
			CompanyID:             a.CompanyID,
			AccountID:             a.ID,
			ClosingDay:            p.ClosingDay,
			DueDay:                p.DueDay,
			DueDaysAfterClosing:   p.DueDaysAfterClosing,
			InterestRate:          p.InterestRate,
			LateFeePercent:        p.LateFeePercent,
			MinimumPaymentPercent: p.MinimumPaymentPercent,
			AlertThresholdPercent: p.AlertThresholdPercent,
			AlertEnabled:          p.AlertEnabled,
			CreatedAt:             u.now,
			UpdatedAt:             u.now,
		}
		cfg.SetCreditLimit(p.CreditLimit)
		return u.CardConfigs().Create(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfig returns a card's configuration.
func (s *CardService) GetConfig(ctx context.Context, rc tenant.RequestContext, accountID int64) (*creditcard.Config, error) {
	var cfg *creditcard.Config
	err := s.read(ctx, rc, "card.get_config", func(ctx context.Context, u *unit) error {
		var err error
		cfg, err = u.CardConfigs().GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
		return rc.Authorize(cfg.CompanyID)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateConfig changes a card's configuration. The limit cannot drop below
// what is already used.
func (s *CardService) UpdateConfig(ctx context.Context, rc tenant.RequestContext, accountID int64, p creditcard.ConfigUpdateParams) (*creditcard.Config, error) {
	var updated *creditcard.Config
	err := s.mutate(ctx, rc, "card.update_config", func(ctx context.Context, u *unit) error {
		cfg, err := u.lockConfig(ctx, accountID)
		if err != nil {
			return err
		}
		next, err := p.Apply(cfg)
		if err != nil {
			return err
		}
		if next.CreditLimit.LessThan(next.UsedLimit) {
			return creditcard.ErrConfigInUse
		}
		next.UpdatedAt = u.now
		if err := u.CardConfigs().Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteConfig removes a card's configuration once no limit is in use.
func (s *CardService) DeleteConfig(ctx context.Context, rc tenant.RequestContext, accountID int64) error {
	return s.mutate(ctx, rc, "card.delete_config", func(ctx context.Context, u *unit) error {
		cfg, err := u.lockConfig(ctx, accountID)
		if err != nil {
			return err
		}
		if cfg.UsedLimit.IsPositive() {
			return creditcard.ErrConfigInUse
		}
		return u.CardConfigs().Delete(ctx, accountID)
	})
}

// LimitTracker tracks used and available credit per card.
type LimitTracker struct {
	*core
}

// UpdateUsedLimit moves the used limit by amount. Used never drops below
// zero and available is always limit minus used.
func (s *LimitTracker) UpdateUsedLimit(ctx context.Context, rc tenant.RequestContext, accountID int64, amount money.Money, op creditcard.LimitOp) (*creditcard.Config, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, creditcard.ErrInvalidAmount
	}
	if op != creditcard.LimitAdd && op != creditcard.LimitSubtract {
		return nil, creditcard.ErrInvalidInput
	}

	var cfg *creditcard.Config
	err := s.mutate(ctx, rc, "limit.update", func(ctx context.Context, u *unit) error {
		var err error
		cfg, err = u.lockConfig(ctx, accountID)
		if err != nil {
			return err
		}
		cfg.AdjustUsed(amount, op)
		cfg.UpdatedAt = u.now
		return u.CardConfigs().Update(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CheckLimitAvailable reports whether amount fits in the available limit.
func (s *LimitTracker) CheckLimitAvailable(ctx context.Context, rc tenant.RequestContext, accountID int64, amount money.Money) (bool, error) {
	st, err := s.GetAvailableLimit(ctx, rc, accountID)
	if err != nil {
		return false, err
	}
	return st.AvailableLimit.GreaterThanOrEqual(amount), nil
}

// GetAvailableLimit summarizes a card's limit usage.
func (s *LimitTracker) GetAvailableLimit(ctx context.Context, rc tenant.RequestContext, accountID int64) (*creditcard.LimitStatus, error) {
	var st creditcard.LimitStatus
	err := s.read(ctx, rc, "limit.get", func(ctx context.Context, u *unit) error {
		cfg, err := u.CardConfigs().GetByAccountID(ctx, accountID)
		if err != nil {
			return err
		}
		if err := rc.Authorize(cfg.CompanyID); err != nil {
			return err
		}
		st = cfg.Status()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}
