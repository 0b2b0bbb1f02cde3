package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
)

// InstallmentService splits card purchases over future invoices.
type InstallmentService struct {
	*core
}

// Create decomposes a purchase into p.InstallmentCount shares, one per
// invoice starting at the purchase's open invoice. The shares sum to the
// total exactly; the last one absorbs the rounding remainder. The full
// total is reserved against the card limit once. A repeated purchase key
// returns the purchase already recorded.
func (s *InstallmentService) Create(ctx context.Context, rc tenant.RequestContext, p creditcard.InstallmentParams) (*creditcard.Installment, error) {
	if err := authorizeWrite(rc); err != nil {
		return nil, err
	}
	p.Description = strings.TrimSpace(p.Description)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.PurchaseKey == "" {
		p.PurchaseKey = uuid.NewString()
	}

	var inst *creditcard.Installment
	err := s.mutate(ctx, rc, "installment.create", func(ctx context.Context, u *unit) error {
		existing, err := s.byPurchaseKey(ctx, u, p.PurchaseKey)
		if err != nil {
			return err
		}
		if existing != nil {
			inst = existing
			return nil
		}
		inst, err = s.create(ctx, u, p)
		return err
	})
	if errors.Is(err, creditcard.ErrDuplicatePurchaseKey) {
		// A concurrent request with the same key won the insert.
		err = s.read(ctx, rc, "installment.get_by_key", func(ctx context.Context, u *unit) error {
			var err error
			inst, err = s.byPurchaseKey(ctx, u, p.PurchaseKey)
			if err == nil && inst == nil {
				err = creditcard.ErrInstallmentNotFound
			}
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *InstallmentService) create(ctx context.Context, u *unit, p creditcard.InstallmentParams) (*creditcard.Installment, error) {
	card, err := u.lockAccount(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	if !card.IsCreditCard() {
		return nil, creditcard.ErrNotCreditCard
	}
	if !card.IsActive {
		return nil, fmt.Errorf("account %d: %w", card.ID, account.ErrAccountInactive)
	}
	cfg, err := u.lockConfig(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	if !cfg.HasAvailable(p.TotalAmount) {
		return nil, creditcard.ErrInsufficientCreditLimit
	}

	amounts, err := p.TotalAmount.Split(p.InstallmentCount)
	if err != nil {
		return nil, err
	}
	first, err := s.openInvoiceFor(ctx, u, cfg, p.PurchaseDate)
	if err != nil {
		return nil, err
	}

	inst := &creditcard.Installment{
		CompanyID:         card.CompanyID,
		AccountID:         card.ID,
		PurchaseKey:       p.PurchaseKey,
		Description:       p.Description,
		TotalAmount:       p.TotalAmount,
		InstallmentCount:  p.InstallmentCount,
		InstallmentAmount: amounts[0],
		PurchaseDate:      p.PurchaseDate,
		CategoryID:        p.CategoryID,
		Status:            creditcard.InstallmentActive,
		CreatedBy:         u.rc.UserID,
		CreatedAt:         u.now,
		UpdatedAt:         u.now,
	}
	if err := u.Installments().Create(ctx, inst); err != nil {
		return nil, err
	}

	for i, amount := range amounts {
		inv := first
		if i > 0 {
			inv, err = s.invoiceForPeriod(ctx, u, cfg, first.Period().Add(i))
			if err != nil {
				return nil, err
			}
		}

		t, err := s.createTransaction(ctx, u, transaction.CreateParams{
			Description:   fmt.Sprintf("%s (%d/%d)", p.Description, i+1, p.InstallmentCount),
			Amount:        amount,
			Date:          inv.Period().Clamp(creditcard.AddMonthsClamped(p.PurchaseDate, i), cfg.ClosingDay),
			Type:          transaction.TypeExpense,
			Status:        transaction.StatusCompleted,
			FromAccountID: &card.ID,
			CategoryID:    p.CategoryID,
			Tags:          []string{"installment"},
		}, createOptions{invoiceID: inv.ID, skipLimit: true})
		if err != nil {
			return nil, fmt.Errorf("installment %d/%d: %w", i+1, p.InstallmentCount, err)
		}

		share := &creditcard.Share{
			InstallmentID: inst.ID,
			Number:        i + 1,
			Amount:        amount,
			InvoiceID:     inv.ID,
			TransactionID: t.ID,
			DueDate:       inv.DueDate,
		}
		if err := u.Installments().CreateShare(ctx, share); err != nil {
			return nil, err
		}
		inst.Shares = append(inst.Shares, share)
	}

	cfg, err = u.lockConfig(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	cfg.AdjustUsed(p.TotalAmount, creditcard.LimitAdd)
	cfg.UpdatedAt = u.now
	if err := u.CardConfigs().Update(ctx, cfg); err != nil {
		return nil, err
	}
	if st := cfg.Status(); st.AlertTriggered {
		u.emit(EventLimitAlert, card.ID, st)
	}

	u.emit(EventInstallmentCreated, inst.ID, inst)
	s.log.Info().
		Int64("installment_id", inst.ID).
		Int64("account_id", card.ID).
		Int("count", inst.InstallmentCount).
		Str("total", inst.TotalAmount.String()).
		Msg("installment purchase created")
	return inst, nil
}

func (s *InstallmentService) byPurchaseKey(ctx context.Context, u *unit, key string) (*creditcard.Installment, error) {
	inst, err := u.Installments().GetByPurchaseKey(ctx, u.rc.CompanyID, key)
	if errors.Is(err, creditcard.ErrInstallmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inst.Shares, err = u.Installments().ListShares(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Get returns an installment purchase with its shares.
func (s *InstallmentService) Get(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Installment, error) {
	var inst *creditcard.Installment
	err := s.read(ctx, rc, "installment.get", func(ctx context.Context, u *unit) error {
		var err error
		inst, err = u.Installments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := rc.Authorize(inst.CompanyID); err != nil {
			return err
		}
		inst.Shares, err = u.Installments().ListShares(ctx, inst.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// List returns a card's installment purchases.
func (s *InstallmentService) List(ctx context.Context, rc tenant.RequestContext, accountID int64) ([]*creditcard.Installment, error) {
	var list []*creditcard.Installment
	err := s.read(ctx, rc, "installment.list", func(ctx context.Context, u *unit) error {
		if _, err := u.getAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		list, err = u.Installments().ListByAccount(ctx, accountID)
		return err
	})
	return list, err
}

// Cancel stops an installment purchase. Shares still on OPEN invoices are
// canceled and their limit released; shares already billed stay due.
func (s *InstallmentService) Cancel(ctx context.Context, rc tenant.RequestContext, id int64) (*creditcard.Installment, error) {
	var inst *creditcard.Installment
	err := s.mutate(ctx, rc, "installment.cancel", func(ctx context.Context, u *unit) error {
		current, err := u.Installments().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := u.rc.Authorize(current.CompanyID); err != nil {
			return err
		}
		if _, err := u.lockAccount(ctx, current.AccountID); err != nil {
			return err
		}
		if _, err := u.lockConfig(ctx, current.AccountID); err != nil {
			return err
		}
		inst, err = u.Installments().LockByID(ctx, id)
		if err != nil {
			return err
		}
		switch inst.Status {
		case creditcard.InstallmentCanceled:
			return creditcard.ErrInstallmentCanceled
		case creditcard.InstallmentCompleted:
			return creditcard.ErrInstallmentCompleted
		}

		shares, err := u.Installments().ListShares(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, share := range shares {
			if share.Settled() {
				continue
			}
			inv, err := u.Invoices().GetByID(ctx, share.InvoiceID)
			if err != nil {
				return err
			}
			if inv.Status != creditcard.InvoiceOpen {
				continue
			}
			t, err := u.lockTransaction(ctx, share.TransactionID)
			if err != nil {
				return err
			}
			if err := s.transition(ctx, u, t, transaction.StatusCanceled); err != nil {
				return fmt.Errorf("installment %d/%d: %w", share.Number, inst.InstallmentCount, err)
			}
			canceledAt := u.now
			share.CanceledAt = &canceledAt
			if err := u.Installments().UpdateShare(ctx, share); err != nil {
				return err
			}
		}

		inst.Status = creditcard.InstallmentCanceled
		inst.UpdatedAt = u.now
		if err := u.Installments().Update(ctx, inst); err != nil {
			return err
		}
		inst.Shares = shares
		u.emit(EventInstallmentCanceled, inst.ID, inst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}
