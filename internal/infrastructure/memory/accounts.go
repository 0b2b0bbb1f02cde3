package memory

import (
	"context"
	"sort"
	"strings"

	"finledger/internal/domain/account"
	"finledger/internal/shared/money"
)

type accountRepo struct {
	st *state
}

func (r accountRepo) Create(_ context.Context, a *account.Account) error {
	a.ID = r.st.next("accounts")
	cp := *a
	r.st.accounts[a.ID] = &cp
	return nil
}

func (r accountRepo) GetByID(_ context.Context, id int64) (*account.Account, error) {
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r accountRepo) LockByID(ctx context.Context, id int64) (*account.Account, error) {
	return r.GetByID(ctx, id)
}

func (r accountRepo) List(_ context.Context, companyID int64, f account.Filter) ([]*account.Account, error) {
	list := []*account.Account{}
	for _, a := range r.st.accounts {
		if a.CompanyID != companyID {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.IsActive != nil && a.IsActive != *f.IsActive {
			continue
		}
		cp := *a
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r accountRepo) Update(_ context.Context, a *account.Account) error {
	current, ok := r.st.accounts[a.ID]
	if !ok {
		return account.ErrAccountNotFound
	}
	cp := *a
	cp.Balance = current.Balance
	r.st.accounts[a.ID] = &cp
	return nil
}

func (r accountRepo) UpdateBalance(_ context.Context, id int64, balance money.Money) error {
	a, ok := r.st.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	cp := *a
	cp.Balance = balance
	r.st.accounts[id] = &cp
	return nil
}

func (r accountRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.st.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}
	delete(r.st.accounts, id)
	delete(r.st.configs, id)
	for invID, inv := range r.st.invoices {
		if inv.AccountID == id {
			delete(r.st.invoices, invID)
			delete(r.st.links, invID)
		}
	}
	return nil
}

func (r accountRepo) ExistsActiveByName(_ context.Context, companyID int64, name string, excludeID int64) (bool, error) {
	for _, a := range r.st.accounts {
		if a.CompanyID == companyID && a.IsActive && a.ID != excludeID && strings.EqualFold(a.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r accountRepo) ClearDefault(_ context.Context, companyID int64, exceptID int64) error {
	for id, a := range r.st.accounts {
		if a.CompanyID == companyID && a.ID != exceptID && a.IsDefault {
			cp := *a
			cp.IsDefault = false
			r.st.accounts[id] = &cp
		}
	}
	return nil
}

func (r accountRepo) GetDefault(_ context.Context, companyID int64) (*account.Account, error) {
	for _, a := range r.st.accounts {
		if a.CompanyID == companyID && a.IsDefault && a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, account.ErrNoDefaultAccount
}
