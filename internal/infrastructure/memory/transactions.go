package memory

import (
	"context"
	"sort"
	"strings"

	"finledger/internal/domain/transaction"
)

type transactionRepo struct {
	st *state
}

func (r transactionRepo) Create(_ context.Context, t *transaction.Transaction) error {
	t.ID = r.st.next("transactions")
	r.st.transactions[t.ID] = t.Clone()
	return nil
}

func (r transactionRepo) GetByID(_ context.Context, id int64) (*transaction.Transaction, error) {
	t, ok := r.st.transactions[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

func (r transactionRepo) LockByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r transactionRepo) Update(_ context.Context, t *transaction.Transaction) error {
	if _, ok := r.st.transactions[t.ID]; !ok {
		return transaction.ErrTransactionNotFound
	}
	r.st.transactions[t.ID] = t.Clone()
	return nil
}

func (r transactionRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.st.transactions[id]; !ok {
		return transaction.ErrTransactionNotFound
	}
	delete(r.st.transactions, id)
	for _, set := range r.st.links {
		delete(set, id)
	}
	return nil
}

func (r transactionRepo) List(_ context.Context, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []*transaction.Transaction
	for _, t := range r.st.transactions {
		if !matches(t, f, search) {
			continue
		}
		matched = append(matched, t.Clone())
	}
	sortByDateDesc(matched)

	total := len(matched)
	if f.PageSize > 0 {
		start := f.Offset()
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func matches(t *transaction.Transaction, f transaction.Filter, search string) bool {
	if f.CompanyID != 0 && t.CompanyID != f.CompanyID {
		return false
	}
	if f.StartDate != nil && t.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && t.Date.After(*f.EndDate) {
		return false
	}
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.AccountID != nil && !t.Touches(*f.AccountID) {
		return false
	}
	if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
		return false
	}
	if search != "" &&
		!strings.Contains(strings.ToLower(t.Description), search) &&
		!strings.Contains(strings.ToLower(t.Notes), search) {
		return false
	}
	return true
}

func sortByDateDesc(list []*transaction.Transaction) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.After(list[j].Date)
		}
		return list[i].ID > list[j].ID
	})
}

func (r transactionRepo) ListByAccount(_ context.Context, accountID int64, status transaction.Status) ([]*transaction.Transaction, error) {
	var list []*transaction.Transaction
	for _, t := range r.st.transactions {
		if t.Status == status && t.Touches(accountID) {
			list = append(list, t.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r transactionRepo) CountByAccount(_ context.Context, accountID int64) (int, error) {
	n := 0
	for _, t := range r.st.transactions {
		if t.Touches(accountID) {
			n++
		}
	}
	return n, nil
}
