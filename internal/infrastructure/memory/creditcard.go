package memory

import (
	"context"
	"sort"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/transaction"
)

type configRepo struct {
	st *state
}

func (r configRepo) Create(_ context.Context, c *creditcard.Config) error {
	if _, ok := r.st.configs[c.AccountID]; ok {
		return creditcard.ErrConfigAlreadyExists
	}
	c.ID = r.st.next("configs")
	cp := *c
	r.st.configs[c.AccountID] = &cp
	return nil
}

func (r configRepo) GetByAccountID(_ context.Context, accountID int64) (*creditcard.Config, error) {
	c, ok := r.st.configs[accountID]
	if !ok {
		return nil, creditcard.ErrConfigNotFound
	}
	cp := *c
	return &cp, nil
}

func (r configRepo) LockByAccountID(ctx context.Context, accountID int64) (*creditcard.Config, error) {
	return r.GetByAccountID(ctx, accountID)
}

func (r configRepo) Update(_ context.Context, c *creditcard.Config) error {
	if _, ok := r.st.configs[c.AccountID]; !ok {
		return creditcard.ErrConfigNotFound
	}
	cp := *c
	r.st.configs[c.AccountID] = &cp
	return nil
}

func (r configRepo) Delete(_ context.Context, accountID int64) error {
	if _, ok := r.st.configs[accountID]; !ok {
		return creditcard.ErrConfigNotFound
	}
	delete(r.st.configs, accountID)
	return nil
}

type invoiceRepo struct {
	st *state
}

func (r invoiceRepo) Create(_ context.Context, inv *creditcard.Invoice) error {
	for _, existing := range r.st.invoices {
		if existing.AccountID == inv.AccountID && existing.Period() == inv.Period() {
			return creditcard.ErrInvoiceAlreadyExists
		}
	}
	inv.ID = r.st.next("invoices")
	cp := *inv
	r.st.invoices[inv.ID] = &cp
	return nil
}

func (r invoiceRepo) GetByID(_ context.Context, id int64) (*creditcard.Invoice, error) {
	inv, ok := r.st.invoices[id]
	if !ok {
		return nil, creditcard.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r invoiceRepo) LockByID(ctx context.Context, id int64) (*creditcard.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r invoiceRepo) GetByPeriod(_ context.Context, accountID int64, p creditcard.Period) (*creditcard.Invoice, error) {
	for _, inv := range r.st.invoices {
		if inv.AccountID == accountID && inv.Period() == p {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, creditcard.ErrInvoiceNotFound
}

func (r invoiceRepo) LockByPeriod(ctx context.Context, accountID int64, p creditcard.Period) (*creditcard.Invoice, error) {
	return r.GetByPeriod(ctx, accountID, p)
}

func (r invoiceRepo) List(_ context.Context, f creditcard.InvoiceFilter) ([]*creditcard.Invoice, error) {
	list := []*creditcard.Invoice{}
	for _, inv := range r.st.invoices {
		if f.CompanyID != 0 && inv.CompanyID != f.CompanyID {
			continue
		}
		if f.AccountID != 0 && inv.AccountID != f.AccountID {
			continue
		}
		if f.Year != 0 && inv.ReferenceYear != f.Year {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, inv.Status) {
			continue
		}
		if f.ClosingBefore != nil && !inv.ClosingDate.Before(*f.ClosingBefore) {
			continue
		}
		if f.DueBefore != nil && !inv.DueDate.Before(*f.DueBefore) {
			continue
		}
		cp := *inv
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		pi, pj := list[i].Period(), list[j].Period()
		if pi != pj {
			return pi.Before(pj)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func hasStatus(statuses []creditcard.InvoiceStatus, s creditcard.InvoiceStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (r invoiceRepo) Update(_ context.Context, inv *creditcard.Invoice) error {
	if _, ok := r.st.invoices[inv.ID]; !ok {
		return creditcard.ErrInvoiceNotFound
	}
	cp := *inv
	r.st.invoices[inv.ID] = &cp
	return nil
}

func (r invoiceRepo) LinkTransaction(_ context.Context, invoiceID, transactionID int64) error {
	if _, ok := r.st.invoices[invoiceID]; !ok {
		return creditcard.ErrInvoiceNotFound
	}
	set, ok := r.st.links[invoiceID]
	if !ok {
		set = make(map[int64]struct{})
		r.st.links[invoiceID] = set
	}
	if _, ok := set[transactionID]; ok {
		return creditcard.ErrTransactionAlreadyLinked
	}
	set[transactionID] = struct{}{}
	return nil
}

func (r invoiceRepo) UnlinkTransaction(_ context.Context, invoiceID, transactionID int64) error {
	set := r.st.links[invoiceID]
	if _, ok := set[transactionID]; !ok {
		return creditcard.ErrTransactionNotLinked
	}
	delete(set, transactionID)
	return nil
}

func (r invoiceRepo) FindByTransaction(_ context.Context, accountID, transactionID int64) (*creditcard.Invoice, error) {
	for invID, set := range r.st.links {
		if _, ok := set[transactionID]; !ok {
			continue
		}
		inv, ok := r.st.invoices[invID]
		if ok && inv.AccountID == accountID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (r invoiceRepo) ListTransactions(_ context.Context, invoiceID int64) ([]*transaction.Transaction, error) {
	var list []*transaction.Transaction
	for txID := range r.st.links[invoiceID] {
		if t, ok := r.st.transactions[txID]; ok {
			list = append(list, t.Clone())
		}
	}
	sortByDateDesc(list)
	return list, nil
}

type installmentRepo struct {
	st *state
}

func (r installmentRepo) Create(_ context.Context, inst *creditcard.Installment) error {
	for _, existing := range r.st.installments {
		if existing.CompanyID == inst.CompanyID && existing.PurchaseKey == inst.PurchaseKey {
			return creditcard.ErrDuplicatePurchaseKey
		}
	}
	inst.ID = r.st.next("installments")
	r.st.installments[inst.ID] = storedInstallment(inst)
	return nil
}

// storedInstallment copies inst without its shares, which live in their
// own table.
func storedInstallment(inst *creditcard.Installment) *creditcard.Installment {
	cp := *inst
	cp.Shares = nil
	return &cp
}

func (r installmentRepo) GetByID(_ context.Context, id int64) (*creditcard.Installment, error) {
	inst, ok := r.st.installments[id]
	if !ok {
		return nil, creditcard.ErrInstallmentNotFound
	}
	return storedInstallment(inst), nil
}

func (r installmentRepo) LockByID(ctx context.Context, id int64) (*creditcard.Installment, error) {
	return r.GetByID(ctx, id)
}

func (r installmentRepo) GetByPurchaseKey(_ context.Context, companyID int64, key string) (*creditcard.Installment, error) {
	for _, inst := range r.st.installments {
		if inst.CompanyID == companyID && inst.PurchaseKey == key {
			return storedInstallment(inst), nil
		}
	}
	return nil, creditcard.ErrInstallmentNotFound
}

func (r installmentRepo) ListByAccount(_ context.Context, accountID int64) ([]*creditcard.Installment, error) {
	list := []*creditcard.Installment{}
	for _, inst := range r.st.installments {
		if inst.AccountID == accountID {
			list = append(list, storedInstallment(inst))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r installmentRepo) Update(_ context.Context, inst *creditcard.Installment) error {
	if _, ok := r.st.installments[inst.ID]; !ok {
		return creditcard.ErrInstallmentNotFound
	}
	r.st.installments[inst.ID] = storedInstallment(inst)
	return nil
}

func (r installmentRepo) CreateShare(_ context.Context, s *creditcard.Share) error {
	s.ID = r.st.next("shares")
	cp := *s
	r.st.shares[s.ID] = &cp
	return nil
}

func (r installmentRepo) UpdateShare(_ context.Context, s *creditcard.Share) error {
	if _, ok := r.st.shares[s.ID]; !ok {
		return creditcard.ErrInstallmentNotFound
	}
	cp := *s
	r.st.shares[s.ID] = &cp
	return nil
}

func (r installmentRepo) ListShares(_ context.Context, installmentID int64) ([]*creditcard.Share, error) {
	return r.shares(func(s *creditcard.Share) bool { return s.InstallmentID == installmentID }), nil
}

func (r installmentRepo) ListSharesByInvoice(_ context.Context, invoiceID int64) ([]*creditcard.Share, error) {
	return r.shares(func(s *creditcard.Share) bool { return s.InvoiceID == invoiceID }), nil
}

func (r installmentRepo) FindShareByTransaction(_ context.Context, transactionID int64) (*creditcard.Share, error) {
	found := r.shares(func(s *creditcard.Share) bool { return s.TransactionID == transactionID })
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (r installmentRepo) shares(keep func(*creditcard.Share) bool) []*creditcard.Share {
	list := []*creditcard.Share{}
	for _, s := range r.st.shares {
		if keep(s) {
			cp := *s
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].InstallmentID != list[j].InstallmentID {
			return list[i].InstallmentID < list[j].InstallmentID
		}
		return list[i].Number < list[j].Number
	})
	return list
}

type paymentRepo struct {
	st *state
}

func (r paymentRepo) Create(_ context.Context, p *creditcard.InvoicePayment) error {
	p.ID = r.st.next("payments")
	cp := *p
	r.st.payments[p.ID] = &cp
	return nil
}

func (r paymentRepo) ListByInvoice(_ context.Context, invoiceID int64) ([]*creditcard.InvoicePayment, error) {
	var list []*creditcard.InvoicePayment
	for _, p := range r.st.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r paymentRepo) FindByTransaction(_ context.Context, transactionID int64) (*creditcard.InvoicePayment, error) {
	for _, p := range r.st.payments {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}
