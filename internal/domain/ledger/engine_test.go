package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
	"finledger/internal/infrastructure/memory"
	"finledger/internal/shared/money"
)

var (
	owner  = tenant.RequestContext{CompanyID: 1, UserID: 10, Role: tenant.RoleOwner}
	viewer = tenant.RequestContext{CompanyID: 1, UserID: 11, Role: tenant.RoleViewer}
	other  = tenant.RequestContext{CompanyID: 2, UserID: 20, Role: tenant.RoleOwner}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, events ...ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return r.err
}

func (r *recorder) Types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]ledger.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *ledger.Engine
	clock  *clock
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	return &harness{
		t:   t,
		ctx: context.Background(),
		engine: ledger.New(ledger.Deps{
			UnitOfWork: memory.New(),
			Publisher:  rec,
			Logger:     zerolog.Nop(),
			Now:        clk.Now,
		}),
		clock:  clk,
		events: rec,
	}
}

func m(s string) money.Money { return money.MustParse(s) }

func id(v int64) *int64 { return &v }

func (h *harness) account(name string, typ account.Type, initial string, allowNegative bool) *account.Account {
	h.t.Helper()
	a, err := h.engine.Accounts.Create(h.ctx, owner, account.CreateParams{
		Name:                 name,
		Type:                 typ,
		InitialBalance:       m(initial),
		AllowNegativeBalance: allowNegative,
	})
	require.NoError(h.t, err)
	return a
}

func (h *harness) balance(accountID int64) string {
	h.t.Helper()
	a, err := h.engine.Accounts.Get(h.ctx, owner, accountID)
	require.NoError(h.t, err)
	return a.Balance.String()
}

func (h *harness) expense(from int64, amount string) (*transaction.Transaction, error) {
	return h.engine.Transactions.Create(h.ctx, owner, transaction.CreateParams{
		Description:   "expense",
		Amount:        m(amount),
		Date:          h.clock.Now(),
		Type:          transaction.TypeExpense,
		FromAccountID: &from,
	})
}

func (h *harness) income(to int64, amount string) (*transaction.Transaction, error) {
	return h.engine.Transactions.Create(h.ctx, owner, transaction.CreateParams{
		Description: "income",
		Amount:      m(amount),
		Date:        h.clock.Now(),
		Type:        transaction.TypeIncome,
		ToAccountID: &to,
	})
}

// card creates a CREDIT_CARD account closing on the 15th, due ten days
// later, with a 10% minimum payment.
func (h *harness) card(limit string) *account.Account {
	h.t.Helper()
	a := h.account("Card", account.TypeCreditCard, "0", true)
	_, err := h.engine.Cards.CreateConfig(h.ctx, owner, a.ID, creditcard.ConfigParams{
		CreditLimit:           m(limit),
		ClosingDay:            15,
		DueDay:                25,
		DueDaysAfterClosing:   10,
		InterestRate:          m("10"),
		LateFeePercent:        m("2"),
		MinimumPaymentPercent: m("10"),
		AlertThresholdPercent: m("80"),
		AlertEnabled:          true,
	})
	require.NoError(h.t, err)
	return a
}

func (h *harness) limit(cardID int64) *creditcard.LimitStatus {
	h.t.Helper()
	st, err := h.engine.Limits.GetAvailableLimit(h.ctx, owner, cardID)
	require.NoError(h.t, err)
	assert.True(h.t, st.AvailableLimit.Add(st.UsedLimit).Equal(st.CreditLimit),
		"available %s + used %s != limit %s", st.AvailableLimit, st.UsedLimit, st.CreditLimit)
	assert.False(h.t, st.UsedLimit.IsNegative(), "used limit %s is negative", st.UsedLimit)
	return st
}

func TestNewRejectsMissingContext(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		rc   tenant.RequestContext
		want error
	}{
		{"no company", tenant.RequestContext{UserID: 1, Role: tenant.RoleOwner}, tenant.ErrMissingContext},
		{"no user", tenant.RequestContext{CompanyID: 1, Role: tenant.RoleOwner}, tenant.ErrMissingContext},
		{"viewer writes", viewer, tenant.ErrAccessDenied},
	}
	for _, tt := range tests {
		_, err := h.engine.Accounts.Create(h.ctx, tt.rc, account.CreateParams{Name: "x", Type: account.TypeCash})
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestIdentityCheckedBeforeParameters(t *testing.T) {
	h := newHarness(t)
	anon := tenant.RequestContext{}
	badType := account.Type("GOLD")

	calls := map[string]func(rc tenant.RequestContext) error{
		"create account": func(rc tenant.RequestContext) error {
			_, err := h.engine.Accounts.Create(h.ctx, rc, account.CreateParams{})
			return err
		},
		"list accounts": func(rc tenant.RequestContext) error {
			_, err := h.engine.Accounts.List(h.ctx, rc, account.Filter{Type: &badType})
			return err
		},
		"card config": func(rc tenant.RequestContext) error {
			_, err := h.engine.Cards.CreateConfig(h.ctx, rc, 1, creditcard.ConfigParams{})
			return err
		},
		"installment": func(rc tenant.RequestContext) error {
			_, err := h.engine.Installments.Create(h.ctx, rc, creditcard.InstallmentParams{})
			return err
		},
		"used limit": func(rc tenant.RequestContext) error {
			_, err := h.engine.Limits.UpdateUsedLimit(h.ctx, rc, 1, money.Zero, creditcard.LimitAdd)
			return err
		},
		"status": func(rc tenant.RequestContext) error {
			_, err := h.engine.Transactions.UpdateStatus(h.ctx, rc, 1, transaction.Status("LOST"))
			return err
		},
		"generate invoice": func(rc tenant.RequestContext) error {
			_, err := h.engine.Invoices.Generate(h.ctx, rc, 1, 13, 2024)
			return err
		},
		"partial payment": func(rc tenant.RequestContext) error {
			_, err := h.engine.Payments.PayPartial(h.ctx, rc, 1, 2, money.Zero)
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(anon), tenant.ErrMissingContext)
			if name != "list accounts" {
				assert.ErrorIs(t, call(viewer), tenant.ErrAccessDenied)
			}
		})
	}
}

func TestCrossCompanyAccessDenied(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "100.00", false)

	_, err := h.engine.Accounts.Get(h.ctx, other, a.ID)
	assert.ErrorIs(t, err, tenant.ErrAccessDenied)

	_, err = h.engine.Transactions.Create(h.ctx, other, transaction.CreateParams{
		Description:   "theft",
		Amount:        m("10.00"),
		Date:          h.clock.Now(),
		Type:          transaction.TypeExpense,
		FromAccountID: &a.ID,
	})
	assert.ErrorIs(t, err, tenant.ErrAccessDenied)
	assert.Equal(t, "100.00", h.balance(a.ID))
}

func TestViewerCanRead(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "100.00", false)

	got, err := h.engine.Accounts.Get(h.ctx, viewer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = h.engine.Accounts.Update(h.ctx, viewer, a.ID, account.UpdateParams{Color: new(string)})
	assert.ErrorIs(t, err, tenant.ErrAccessDenied)
}

func TestEventsPublishedAfterCommitOnly(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "100.00", false)

	_, err := h.expense(a.ID, "500.00")
	require.ErrorIs(t, err, account.ErrNegativeBalanceNotAllowed)
	assert.Empty(t, h.events.Types())

	_, err = h.expense(a.ID, "40.00")
	require.NoError(t, err)
	assert.Equal(t, []ledger.EventType{ledger.EventTransactionCreated}, h.events.Types())
}

func TestPublishFailureDoesNotFailCommit(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("broker down")
	a := h.account("Bank", account.TypeChecking, "100.00", false)

	_, err := h.expense(a.ID, "40.00")
	require.NoError(t, err)
	assert.Equal(t, "60.00", h.balance(a.ID))
}
