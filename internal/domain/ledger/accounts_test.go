package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/account"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
)

func TestDuplicateActiveNameThenDeactivate(t *testing.T) {
	h := newHarness(t)
	first := h.account("Main", account.TypeChecking, "0", false)

	_, err := h.engine.Accounts.Create(h.ctx, owner, account.CreateParams{Name: "Main", Type: account.TypeChecking})
	require.ErrorIs(t, err, account.ErrDuplicateAccountName)

	inactive := false
	_, err = h.engine.Accounts.Update(h.ctx, owner, first.ID, account.UpdateParams{IsActive: &inactive})
	require.NoError(t, err)

	second, err := h.engine.Accounts.Create(h.ctx, owner, account.CreateParams{Name: "Main", Type: account.TypeChecking})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active := true
	_, err = h.engine.Accounts.Update(h.ctx, owner, first.ID, account.UpdateParams{IsActive: &active})
	assert.ErrorIs(t, err, account.ErrDuplicateAccountName)
}

func TestCreateAccountRules(t *testing.T) {
	h := newHarness(t)

	card := h.account("Visa", account.TypeCreditCard, "0", false)
	assert.True(t, card.AllowNegativeBalance, "credit cards always allow negative balances")

	_, err := h.engine.Accounts.Create(h.ctx, owner, account.CreateParams{
		Name:           "Overdrawn",
		Type:           account.TypeChecking,
		InitialBalance: m("-1.00"),
	})
	assert.ErrorIs(t, err, account.ErrNegativeBalanceNotAllowed)

	_, err = h.engine.Accounts.Create(h.ctx, owner, account.CreateParams{Name: "Bad", Type: "GOLD"})
	assert.ErrorIs(t, err, account.ErrInvalidAccountType)
}

func TestDefaultAccount(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", account.TypeChecking, "0", false)
	b := h.account("B", account.TypeSavings, "0", false)

	_, err := h.engine.Accounts.GetDefault(h.ctx, owner)
	require.ErrorIs(t, err, account.ErrNoDefaultAccount)

	_, err = h.engine.Accounts.SetDefault(h.ctx, owner, a.ID)
	require.NoError(t, err)
	_, err = h.engine.Accounts.SetDefault(h.ctx, owner, b.ID)
	require.NoError(t, err)

	def, err := h.engine.Accounts.GetDefault(h.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	got, err := h.engine.Accounts.Get(h.ctx, owner, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)

	inactive := false
	got, err = h.engine.Accounts.Update(h.ctx, owner, b.ID, account.UpdateParams{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, got.IsDefault, "deactivated account stays default")

	_, err = h.engine.Accounts.SetDefault(h.ctx, owner, b.ID)
	assert.ErrorIs(t, err, account.ErrAccountInactive)
}

func TestToggleNegativeBalance(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "0", true)
	card := h.account("Card", account.TypeCreditCard, "0", true)

	_, err := h.expense(a.ID, "10.00")
	require.NoError(t, err)

	_, err = h.engine.Accounts.ToggleNegativeBalance(h.ctx, owner, a.ID, false)
	assert.ErrorIs(t, err, account.ErrNegativeBalancePresent)

	_, err = h.engine.Accounts.ToggleNegativeBalance(h.ctx, owner, card.ID, false)
	assert.ErrorIs(t, err, account.ErrCreditCardRequiresNegative)

	_, err = h.income(a.ID, "10.00")
	require.NoError(t, err)
	got, err := h.engine.Accounts.ToggleNegativeBalance(h.ctx, owner, a.ID, false)
	require.NoError(t, err)
	assert.False(t, got.AllowNegativeBalance)
}

func TestDeleteAccountWithTransactions(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "100.00", false)
	empty := h.account("Empty", account.TypeCash, "0", false)

	_, err := h.expense(a.ID, "10.00")
	require.NoError(t, err)

	assert.ErrorIs(t, h.engine.Accounts.Delete(h.ctx, owner, a.ID), account.ErrHasTransactions)
	require.NoError(t, h.engine.Accounts.Delete(h.ctx, owner, empty.ID))

	_, err = h.engine.Accounts.Get(h.ctx, owner, empty.ID)
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestAdjustBalance(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "100.00", false)

	tests := []struct {
		name      string
		target    string
		wantType  transaction.Type
		wantDelta string
	}{
		{"raise", "250.00", transaction.TypeIncome, "150.00"},
		{"lower", "200.50", transaction.TypeExpense, "-49.50"},
	}
	for _, tt := range tests {
		adj, err := h.engine.Accounts.AdjustBalance(h.ctx, owner, a.ID, m(tt.target), "bank statement")
		require.NoError(t, err, tt.name)
		require.NotNil(t, adj.Transaction, tt.name)
		if adj.Transaction.Type != tt.wantType {
			t.Errorf("%s: type = %s, want %s", tt.name, adj.Transaction.Type, tt.wantType)
		}
		if adj.Delta.String() != tt.wantDelta {
			t.Errorf("%s: delta = %s, want %s", tt.name, adj.Delta, tt.wantDelta)
		}
		if got := h.balance(a.ID); got != tt.target {
			t.Errorf("%s: balance = %s, want %s", tt.name, got, tt.target)
		}
	}

	noop, err := h.engine.Accounts.AdjustBalance(h.ctx, owner, a.ID, m("200.50"), "")
	require.NoError(t, err)
	assert.Nil(t, noop.Transaction)

	_, err = h.engine.Accounts.AdjustBalance(h.ctx, owner, a.ID, m("-5.00"), "")
	assert.ErrorIs(t, err, account.ErrNegativeBalanceNotAllowed)

	rec, err := h.engine.Accounts.Reconcile(h.ctx, owner, a.ID, false)
	require.NoError(t, err)
	assert.True(t, rec.Drift.IsZero(), "adjustments must reconcile, drift %s", rec.Drift)
	assert.Contains(t, h.events.Types(), ledger.EventBalanceAdjusted)
}

func TestReconcileReportsNoDriftAfterActivity(t *testing.T) {
	h := newHarness(t)
	a := h.account("Bank", account.TypeChecking, "1000.00", false)
	b := h.account("Savings", account.TypeSavings, "0", false)

	_, err := h.expense(a.ID, "99.99")
	require.NoError(t, err)
	_, err = h.engine.Transactions.Create(h.ctx, owner, transaction.CreateParams{
		Description:   "move",
		Amount:        m("300.00"),
		Date:          h.clock.Now(),
		Type:          transaction.TypeTransfer,
		FromAccountID: &a.ID,
		ToAccountID:   &b.ID,
	})
	require.NoError(t, err)
	pending, err := h.engine.Transactions.Create(h.ctx, owner, transaction.CreateParams{
		Description: "pending",
		Amount:      m("5.00"),
		Date:        h.clock.Now(),
		Type:        transaction.TypeIncome,
		Status:      transaction.StatusPending,
		ToAccountID: &a.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, pending.Status)

	for _, accountID := range []int64{a.ID, b.ID} {
		rec, err := h.engine.Accounts.Reconcile(h.ctx, owner, accountID, true)
		require.NoError(t, err)
		assert.True(t, rec.Drift.IsZero(), "account %d drift %s", accountID, rec.Drift)
		assert.False(t, rec.Healed)
	}
	assert.Equal(t, "600.01", h.balance(a.ID))
	assert.Equal(t, "300.00", h.balance(b.ID))
}
