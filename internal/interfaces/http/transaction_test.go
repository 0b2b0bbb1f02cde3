package http

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/account"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

type transactionFixture struct {
	accounts     *AccountHandler
	transactions *TransactionHandler
	checking     *account.Account
	savings      *account.Account
}

func newTransactionFixture(t *testing.T) *transactionFixture {
	t.Helper()
	engine := newTestEngine()
	f := &transactionFixture{
		accounts:     NewAccountHandler(engine.Accounts),
		transactions: NewTransactionHandler(engine.Transactions),
	}
	f.checking = createAccount(t, f.accounts, CreateAccountRequest{Name: "Checking", Type: "CHECKING", InitialBalance: money.MustParse("1000.00")})
	f.savings = createAccount(t, f.accounts, CreateAccountRequest{Name: "Savings", Type: "SAVINGS"})
	return f
}

func (f *transactionFixture) create(t *testing.T, body string) *transaction.Transaction {
	t.Helper()
	rr := serve(t, f.transactions.HandleCreateTransaction, call{method: http.MethodPost, target: "/api/transactions", body: body, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[*transaction.Transaction](t, rr)
}

func (f *transactionFixture) balance(t *testing.T, a *account.Account) string {
	t.Helper()
	rr := serve(t, f.accounts.HandleGetAccount, call{method: http.MethodGet, path: map[string]string{"id": strconv.FormatInt(a.ID, 10)}, rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	return decode[*account.Account](t, rr).Balance.String()
}

func idPath(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

func TestTransactionLifecycleMovesBalances(t *testing.T) {
	f := newTransactionFixture(t)

	income := f.create(t, fmt.Sprintf(`{"description":"Salary","amount":"500.00","date":"2024-03-05","type":"income","toAccountId":%d}`, f.checking.ID))
	assert.Equal(t, transaction.StatusCompleted, income.Status)
	assert.Equal(t, "1500.00", f.balance(t, f.checking))

	expense := f.create(t, fmt.Sprintf(`{"description":"Groceries","amount":200,"date":"2024-03-06","type":"EXPENSE","status":"pending","fromAccountId":%d}`, f.checking.ID))
	assert.Equal(t, transaction.StatusPending, expense.Status)
	assert.Equal(t, "1500.00", f.balance(t, f.checking), "pending transactions do not move balances")

	rr := serve(t, f.transactions.HandleUpdateStatus, call{method: http.MethodPatch, path: idPath(expense.ID), body: `{"status":"completed"}`, rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "1300.00", f.balance(t, f.checking))

	f.create(t, fmt.Sprintf(`{"description":"Save","amount":"300","date":"2024-03-07T10:00:00Z","type":"TRANSFER","fromAccountId":%d,"toAccountId":%d}`, f.checking.ID, f.savings.ID))
	assert.Equal(t, "1000.00", f.balance(t, f.checking))
	assert.Equal(t, "300.00", f.balance(t, f.savings))

	rr = serve(t, f.transactions.HandleUpdateStatus, call{method: http.MethodPatch, path: idPath(income.ID), body: `{"status":"CANCELED"}`, rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "500.00", f.balance(t, f.checking))

	rr = serve(t, f.transactions.HandleUpdateStatus, call{method: http.MethodPatch, path: idPath(income.ID), body: `{"status":"COMPLETED"}`, rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, f.transactions.HandleDeleteTransaction, call{method: http.MethodDelete, path: idPath(expense.ID), rc: as(owner)})
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "700.00", f.balance(t, f.checking))

	rr = serve(t, f.transactions.HandleGetTransaction, call{method: http.MethodGet, path: idPath(expense.ID), rc: as(owner)})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCreateTransaction_Errors(t *testing.T) {
	f := newTransactionFixture(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"missing description", fmt.Sprintf(`{"amount":"10","date":"2024-03-01","type":"INCOME","toAccountId":%d}`, f.checking.ID), http.StatusBadRequest},
		{"zero amount", fmt.Sprintf(`{"description":"x","amount":"0","date":"2024-03-01","type":"INCOME","toAccountId":%d}`, f.checking.ID), http.StatusBadRequest},
		{"bad date", fmt.Sprintf(`{"description":"x","amount":"10","date":"03/01/2024","type":"INCOME","toAccountId":%d}`, f.checking.ID), http.StatusBadRequest},
		{"unknown type", fmt.Sprintf(`{"description":"x","amount":"10","date":"2024-03-01","type":"GIFT","toAccountId":%d}`, f.checking.ID), http.StatusBadRequest},
		{"income with source", fmt.Sprintf(`{"description":"x","amount":"10","date":"2024-03-01","type":"INCOME","fromAccountId":%d}`, f.checking.ID), http.StatusBadRequest},
		{"transfer to itself", fmt.Sprintf(`{"description":"x","amount":"10","date":"2024-03-01","type":"TRANSFER","fromAccountId":%d,"toAccountId":%d}`, f.checking.ID, f.checking.ID), http.StatusBadRequest},
		{"overdraw", fmt.Sprintf(`{"description":"x","amount":"5000","date":"2024-03-01","type":"EXPENSE","fromAccountId":%d}`, f.checking.ID), http.StatusUnprocessableEntity},
		{"unknown account", `{"description":"x","amount":"10","date":"2024-03-01","type":"EXPENSE","fromAccountId":999}`, http.StatusNotFound},
		{"malformed json", `{"description":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, f.transactions.HandleCreateTransaction, call{method: http.MethodPost, body: tt.body, rc: as(owner)})
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}

	assert.Equal(t, "1000.00", f.balance(t, f.checking), "rejected requests leave balances alone")
}

func TestHandleUpdateTransaction(t *testing.T) {
	f := newTransactionFixture(t)
	tx := f.create(t, fmt.Sprintf(`{"description":"Rent","amount":"400","date":"2024-03-01","type":"EXPENSE","fromAccountId":%d}`, f.checking.ID))
	require.Equal(t, "600.00", f.balance(t, f.checking))

	rr := serve(t, f.transactions.HandleUpdateTransaction, call{
		method: http.MethodPut,
		path:   idPath(tx.ID),
		body:   `{"amount":"450.00","notes":"new lease","tags":["home"]}`,
		rc:     as(owner),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[*transaction.Transaction](t, rr)
	assert.Equal(t, "450.00", updated.Amount.String())
	assert.Equal(t, []string{"home"}, updated.Tags)
	assert.Equal(t, "550.00", f.balance(t, f.checking))

	rr = serve(t, f.transactions.HandleUpdateTransaction, call{method: http.MethodPut, path: idPath(tx.ID), body: `{"date":"yesterday"}`, rc: as(owner)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, f.transactions.HandleUpdateTransaction, call{method: http.MethodPut, path: idPath(tx.ID), body: `{"notes":"x"}`, rc: as(viewer)})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleListTransactionsAndSummary(t *testing.T) {
	f := newTransactionFixture(t)
	f.create(t, fmt.Sprintf(`{"description":"Salary","amount":"500","date":"2024-02-28","type":"INCOME","toAccountId":%d}`, f.checking.ID))
	f.create(t, fmt.Sprintf(`{"description":"Coffee","amount":"4.50","date":"2024-03-02","type":"EXPENSE","fromAccountId":%d}`, f.checking.ID))
	f.create(t, fmt.Sprintf(`{"description":"Lunch","amount":"20.25","date":"2024-03-03","type":"EXPENSE","fromAccountId":%d}`, f.checking.ID))
	f.create(t, fmt.Sprintf(`{"description":"Pending bill","amount":"80","date":"2024-03-03","type":"EXPENSE","status":"PENDING","fromAccountId":%d}`, f.checking.ID))

	rr := serve(t, f.transactions.HandleListTransactions, call{method: http.MethodGet, target: "/api/transactions?type=expense&startDate=2024-03-01&endDate=2024-03-03&pageSize=2", rc: as(viewer)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[transaction.Page](t, rr)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	rr = serve(t, f.transactions.HandleListTransactions, call{method: http.MethodGet, target: "/api/transactions?search=coffee", rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[transaction.Page](t, rr).Total)

	rr = serve(t, f.transactions.HandleSummary, call{method: http.MethodGet, target: "/api/transactions/summary", rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rows := decode[[]transaction.SummaryRow](t, rr)
	require.Len(t, rows, 2)
	assert.Equal(t, "EXPENSE", rows[0].Key)
	assert.Equal(t, 2, rows[0].Count)
	assert.Equal(t, "24.75", rows[0].Total.String())
	assert.Equal(t, "INCOME", rows[1].Key)

	rr = serve(t, f.transactions.HandleSummary, call{method: http.MethodGet, target: "/api/transactions/summary?groupBy=month", rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	rows = decode[[]transaction.SummaryRow](t, rr)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-02", rows[0].Key)

	rr = serve(t, f.transactions.HandleSummary, call{method: http.MethodGet, target: "/api/transactions/summary?groupBy=weekday", rc: as(owner)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for _, target := range []string{
		"/api/transactions?startDate=march",
		"/api/transactions?accountId=abc",
		"/api/transactions?startDate=2024-03-05&endDate=2024-03-01",
		"/api/transactions?status=LOST",
	} {
		rr = serve(t, f.transactions.HandleListTransactions, call{method: http.MethodGet, target: target, rc: as(owner)})
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}
