package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

const cardConfigBody = `{
	"creditLimit": "5000.00",
	"closingDay": 15,
	"dueDay": 25,
	"dueDaysAfterClosing": 10,
	"interestRate": "10",
	"lateFeePercent": "2",
	"minimumPaymentPercent": "10",
	"alertThresholdPercent": "80",
	"alertEnabled": true
}`

type cardFixture struct {
	accounts     *AccountHandler
	transactions *TransactionHandler
	cards        *CardHandler
	invoices     *InvoiceHandler
	installments *InstallmentHandler
	card         *account.Account
	bank         *account.Account
}

func newCardFixture(t *testing.T) *cardFixture {
	t.Helper()
	engine := newTestEngine()
	f := &cardFixture{
		accounts:     NewAccountHandler(engine.Accounts),
		transactions: NewTransactionHandler(engine.Transactions),
		cards:        NewCardHandler(engine.Cards, engine.Limits),
		invoices:     NewInvoiceHandler(engine.Invoices, engine.Payments),
		installments: NewInstallmentHandler(engine.Installments),
	}
	f.card = createAccount(t, f.accounts, CreateAccountRequest{Name: "Card", Type: "CREDIT_CARD"})
	f.bank = createAccount(t, f.accounts, CreateAccountRequest{Name: "Bank", Type: "CHECKING", InitialBalance: money.MustParse("5000.00")})

	rr := serve(t, f.cards.HandleCreateConfig, call{method: http.MethodPost, path: f.cardPath(), body: cardConfigBody, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return f
}

func (f *cardFixture) cardPath() map[string]string {
	return map[string]string{"accountId": strconv.FormatInt(f.card.ID, 10)}
}

func (f *cardFixture) purchase(t *testing.T, amount string) {
	t.Helper()
	body := fmt.Sprintf(`{"description":"Store","amount":%q,"date":"2024-03-10","type":"EXPENSE","fromAccountId":%d}`, amount, f.card.ID)
	rr := serve(t, f.transactions.HandleCreateTransaction, call{method: http.MethodPost, body: body, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func (f *cardFixture) limit(t *testing.T) *creditcard.LimitStatus {
	t.Helper()
	rr := serve(t, f.cards.HandleGetLimit, call{method: http.MethodGet, path: f.cardPath(), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[*creditcard.LimitStatus](t, rr)
}

func (f *cardFixture) current(t *testing.T) *creditcard.Invoice {
	t.Helper()
	rr := serve(t, f.invoices.HandleCurrentInvoice, call{method: http.MethodGet, path: f.cardPath(), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[*creditcard.Invoice](t, rr)
}

func TestCardConfigEndpoints(t *testing.T) {
	f := newCardFixture(t)

	rr := serve(t, f.cards.HandleCreateConfig, call{method: http.MethodPost, path: f.cardPath(), body: cardConfigBody, rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, f.cards.HandleCreateConfig, call{
		method: http.MethodPost,
		path:   map[string]string{"accountId": strconv.FormatInt(f.bank.ID, 10)},
		body:   cardConfigBody,
		rc:     as(owner),
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "only credit card accounts carry a configuration")

	rr = serve(t, f.cards.HandleGetConfig, call{method: http.MethodGet, path: f.cardPath(), rc: as(viewer)})
	require.Equal(t, http.StatusOK, rr.Code)
	cfg := decode[*creditcard.Config](t, rr)
	assert.Equal(t, 15, cfg.ClosingDay)
	assert.Equal(t, "5000.00", cfg.AvailableLimit.String())

	rr = serve(t, f.cards.HandleUpdateConfig, call{method: http.MethodPut, path: f.cardPath(), body: `{"closingDay":40}`, rc: as(owner)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.purchase(t, "1000.00")
	rr = serve(t, f.cards.HandleUpdateConfig, call{method: http.MethodPut, path: f.cardPath(), body: `{"creditLimit":"500.00"}`, rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code, "limit cannot drop below what is used")

	rr = serve(t, f.cards.HandleUpdateConfig, call{method: http.MethodPut, path: f.cardPath(), body: `{"creditLimit":"8000.00"}`, rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	st := f.limit(t)
	assert.Equal(t, "8000.00", st.CreditLimit.String())
	assert.Equal(t, "1000.00", st.UsedLimit.String())
	assert.Equal(t, "7000.00", st.AvailableLimit.String())
	assert.False(t, st.AlertTriggered)

	rr = serve(t, f.cards.HandleDeleteConfig, call{method: http.MethodDelete, path: f.cardPath(), rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code, "configuration with used limit cannot be removed")
}

func TestCardPurchaseOverLimit(t *testing.T) {
	f := newCardFixture(t)
	f.purchase(t, "4500.00")

	body := fmt.Sprintf(`{"description":"TV","amount":"600","date":"2024-03-10","type":"EXPENSE","fromAccountId":%d}`, f.card.ID)
	rr := serve(t, f.transactions.HandleCreateTransaction, call{method: http.MethodPost, body: body, rc: as(owner)})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	st := f.limit(t)
	assert.Equal(t, "4500.00", st.UsedLimit.String())
	assert.True(t, st.AlertTriggered)
}

func TestInvoicePaymentEndpoints(t *testing.T) {
	f := newCardFixture(t)
	f.purchase(t, "1000.00")

	inv := f.current(t)
	assert.Equal(t, time.March, inv.ReferenceMonth)
	assert.Equal(t, "1000.00", inv.TotalAmount.String())
	assert.Equal(t, "100.00", inv.MinimumPayment.String())
	invPath := idPath(inv.ID)

	rr := serve(t, f.invoices.HandleInvoiceTransactions, call{method: http.MethodGet, path: invPath, rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*transaction.Transaction](t, rr), 1)

	pay := func(body string) *httptest.ResponseRecorder {
		return serve(t, f.invoices.HandlePayInvoice, call{method: http.MethodPost, path: invPath, body: body, rc: as(owner)})
	}

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"below minimum", fmt.Sprintf(`{"type":"partial","sourceAccountId":%d,"amount":"50.00"}`, f.bank.ID), http.StatusUnprocessableEntity},
		{"above total", fmt.Sprintf(`{"type":"PARTIAL","sourceAccountId":%d,"amount":"1000.01"}`, f.bank.ID), http.StatusUnprocessableEntity},
		{"unknown type", fmt.Sprintf(`{"type":"LATER","sourceAccountId":%d}`, f.bank.ID), http.StatusBadRequest},
		{"missing source", `{"type":"FULL"}`, http.StatusBadRequest},
		{"card pays itself", fmt.Sprintf(`{"type":"FULL","sourceAccountId":%d}`, f.card.ID), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := pay(tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}

	rr = pay(fmt.Sprintf(`{"type":"PARTIAL","sourceAccountId":%d,"amount":"100.00"}`, f.bank.ID))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[ledger.PaymentResult](t, rr)
	assert.Equal(t, creditcard.InvoicePartiallyPaid, res.Invoice.Status)
	assert.Equal(t, "900.00", res.Invoice.RemainingAmount.String())
	assert.Equal(t, "4900.00", f.balanceOf(t, f.bank))
	assert.Equal(t, "900.00", f.limit(t).UsedLimit.String())

	rr = pay(fmt.Sprintf(`{"type":"FULL","sourceAccountId":%d}`, f.bank.ID))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, creditcard.InvoicePaid, decode[ledger.PaymentResult](t, rr).Invoice.Status)

	rr = pay(fmt.Sprintf(`{"type":"MINIMUM","sourceAccountId":%d}`, f.bank.ID))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, f.invoices.HandlePaymentHistory, call{method: http.MethodGet, path: invPath, rc: as(viewer)})
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[[]*creditcard.InvoicePayment](t, rr)
	require.Len(t, history, 2)
	assert.Equal(t, creditcard.PaymentPartial, history[0].Type)
	assert.Equal(t, creditcard.PaymentFull, history[1].Type)
}

func TestInvoiceGenerateAndClose(t *testing.T) {
	f := newCardFixture(t)

	rr := serve(t, f.invoices.HandleGenerateInvoice, call{method: http.MethodPost, path: f.cardPath(), body: `{"month":5,"year":2024}`, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inv := decode[*creditcard.Invoice](t, rr)
	assert.Equal(t, creditcard.InvoiceOpen, inv.Status)

	rr = serve(t, f.invoices.HandleGenerateInvoice, call{method: http.MethodPost, path: f.cardPath(), body: `{"month":5,"year":2024}`, rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, f.invoices.HandleGenerateInvoice, call{method: http.MethodPost, path: f.cardPath(), body: `{"month":13,"year":2024}`, rc: as(owner)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, f.invoices.HandleCloseInvoice, call{method: http.MethodPost, path: idPath(inv.ID), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, creditcard.InvoiceClosed, decode[*creditcard.Invoice](t, rr).Status)

	rr = serve(t, f.invoices.HandleCloseInvoice, call{method: http.MethodPost, path: idPath(inv.ID), rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(t, f.invoices.HandleListInvoices, call{method: http.MethodGet, target: "/?year=2024", path: f.cardPath(), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*creditcard.Invoice](t, rr), 1)

	rr = serve(t, f.invoices.HandleGetInvoice, call{method: http.MethodGet, path: idPath(999), rc: as(owner)})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func (f *cardFixture) balanceOf(t *testing.T, a *account.Account) string {
	t.Helper()
	rr := serve(t, f.accounts.HandleGetAccount, call{method: http.MethodGet, path: idPath(a.ID), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)
	return decode[*account.Account](t, rr).Balance.String()
}
