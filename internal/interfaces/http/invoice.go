package http

import (
	"net/http"
	"strings"
	"time"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/shared/money"
)

type InvoiceHandler struct {
	invoices *ledger.InvoiceService
	payments *ledger.PaymentService
}

func NewInvoiceHandler(invoices *ledger.InvoiceService, payments *ledger.PaymentService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, payments: payments}
}

type GenerateInvoiceRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type PayInvoiceRequest struct {
	Type            string      `json:"type"`
	SourceAccountID int64       `json:"sourceAccountId"`
	Amount          money.Money `json:"amount"` // PARTIAL only
}

// HandleListInvoices lists a card's invoices, optionally for one ?year=.
func (h *InvoiceHandler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}
	year, err := queryInt(r, "year")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoices, err := h.invoices.List(r.Context(), rc, accountID, year)
	if err != nil {
		respondError(w, r, err, "list invoices")
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *InvoiceHandler) HandleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	var req GenerateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invoices.Generate(r.Context(), rc, accountID, time.Month(req.Month), req.Year)
	if err != nil {
		respondError(w, r, err, "generate invoice")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) HandleCurrentInvoice(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	inv, err := h.invoices.Current(r.Context(), rc, accountID)
	if err != nil {
		respondError(w, r, err, "get current invoice")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.invoices.Get(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "get invoice")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) HandleCloseInvoice(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.invoices.Close(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "close invoice")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) HandleInvoiceTransactions(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	txs, err := h.invoices.Transactions(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "list invoice transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *InvoiceHandler) HandlePayInvoice(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req PayInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SourceAccountID <= 0 {
		writeError(w, http.StatusBadRequest, "sourceAccountId is required")
		return
	}

	typ := creditcard.PaymentType(strings.ToUpper(strings.TrimSpace(req.Type)))
	result, err := h.payments.Pay(r.Context(), rc, id, req.SourceAccountID, typ, req.Amount)
	if err != nil {
		respondError(w, r, err, "pay invoice")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *InvoiceHandler) HandlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.payments.History(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "list invoice payments")
		return
	}
	writeJSON(w, http.StatusOK, payments)
}
