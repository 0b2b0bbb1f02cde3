package http

import (
	"net/http"
	"strings"
	"time"

	"finledger/internal/domain/ledger"
	"finledger/internal/domain/transaction"
	"finledger/internal/shared/money"
)

type TransactionHandler struct {
	transactions *ledger.TransactionService
}

func NewTransactionHandler(transactions *ledger.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

type CreateTransactionRequest struct {
	Description   string      `json:"description"`
	Amount        money.Money `json:"amount"`
	Date          string      `json:"date"`
	Type          string      `json:"type"`
	Status        string      `json:"status,omitempty"` // PENDING or COMPLETED, defaults to COMPLETED
	FromAccountID *int64      `json:"fromAccountId,omitempty"`
	ToAccountID   *int64      `json:"toAccountId,omitempty"`
	CategoryID    *int64      `json:"categoryId,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

type UpdateTransactionRequest struct {
	Description   *string      `json:"description"`
	Amount        *money.Money `json:"amount"`
	Date          *string      `json:"date"`
	FromAccountID *int64       `json:"fromAccountId"`
	ToAccountID   *int64       `json:"toAccountId"`
	CategoryID    *int64       `json:"categoryId"`
	ClearCategory bool         `json:"clearCategory"`
	Tags          *[]string    `json:"tags"`
	Notes         *string      `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	f, err := transactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.transactions.List(r.Context(), rc, f)
	if err != nil {
		respondError(w, r, err, "list transactions")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleSummary aggregates COMPLETED transactions by ?groupBy=type|category|month.
func (h *TransactionHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	f, err := transactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupBy := r.URL.Query().Get("groupBy")
	if groupBy == "" {
		groupBy = string(transaction.GroupByType)
	}

	rows, err := h.transactions.Summarize(r.Context(), rc, f, groupBy)
	if err != nil {
		respondError(w, r, err, "summarize transactions")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.transactions.Create(r.Context(), rc, transaction.CreateParams{
		Description:   req.Description,
		Amount:        req.Amount,
		Date:          date,
		Type:          transaction.Type(strings.ToUpper(strings.TrimSpace(req.Type))),
		Status:        transaction.Status(strings.ToUpper(strings.TrimSpace(req.Status))),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		CategoryID:    req.CategoryID,
		Tags:          req.Tags,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(w, r, err, "create transaction")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TransactionHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.transactions.Get(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "get transaction")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := transaction.UpdateParams{
		Description:   req.Description,
		Amount:        req.Amount,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		CategoryID:    req.CategoryID,
		ClearCategory: req.ClearCategory,
		Tags:          req.Tags,
		Notes:         req.Notes,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.Date = &date
	}

	t, err := h.transactions.Update(r.Context(), rc, id, p)
	if err != nil {
		respondError(w, r, err, "update transaction")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := transaction.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	t, err := h.transactions.UpdateStatus(r.Context(), rc, id, status)
	if err != nil {
		respondError(w, r, err, "update transaction status")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.transactions.Delete(r.Context(), rc, id); err != nil {
		respondError(w, r, err, "delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transactionFilter reads the listing query parameters.
func transactionFilter(r *http.Request) (transaction.Filter, error) {
	q := r.URL.Query()
	var f transaction.Filter
	var err error

	if f.StartDate, err = queryDate(r, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = queryDate(r, "endDate"); err != nil {
		return f, err
	}
	if f.EndDate != nil {
		// an end date names a whole day
		end := f.EndDate.Add(24*time.Hour - time.Nanosecond)
		if len(strings.TrimSpace(q.Get("endDate"))) > len(time.DateOnly) {
			end = *f.EndDate
		}
		f.EndDate = &end
	}
	if t := strings.TrimSpace(q.Get("type")); t != "" {
		typ := transaction.Type(strings.ToUpper(t))
		f.Type = &typ
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status := transaction.Status(strings.ToUpper(s))
		f.Status = &status
	}
	if f.AccountID, err = queryInt64(r, "accountId"); err != nil {
		return f, err
	}
	if f.CategoryID, err = queryInt64(r, "categoryId"); err != nil {
		return f, err
	}
	f.Search = q.Get("search")
	if f.Page, err = queryInt(r, "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(r, "pageSize"); err != nil {
		return f, err
	}
	return f, nil
}
