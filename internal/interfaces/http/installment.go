package http

import (
	"net/http"
	"strings"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/shared/middleware"
	"finledger/internal/shared/money"
)

// IdempotencyKeyHeader may carry the purchase key of an installment purchase.
const IdempotencyKeyHeader = middleware.IdempotencyKeyHeader

type InstallmentHandler struct {
	installments *ledger.InstallmentService
}

func NewInstallmentHandler(installments *ledger.InstallmentService) *InstallmentHandler {
	return &InstallmentHandler{installments: installments}
}

type CreateInstallmentRequest struct {
	Description      string      `json:"description"`
	TotalAmount      money.Money `json:"totalAmount"`
	InstallmentCount int         `json:"installmentCount"`
	PurchaseDate     string      `json:"purchaseDate"`
	CategoryID       *int64      `json:"categoryId,omitempty"`
	PurchaseKey      string      `json:"purchaseKey,omitempty"`
}

func (h *InstallmentHandler) HandleListInstallments(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	list, err := h.installments.List(r.Context(), rc, accountID)
	if err != nil {
		respondError(w, r, err, "list installments")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateInstallment splits a purchase over future invoices. Repeating
// a request with the same purchase key returns the original purchase.
func (h *InstallmentHandler) HandleCreateInstallment(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	var req CreateInstallmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	purchaseDate, err := parseDate(req.PurchaseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := strings.TrimSpace(req.PurchaseKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	inst, err := h.installments.Create(r.Context(), rc, creditcard.InstallmentParams{
		AccountID:        accountID,
		Description:      req.Description,
		TotalAmount:      req.TotalAmount,
		InstallmentCount: req.InstallmentCount,
		PurchaseDate:     purchaseDate,
		CategoryID:       req.CategoryID,
		PurchaseKey:      key,
	})
	if err != nil {
		respondError(w, r, err, "create installment purchase")
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *InstallmentHandler) HandleGetInstallment(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inst, err := h.installments.Get(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "get installment")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (h *InstallmentHandler) HandleCancelInstallment(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	inst, err := h.installments.Cancel(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "cancel installment")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}
