package http

import (
	"net/http"

	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/ledger"
	"finledger/internal/shared/money"
)

// CardHandler serves the credit card configuration and limit of a
// CREDIT_CARD account.
type CardHandler struct {
	cards  *ledger.CardService
	limits *ledger.LimitTracker
}

func NewCardHandler(cards *ledger.CardService, limits *ledger.LimitTracker) *CardHandler {
	return &CardHandler{cards: cards, limits: limits}
}

type CardConfigRequest struct {
	CreditLimit           money.Money `json:"creditLimit"`
	ClosingDay            int         `json:"closingDay"`
	DueDay                int         `json:"dueDay"`
	DueDaysAfterClosing   int         `json:"dueDaysAfterClosing"`
	InterestRate          money.Money `json:"interestRate"`
	LateFeePercent        money.Money `json:"lateFeePercent"`
	MinimumPaymentPercent money.Money `json:"minimumPaymentPercent"`
	AlertThresholdPercent money.Money `json:"alertThresholdPercent"`
	AlertEnabled          bool        `json:"alertEnabled"`
}

type UpdateCardConfigRequest struct {
	CreditLimit           *money.Money `json:"creditLimit"`
	ClosingDay            *int         `json:"closingDay"`
	DueDay                *int         `json:"dueDay"`
	DueDaysAfterClosing   *int         `json:"dueDaysAfterClosing"`
	InterestRate          *money.Money `json:"interestRate"`
	LateFeePercent        *money.Money `json:"lateFeePercent"`
	MinimumPaymentPercent *money.Money `json:"minimumPaymentPercent"`
	AlertThresholdPercent *money.Money `json:"alertThresholdPercent"`
	AlertEnabled          *bool        `json:"alertEnabled"`
}

func (h *CardHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	cfg, err := h.cards.GetConfig(r.Context(), rc, accountID)
	if err != nil {
		respondError(w, r, err, "get card configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *CardHandler) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	var req CardConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.cards.CreateConfig(r.Context(), rc, accountID, creditcard.ConfigParams{
		CreditLimit:           req.CreditLimit,
		ClosingDay:            req.ClosingDay,
		DueDay:                req.DueDay,
		DueDaysAfterClosing:   req.DueDaysAfterClosing,
		InterestRate:          req.InterestRate,
		LateFeePercent:        req.LateFeePercent,
		MinimumPaymentPercent: req.MinimumPaymentPercent,
		AlertThresholdPercent: req.AlertThresholdPercent,
		AlertEnabled:          req.AlertEnabled,
	})
	if err != nil {
		respondError(w, r, err, "create card configuration")
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (h *CardHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	var req UpdateCardConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg, err := h.cards.UpdateConfig(r.Context(), rc, accountID, creditcard.ConfigUpdateParams{
		CreditLimit:           req.CreditLimit,
		ClosingDay:            req.ClosingDay,
		DueDay:                req.DueDay,
		DueDaysAfterClosing:   req.DueDaysAfterClosing,
		InterestRate:          req.InterestRate,
		LateFeePercent:        req.LateFeePercent,
		MinimumPaymentPercent: req.MinimumPaymentPercent,
		AlertThresholdPercent: req.AlertThresholdPercent,
		AlertEnabled:          req.AlertEnabled,
	})
	if err != nil {
		respondError(w, r, err, "update card configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *CardHandler) HandleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	if err := h.cards.DeleteConfig(r.Context(), rc, accountID); err != nil {
		respondError(w, r, err, "delete card configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CardHandler) HandleGetLimit(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	status, err := h.limits.GetAvailableLimit(r.Context(), rc, accountID)
	if err != nil {
		respondError(w, r, err, "get card limit")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
