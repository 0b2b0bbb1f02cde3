package http

import (
	"net/http"
	"strings"

	"finledger/internal/domain/account"
	"finledger/internal/domain/ledger"
	"finledger/internal/shared/money"
)

type AccountHandler struct {
	accounts *ledger.AccountService
}

func NewAccountHandler(accounts *ledger.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type CreateAccountRequest struct {
	Name                 string      `json:"name"`
	Type                 string      `json:"type"`
	InitialBalance       money.Money `json:"initialBalance"`
	IsDefault            bool        `json:"isDefault"`
	AllowNegativeBalance bool        `json:"allowNegativeBalance"`
	Description          string      `json:"description"`
	Color                string      `json:"color"`
}

type UpdateAccountRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	IsActive    *bool   `json:"isActive"`
}

type AdjustBalanceRequest struct {
	Balance money.Money `json:"balance"`
	Reason  string      `json:"reason"`
}

type NegativeBalanceRequest struct {
	Allow bool `json:"allow"`
}

// HandleListAccounts lists the company's accounts, optionally filtered by
// ?type= and ?active=.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	var f account.Filter
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		typ := account.Type(strings.ToUpper(t))
		if !account.IsValidType(typ) {
			writeError(w, http.StatusBadRequest, account.ErrInvalidAccountType.Error())
			return
		}
		f.Type = &typ
	}
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.IsActive = active

	accounts, err := h.accounts.List(r.Context(), rc, f)
	if err != nil {
		respondError(w, r, err, "list accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.accounts.Create(r.Context(), rc, account.CreateParams{
		Name:                 req.Name,
		Type:                 account.Type(strings.ToUpper(strings.TrimSpace(req.Type))),
		InitialBalance:       req.InitialBalance,
		IsDefault:            req.IsDefault,
		AllowNegativeBalance: req.AllowNegativeBalance,
		Description:          req.Description,
		Color:                req.Color,
	})
	if err != nil {
		respondError(w, r, err, "create account")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	a, err := h.accounts.Get(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "get account")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleGetDefaultAccount returns the company's default account used for
// quick entry.
func (h *AccountHandler) HandleGetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}

	a, err := h.accounts.GetDefault(r.Context(), rc)
	if err != nil {
		respondError(w, r, err, "get default account")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.accounts.Update(r.Context(), rc, id, account.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondError(w, r, err, "update account")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.accounts.Delete(r.Context(), rc, id); err != nil {
		respondError(w, r, err, "delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) HandleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req AdjustBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	adj, err := h.accounts.AdjustBalance(r.Context(), rc, id, req.Balance, req.Reason)
	if err != nil {
		respondError(w, r, err, "adjust balance")
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (h *AccountHandler) HandleSetDefault(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	a, err := h.accounts.SetDefault(r.Context(), rc, id)
	if err != nil {
		respondError(w, r, err, "set default account")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) HandleNegativeBalance(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req NegativeBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.accounts.ToggleNegativeBalance(r.Context(), rc, id, req.Allow)
	if err != nil {
		respondError(w, r, err, "update negative balance policy")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleReconcile reports the drift between the stored balance and the one
// derived from transactions. Healing is left to the admin CLI.
func (h *AccountHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.accounts.Reconcile(r.Context(), rc, id, false)
	if err != nil {
		respondError(w, r, err, "reconcile account")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
