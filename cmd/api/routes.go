package main

import (
	"net/http"

	"github.com/rs/zerolog"

	"finledger/internal/shared/config"
	"finledger/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health checks
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", deps.HealthHandler.HandleReady)

	// Every /api route needs the caller's identity headers.
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.Identity(h))
	}

	// Accounts
	accounts := deps.AccountHandler
	api("GET /api/accounts", accounts.HandleListAccounts)
	api("POST /api/accounts", accounts.HandleCreateAccount)
	api("GET /api/accounts/default", accounts.HandleGetDefaultAccount)
	api("GET /api/accounts/{id}", accounts.HandleGetAccount)
	api("PUT /api/accounts/{id}", accounts.HandleUpdateAccount)
	api("DELETE /api/accounts/{id}", accounts.HandleDeleteAccount)
	api("POST /api/accounts/{id}/adjust-balance", accounts.HandleAdjustBalance)
	api("POST /api/accounts/{id}/default", accounts.HandleSetDefault)
	api("POST /api/accounts/{id}/negative-balance", accounts.HandleNegativeBalance)
	api("GET /api/accounts/{id}/reconcile", accounts.HandleReconcile)

	// Transactions
	transactions := deps.TransactionHandler
	api("GET /api/transactions", transactions.HandleListTransactions)
	api("POST /api/transactions", transactions.HandleCreateTransaction)
	api("GET /api/transactions/summary", transactions.HandleSummary)
	api("GET /api/transactions/{id}", transactions.HandleGetTransaction)
	api("PUT /api/transactions/{id}", transactions.HandleUpdateTransaction)
	api("DELETE /api/transactions/{id}", transactions.HandleDeleteTransaction)
	api("PATCH /api/transactions/{id}/status", transactions.HandleUpdateStatus)

	// Credit cards
	cards := deps.CardHandler
	api("GET /api/cards/{accountId}/config", cards.HandleGetConfig)
	api("POST /api/cards/{accountId}/config", cards.HandleCreateConfig)
	api("PUT /api/cards/{accountId}/config", cards.HandleUpdateConfig)
	api("DELETE /api/cards/{accountId}/config", cards.HandleDeleteConfig)
	api("GET /api/cards/{accountId}/limit", cards.HandleGetLimit)

	// Invoices and payments
	invoices := deps.InvoiceHandler
	api("GET /api/cards/{accountId}/invoices", invoices.HandleListInvoices)
	api("POST /api/cards/{accountId}/invoices", invoices.HandleGenerateInvoice)
	api("GET /api/cards/{accountId}/invoices/current", invoices.HandleCurrentInvoice)
	api("GET /api/invoices/{id}", invoices.HandleGetInvoice)
	api("POST /api/invoices/{id}/close", invoices.HandleCloseInvoice)
	api("GET /api/invoices/{id}/transactions", invoices.HandleInvoiceTransactions)
	api("POST /api/invoices/{id}/pay", invoices.HandlePayInvoice)
	api("GET /api/invoices/{id}/payments", invoices.HandlePaymentHistory)

	// Installments
	installments := deps.InstallmentHandler
	api("GET /api/cards/{accountId}/installments", installments.HandleListInstallments)
	api("POST /api/cards/{accountId}/installments", installments.HandleCreateInstallment)
	api("GET /api/installments/{id}", installments.HandleGetInstallment)
	api("POST /api/installments/{id}/cancel", installments.HandleCancelInstallment)

	// Tracing must sit directly on the mux to see the matched pattern.
	var handler http.Handler = middleware.Tracing(mux)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.CORS(cfg.Server.AllowedHosts)(handler)
	handler = middleware.Logging(log)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(log)(handler)

	if cfg.TLS.Enabled {
		log.Info().Msg("TLS enabled; HSTS sent on secure requests")
	}

	return handler
}
