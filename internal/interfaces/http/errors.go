package http

import (
	"errors"
	"net/http"

	"finledger/internal/domain/account"
	"finledger/internal/domain/creditcard"
	"finledger/internal/domain/tenant"
	"finledger/internal/domain/transaction"
)

// errorStatuses maps domain errors to HTTP statuses. The first match wins;
// anything unmatched is a 500.
var errorStatuses = []struct {
	err    error
	status int
}{
	{tenant.ErrMissingContext, http.StatusUnauthorized},
	{tenant.ErrAccessDenied, http.StatusForbidden},

	{account.ErrAccountNotFound, http.StatusNotFound},
	{account.ErrNoDefaultAccount, http.StatusNotFound},
	{transaction.ErrTransactionNotFound, http.StatusNotFound},
	{creditcard.ErrConfigNotFound, http.StatusNotFound},
	{creditcard.ErrInvoiceNotFound, http.StatusNotFound},
	{creditcard.ErrInstallmentNotFound, http.StatusNotFound},

	{account.ErrDuplicateAccountName, http.StatusConflict},
	{account.ErrHasTransactions, http.StatusConflict},
	{transaction.ErrInvalidStatusTransition, http.StatusConflict},
	{transaction.ErrTransactionCanceled, http.StatusConflict},
	{transaction.ErrManagedTransaction, http.StatusConflict},
	{creditcard.ErrConfigAlreadyExists, http.StatusConflict},
	{creditcard.ErrConfigInUse, http.StatusConflict},
	{creditcard.ErrInvoiceAlreadyExists, http.StatusConflict},
	{creditcard.ErrInvoiceNotOpen, http.StatusConflict},
	{creditcard.ErrInvoiceAlreadyPaid, http.StatusConflict},
	{creditcard.ErrInvalidInvoiceTransition, http.StatusConflict},
	{creditcard.ErrInvoiceHasPayments, http.StatusConflict},
	{creditcard.ErrInvoiceHasTransactions, http.StatusConflict},
	{creditcard.ErrInvoiceBalanceCarried, http.StatusConflict},
	{creditcard.ErrTransactionAlreadyLinked, http.StatusConflict},
	{creditcard.ErrInstallmentCanceled, http.StatusConflict},
	{creditcard.ErrInstallmentCompleted, http.StatusConflict},
	{creditcard.ErrDuplicatePurchaseKey, http.StatusConflict},

	{account.ErrAccountInactive, http.StatusUnprocessableEntity},
	{account.ErrNegativeBalanceNotAllowed, http.StatusUnprocessableEntity},
	{account.ErrNegativeBalancePresent, http.StatusUnprocessableEntity},
	{account.ErrCreditCardRequiresNegative, http.StatusUnprocessableEntity},
	{creditcard.ErrInsufficientCreditLimit, http.StatusUnprocessableEntity},
	{creditcard.ErrBelowMinimumPayment, http.StatusUnprocessableEntity},
	{creditcard.ErrAboveTotalAmount, http.StatusUnprocessableEntity},

	{account.ErrInvalidInput, http.StatusBadRequest},
	{account.ErrInvalidAccountType, http.StatusBadRequest},
	{transaction.ErrInvalidInput, http.StatusBadRequest},
	{transaction.ErrInvalidType, http.StatusBadRequest},
	{transaction.ErrInvalidStatus, http.StatusBadRequest},
	{transaction.ErrInvalidAmount, http.StatusBadRequest},
	{transaction.ErrInconsistentAccountsForType, http.StatusBadRequest},
	{transaction.ErrInvalidDateRange, http.StatusBadRequest},
	{transaction.ErrInvalidGroupBy, http.StatusBadRequest},
	{creditcard.ErrInvalidInput, http.StatusBadRequest},
	{creditcard.ErrNotCreditCard, http.StatusBadRequest},
	{creditcard.ErrTransactionNotLinked, http.StatusBadRequest},
	{creditcard.ErrTransactionNotOnCard, http.StatusBadRequest},
	{creditcard.ErrInvalidInstallmentCount, http.StatusBadRequest},
	{creditcard.ErrInvalidPaymentType, http.StatusBadRequest},
	{creditcard.ErrInvalidAmount, http.StatusBadRequest},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
