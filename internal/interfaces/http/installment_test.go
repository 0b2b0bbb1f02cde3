package http

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/creditcard"
)

func TestInstallmentEndpoints(t *testing.T) {
	f := newCardFixture(t)
	body := `{"description":"Laptop","totalAmount":"1200.00","installmentCount":3,"purchaseDate":"2024-03-10"}`
	header := map[string]string{IdempotencyKeyHeader: "laptop-2024-03"}

	rr := serve(t, f.installments.HandleCreateInstallment, call{method: http.MethodPost, path: f.cardPath(), body: body, header: header, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inst := decode[*creditcard.Installment](t, rr)
	assert.Equal(t, "laptop-2024-03", inst.PurchaseKey)
	assert.Equal(t, "400.00", inst.InstallmentAmount.String())
	require.Len(t, inst.Shares, 3)
	assert.Equal(t, "1200.00", f.limit(t).UsedLimit.String())

	// a retried request returns the original purchase
	rr = serve(t, f.installments.HandleCreateInstallment, call{method: http.MethodPost, path: f.cardPath(), body: body, header: header, rc: as(owner)})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, inst.ID, decode[*creditcard.Installment](t, rr).ID)
	assert.Equal(t, "1200.00", f.limit(t).UsedLimit.String())

	rr = serve(t, f.installments.HandleListInstallments, call{method: http.MethodGet, path: f.cardPath(), rc: as(viewer)})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*creditcard.Installment](t, rr), 1)

	rr = serve(t, f.installments.HandleGetInstallment, call{method: http.MethodGet, path: idPath(inst.ID), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, f.installments.HandleCancelInstallment, call{method: http.MethodPost, path: idPath(inst.ID), rc: as(viewer)})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, f.installments.HandleCancelInstallment, call{method: http.MethodPost, path: idPath(inst.ID), rc: as(owner)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, creditcard.InstallmentCanceled, decode[*creditcard.Installment](t, rr).Status)
	assert.True(t, f.limit(t).UsedLimit.IsZero())

	rr = serve(t, f.installments.HandleCancelInstallment, call{method: http.MethodPost, path: idPath(inst.ID), rc: as(owner)})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleCreateInstallment_Errors(t *testing.T) {
	f := newCardFixture(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"single installment", `{"description":"TV","totalAmount":"100","installmentCount":1,"purchaseDate":"2024-03-10"}`, http.StatusBadRequest},
		{"missing date", `{"description":"TV","totalAmount":"100","installmentCount":2}`, http.StatusBadRequest},
		{"zero total", `{"description":"TV","totalAmount":"0","installmentCount":2,"purchaseDate":"2024-03-10"}`, http.StatusBadRequest},
		{"over limit", `{"description":"Car","totalAmount":"9000","installmentCount":10,"purchaseDate":"2024-03-10"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, f.installments.HandleCreateInstallment, call{method: http.MethodPost, path: f.cardPath(), body: tt.body, rc: as(owner)})
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}

	rr := serve(t, f.installments.HandleCreateInstallment, call{
		method: http.MethodPost,
		path:   map[string]string{"accountId": strconv.FormatInt(f.bank.ID, 10)},
		body:   `{"description":"TV","totalAmount":"100","installmentCount":2,"purchaseDate":"2024-03-10"}`,
		rc:     as(owner),
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
