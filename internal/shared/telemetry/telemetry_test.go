package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestInitExposesLedgerMetrics(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "finledger-test", Environment: "test"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, shutdown(context.Background())) })

	counter, err := otel.Meter("finledger/ledger").Int64Counter("ledger.transactions.applied")
	require.NoError(t, err)
	counter.Add(context.Background(), 2, metric.WithAttributes(attribute.String("type", "EXPENSE")))

	rr := httptest.NewRecorder()
	metricsServer("0").Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "ledger_transactions_applied"), "metrics output:\n%s", body)
	assert.Contains(t, body, `service_name="finledger-test"`)
}

func TestMetricsServer(t *testing.T) {
	srv := metricsServer("9191")
	assert.Equal(t, ":9191", srv.Addr)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "only /metrics is served")
}
