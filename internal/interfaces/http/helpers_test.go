package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"finledger/internal/domain/ledger"
	"finledger/internal/domain/tenant"
	"finledger/internal/infrastructure/memory"
	"finledger/internal/shared/middleware"
)

var (
	owner  = tenant.RequestContext{CompanyID: 1, UserID: 10, Role: tenant.RoleOwner}
	viewer = tenant.RequestContext{CompanyID: 1, UserID: 11, Role: tenant.RoleViewer}
)

func newTestEngine() *ledger.Engine {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	return ledger.New(ledger.Deps{
		UnitOfWork: memory.New(),
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	})
}

type call struct {
	method string
	target string
	body   any
	path   map[string]string
	rc     *tenant.RequestContext
	header map[string]string
}

// serve runs one request straight through handler, the way the router
// would after matching path values and identity.
func serve(t *testing.T, handler http.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			body.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&body).Encode(b))
		}
	}

	target := c.target
	if target == "" {
		target = "/"
	}
	req := httptest.NewRequest(c.method, target, &body)
	for k, v := range c.path {
		req.SetPathValue(k, v)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	if c.rc != nil {
		req = req.WithContext(middleware.WithRequestContext(context.Background(), *c.rc))
	}

	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func as(rc tenant.RequestContext) *tenant.RequestContext { return &rc }
