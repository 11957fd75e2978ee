package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/passport/internal/actions"
	"github.com/mesh-intelligence/passport/internal/compliance"
	"github.com/mesh-intelligence/passport/internal/flows"
	"github.com/mesh-intelligence/passport/internal/memory"
	"github.com/mesh-intelligence/passport/pkg/types"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type fixture struct {
	router *gin.Engine
	svc    *compliance.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendMemory}))
	t.Cleanup(func() { _ = store.Detach() })

	reg := prometheus.NewRegistry()
	svc := compliance.NewService(store, zap.NewNop(), compliance.WithMetrics(compliance.NewMetrics(reg)))
	acts := actions.New(store, nil, flows.Rules{}, zap.NewNop(), actions.Config{PublicBaseURL: "https://dpp.example.com"})
	router := NewRouter(RouterConfig{Service: svc, Actions: acts, Registry: reg})
	return fixture{router: router, svc: svc}
}

func (f fixture) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(RoleHeader, role)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func record(product, name, parent string) types.TraceRecord {
	return types.TraceRecord{
		ProductID:     product,
		MaterialName:  name,
		MaterialType:  types.MaterialRaw,
		Quantity:      1,
		QuantityUnit:  types.UnitKilogram,
		OriginCountry: "SE",
		ParentTraceID: parent,
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `passport_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestTraceLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/traces", "company", record("bike", "Frame", ""))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	frame := decode[types.TraceRecord](t, w)
	assert.Equal(t, 1, frame.Tier)
	assert.Equal(t, types.StatusPending, frame.ComplianceStatus)

	w = f.do(t, http.MethodPost, "/api/traces", "company", record("bike", "Steel tube", frame.TraceID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tube := decode[types.TraceRecord](t, w)
	assert.Equal(t, 2, tube.Tier)

	w = f.do(t, http.MethodGet, "/api/products/bike/traces", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.TraceRecord](t, w), 2)

	w = f.do(t, http.MethodGet, "/api/products/bike/tree?depth=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[treeResponse](t, w)
	require.Len(t, tree.Roots, 1)
	require.Len(t, tree.Roots[0].Children, 1)
	assert.Equal(t, "Steel tube", tree.Roots[0].Children[0].MaterialName)

	w = f.do(t, http.MethodGet, "/api/products/bike/tree?depth=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[treeResponse](t, w).Roots[0].Children, "collapsed root")

	w = f.do(t, http.MethodGet, "/api/products/bike/tree?depth=0&expand="+frame.TraceID, "", nil)
	assert.Len(t, decode[treeResponse](t, w).Roots[0].Children, 1)

	w = f.do(t, http.MethodGet, "/api/products/bike/tree?format=text", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Frame")
	assert.Contains(t, w.Body.String(), "Steel tube")

	w = f.do(t, http.MethodGet, "/api/products/bike/tree?depth=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/traces/"+frame.TraceID, "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[ErrorEnvelope](t, w).Error.Code)

	w = f.do(t, http.MethodDelete, "/api/traces/"+frame.TraceID+"?cascade=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[map[string][]string](t, w)["deleted"]
	assert.Equal(t, []string{tube.TraceID, frame.TraceID}, deleted)

	w = f.do(t, http.MethodGet, "/api/traces/"+frame.TraceID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		role   string
		body   any
		status int
		code   string
	}{
		{"dangling parent", "company", record("bike", "Spoke", "missing"), http.StatusBadRequest, "invalid_parent_trace_id"},
		{"bad country", "company", func() types.TraceRecord { r := record("bike", "Rim", ""); r.OriginCountry = "sweden"; return r }(), http.StatusBadRequest, "invalid_origin_country"},
		{"supplier may not verify", "supplier", func() types.TraceRecord { r := record("bike", "Rim", ""); r.ComplianceStatus = types.StatusVerified; return r }(), http.StatusForbidden, "forbidden"},
		{"unknown role", "janitor", record("bike", "Rim", ""), http.StatusBadRequest, "invalid_role"},
		{"malformed body", "company", "not an object", http.StatusBadRequest, "invalid_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/traces", tt.role, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorEnvelope](t, w).Error.Code)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.Create(context.Background(), types.RoleCompany, record("bike", "Frame", ""))
	require.NoError(t, err)
	path := "/api/traces/" + rec.TraceID + "/status"

	w := f.do(t, http.MethodPost, path, "company", map[string]string{"status": "Verified"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, path, "verifier", map[string]string{"status": "verified", "note": "audit ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.StatusVerified, decode[types.TraceRecord](t, w).ComplianceStatus)

	w = f.do(t, http.MethodPost, path, "admin", map[string]string{"status": "Rejected"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorEnvelope](t, w).Error.Code)

	w = f.do(t, http.MethodPost, path, "admin", map[string]string{"status": "Archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/traces/"+rec.TraceID+"/history", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]types.StatusChange](t, w)
	require.Len(t, history, 1)
	assert.Equal(t, "audit ok", history[0].Note)
}

func TestSuppliers(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/suppliers", "admin", types.Supplier{SupplierID: "s1", Name: "Acme Metals", Country: "DE"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/suppliers", "admin", types.Supplier{SupplierID: "s1", Name: "Acme Metals"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/suppliers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Supplier](t, w), 1)
}

func TestPublicView(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), types.RoleAdmin, func() types.TraceRecord {
		r := record("bike", "Frame", "")
		r.ComplianceStatus = types.StatusVerified
		r.IsRecycled = true
		return r
	}())
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/public/products/bike", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode[types.PublicDppData](t, w)
	assert.Equal(t, 1, data.MaterialCount)
	assert.Equal(t, 1.0, data.VerifiedShare)
	assert.Equal(t, []string{"SE"}, data.Origins)

	w = f.do(t, http.MethodGet, "/public/products/bike/passport.png", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err = png.Decode(w.Body)
	assert.NoError(t, err)

	w = f.do(t, http.MethodGet, "/public/products/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), types.RoleCompany, record("bike", "Frame", ""))
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/actions/qr-code", "company", actions.QRInput{ProductID: "bike", VersionID: "v1"})
	require.Equal(t, http.StatusOK, w.Code)
	qr := decode[actions.Result[types.QRCodeLog]](t, w)
	require.True(t, qr.Success, qr.Error)
	assert.Equal(t, "https://dpp.example.com/public/products/bike?version=v1", qr.Data.URL)

	w = f.do(t, http.MethodGet, "/api/products/bike/qrcodes", "", nil)
	assert.Len(t, decode[[]types.QRCodeLog](t, w), 1)

	w = f.do(t, http.MethodPost, "/api/actions/qr-code", "company", actions.QRInput{ProductID: "ghost", VersionID: "v1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[actions.Result[types.QRCodeLog]](t, w).Success)

	w = f.do(t, http.MethodPost, "/api/actions/test-email", "admin", actions.EmailInput{Email: "ops@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[actions.Result[struct{}]](t, w).Success)

	w = f.do(t, http.MethodPost, "/api/products/bike/compliance-check", "company", nil)
	require.Equal(t, http.StatusOK, w.Code)
	check := decode[actions.Result[flows.CheckOutput]](t, w)
	require.True(t, check.Success, check.Error)
	assert.Equal(t, "rules", check.Data.Source)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get: %w", types.ErrNotFound), http.StatusNotFound},
		{&types.ValidationError{Field: "tier", Err: types.ErrTierMismatch}, http.StatusBadRequest},
		{fmt.Errorf("build tree: %w", types.ErrCycle), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	router := newFixture(t).router
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, router, zap.NewNop()) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.TrimSpace(string(body)) == "ok"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout):
		t.Fatal("server did not stop")
	}
	http.DefaultClient.CloseIdleConnections()
}
