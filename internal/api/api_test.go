package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-dx/referral-portal/internal/audit"
	"github.com/clarity-dx/referral-portal/internal/auth"
	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/crm"
	"github.com/clarity-dx/referral-portal/internal/docview"
	"github.com/clarity-dx/referral-portal/internal/model"
	"github.com/clarity-dx/referral-portal/internal/portal"
	"github.com/clarity-dx/referral-portal/internal/resilience"
	"github.com/clarity-dx/referral-portal/internal/store"
)

type stubPipeline struct {
	extracted *model.ExtractedData
	mapping   *model.MappingData
	err       error
}

func (s *stubPipeline) Run(context.Context, string) (*model.ExtractedData, *model.MappingData, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.extracted, s.mapping, nil
}

type stubLocator struct {
	providers []model.Provider
}

func (s *stubLocator) Nearest(_ context.Context, _, _ float64, _ string, limit int) ([]model.Provider, error) {
	if len(s.providers) > limit {
		return s.providers[:limit], nil
	}
	return s.providers, nil
}

type testServer struct {
	srv      *httptest.Server
	token    string
	paths    config.PathsConfig
	pipeline *stubPipeline
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	paths := config.PathsConfig{
		OrdersDir:  filepath.Join(root, "orders"),
		ResultsDir: filepath.Join(root, "results"),
		OCRDir:     filepath.Join(root, "ocr"),
		CRMDir:     filepath.Join(root, "crm_ready"),
	}
	require.NoError(t, os.MkdirAll(paths.OrdersDir, 0o755))

	records, err := store.NewFileStore(paths.ResultsDir)
	require.NoError(t, err)
	writer, err := crm.NewWriter(paths.CRMDir)
	require.NoError(t, err)

	lat, lon := 32.7767, -96.797
	pipeline := &stubPipeline{
		extracted: &model.ExtractedData{
			PatientInfo: map[string]model.FieldValue{
				"patient_name": {Value: "Jane Roe"},
			},
			Procedures: []map[string]model.FieldValue{
				{"cpt": {Value: "73721"}},
			},
		},
		mapping: &model.MappingData{GeocodeData: &model.GeocodeData{
			Latitude: &lat, Longitude: &lon,
		}},
	}
	locator := &stubLocator{providers: []model.Provider{
		{PrimaryKey: "P1", BillingName: "Downtown Imaging"},
	}}

	retry := resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: 1, MaxBackoff: 1, Multiplier: 1}
	svc := portal.NewService(records, pipeline, locator, writer, nil, audit.NopLog{},
		paths, config.PortalConfig{}, retry)

	roster := []config.UserConfig{{
		ID: "1", Email: "reviewer@clarity-dx.example", Name: "Reviewer", Role: "user",
		Salt: "s1", PasswordSHA256: auth.HashPassword("s1", "review123"),
	}}
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	server := NewServer(svc, docview.NewService(paths), auth.NewStaticProvider(roster), issuer)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	token, err := issuer.Issue(&auth.User{ID: "1", Email: "reviewer@clarity-dx.example"})
	require.NoError(t, err)

	return &testServer{srv: srv, token: token, paths: paths, pipeline: pipeline}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) seedFolder(t *testing.T, orderID string, files map[string][]byte) {
	t.Helper()
	folder := filepath.Join(ts.paths.OrdersDir, orderID)
	require.NoError(t, os.MkdirAll(folder, 0o755))
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(folder, name), data, 0o644))
	}
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	t.Run("Success", func(t *testing.T) {
		resp, err := http.Post(ts.srv.URL+"/api/login", "application/json",
			bytes.NewReader([]byte(`{"email":"reviewer@clarity-dx.example","password":"review123"}`)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[map[string]any](t, resp)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("BadPassword", func(t *testing.T) {
		resp, err := http.Post(ts.srv.URL+"/api/login", "application/json",
			bytes.NewReader([]byte(`{"email":"reviewer@clarity-dx.example","password":"wrong"}`)))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestOrdersRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetOrderPendingStub(t *testing.T) {
	ts := newTestServer(t)
	ts.seedFolder(t, "ORD-1", nil)

	resp := ts.do(t, http.MethodGet, "/api/orders/ORD-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	order := decode[map[string]any](t, resp)
	assert.Equal(t, "Pending", order["status"])
}

func TestGetOrderMissing(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/orders/ORD-404", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedFolder(t, "ORD-2", map[string][]byte{"referral.pdf": []byte("%PDF")})

	t.Run("MissingFolder404", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-404/process", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Process200", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-2/process", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		order := decode[map[string]any](t, resp)
		assert.Equal(t, "Processed", order["status"])
	})

	t.Run("NoValidDocuments400", func(t *testing.T) {
		ts.pipeline.err = portal.Validationf("no valid documents found for order ORD-2")
		defer func() { ts.pipeline.err = nil }()

		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-2/process", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUpdateApproveProvidersPackage(t *testing.T) {
	ts := newTestServer(t)
	ts.seedFolder(t, "ORD-3", map[string][]byte{"referral.pdf": []byte("%PDF")})
	resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("UpdateStampsEditor", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/update", map[string]any{
			"extracted_data": map[string]any{
				"patient_info": map[string]any{
					"patient_name": map[string]any{"value": "Janet Roe"},
				},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		order := decode[map[string]any](t, resp)
		assert.Equal(t, "reviewer@clarity-dx.example", order["edited_by"])
	})

	t.Run("UpdateMissingRecord404", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-404/update", map[string]any{
			"extracted_data": map[string]any{},
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Providers", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/orders/ORD-3/providers", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		mapping := decode[map[string]map[string]any](t, resp)
		require.Contains(t, mapping, "73721")
		assert.Equal(t, "success", mapping["73721"]["status"])
	})

	t.Run("SelectProviderMissingID400", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/select-provider", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("SelectProvider", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/select-provider", map[string]any{
			"provider_id": "P1",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Approve", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/approve", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		order := decode[map[string]any](t, resp)
		assert.Equal(t, "Approved", order["status"])
	})

	t.Run("PackageForCRM", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/orders/ORD-3/package-for-crm", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode[map[string]map[string]any](t, resp)
		assert.Equal(t, "ReadyForCRM", body["order"]["status"])
		assert.NotEmpty(t, body["export"]["export_id"])

		_, err := os.Stat(filepath.Join(ts.paths.CRMDir, "ORD-3_crm.json"))
		assert.NoError(t, err)
	})

	t.Run("List", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/orders", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		summaries := decode[[]map[string]any](t, resp)
		require.NotEmpty(t, summaries)
		assert.Equal(t, "ORD-3", summaries[0]["order_id"])
	})
}

func TestProvidersNoLocationData(t *testing.T) {
	ts := newTestServer(t)
	ts.pipeline.mapping = nil
	ts.seedFolder(t, "ORD-4", map[string][]byte{"referral.pdf": []byte("%PDF")})
	resp := ts.do(t, http.MethodPost, "/api/orders/ORD-4/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/orders/ORD-4/providers", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocuments(t *testing.T) {
	ts := newTestServer(t)
	ts.seedFolder(t, "ORD-5", map[string][]byte{"referral.pdf": []byte("%PDF-1.4 body")})

	t.Run("Listing", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/orders/ORD-5/documents", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		docs := decode[[]map[string]any](t, resp)
		require.Len(t, docs, 1)
		assert.Equal(t, "referral.pdf", docs[0]["name"])
	})

	t.Run("Bytes", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/orders/ORD-5/documents/referral.pdf", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	})

	t.Run("Missing404", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/orders/ORD-5/documents/absent.pdf", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
