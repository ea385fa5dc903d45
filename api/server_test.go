package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/opsorch/opsorch-multiquery/config"
	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/environment"
	"github.com/opsorch/opsorch-multiquery/executor"
	"github.com/opsorch/opsorch-multiquery/schema"
)

func testEnvironments() []schema.Environment {
	return []schema.Environment{
		{ID: "fra", Name: "Frankfurt", Region: "eu-frankfurt-1", IsActive: true, IsDefault: true},
		{ID: "iad", Name: "Ashburn", Region: "us-ashburn-1", IsActive: true},
		{ID: "phx", Name: "Phoenix", Region: "us-phoenix-1", IsActive: true},
	}
}

// newTestServer wires a real dispatcher over a static executor.
func newTestServer(t *testing.T, exec executor.Executor) *Server {
	t.Helper()
	reg, err := environment.NewRegistry(testEnvironments())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := zaptest.NewLogger(t)
	d := dispatch.New(reg, exec, dispatch.Defaults{PerCallTimeout: time.Second}, dispatch.WithLogger(logger))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(d.PrometheusCollectors()...)

	srv, err := NewServer(&config.Config{CORSOrigin: "*"}, d, reg, logger, promReg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func staticExecutor() executor.StaticExecutor {
	return executor.StaticExecutor{Environments: map[string]executor.StaticEnvironment{
		"fra": {Fields: []string{"Event Name"}, Rows: []schema.Row{{"Event Name": "Login"}, {"Event Name": "Logout"}}},
		"iad": {Error: "auth_failure"},
		"phx": {Fields: []string{"Event Name"}, Rows: []schema.Row{{"Event Name": "Login"}}},
	}}
}

func postJSON(t *testing.T, srv http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthAndCors(t *testing.T) {
	srv := &Server{corsOrigin: "*"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if status := w.Result().StatusCode; status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := &Server{corsOrigin: "*"}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "corr-1" {
		t.Fatalf("expected request id corr-1, got %q", got)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	srv := &Server{bearerToken: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if status := w.Result().StatusCode; status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestBearerAuthSuccess(t *testing.T) {
	srv := &Server{bearerToken: "secret"}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if status := w.Result().StatusCode; status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestListenAndServeRequiresTLSPair(t *testing.T) {
	srv := &Server{tlsCertFile: "/tmp/cert"}

	if err := srv.ListenAndServe(context.Background(), ":0"); err == nil || !strings.Contains(err.Error(), "TLS requires both cert and key") {
		t.Fatalf("expected TLS pair error, got %v", err)
	}
}

func TestListenAndServeUsesTLSWhenConfigured(t *testing.T) {
	calledTLS := false
	calledPlain := false
	srv := &Server{
		tlsCertFile: "cert.pem",
		tlsKeyFile:  "key.pem",
		serve: func(*http.Server) error {
			calledPlain = true
			return nil
		},
		serveTLS: func(_ *http.Server, cert, key string) error {
			calledTLS = true
			if cert != "cert.pem" || key != "key.pem" {
				t.Errorf("expected cert/key to pass through, got %s/%s", cert, key)
			}
			return nil
		},
	}

	if err := srv.ListenAndServe(context.Background(), ":443"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calledPlain {
		t.Fatalf("expected TLS serve path to be used")
	}
	if !calledTLS {
		t.Fatalf("expected TLS serve path to be invoked")
	}
}

func TestListenAndServeStopsOnContextCancel(t *testing.T) {
	srv := &Server{corsOrigin: "*"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestNewServerTLSPairValidation(t *testing.T) {
	if srv, err := NewServer(&config.Config{TLSCertFile: "/tmp/cert"}, nil, nil, zaptest.NewLogger(t), nil); err == nil {
		t.Fatalf("expected TLS validation error, got server %+v", srv)
	}
}

func TestQueryMissingDispatcher(t *testing.T) {
	srv := &Server{}
	w := postJSON(t, srv, "/query", schema.QueryRequest{Query: "*"})

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 when dispatcher missing, got %d", w.Code)
	}
}

func TestQueryMerge(t *testing.T) {
	srv := newTestServer(t, staticExecutor())
	w := postJSON(t, srv, "/query", schema.QueryRequest{Query: "*", ContinueOnError: true})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var out schema.AggregatedResult
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Success || out.EnvironmentsQueried != 3 || len(out.PerEnvironment) != 3 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.PerEnvironment[1].ErrorKind != schema.ErrorAuthFailure {
		t.Fatalf("expected iad auth failure, got %+v", out.PerEnvironment[1])
	}
	var tags []string
	for _, row := range out.Rows {
		tags = append(tags, row.EnvironmentID)
	}
	if strings.Join(tags, ",") != "fra,fra,phx" {
		t.Fatalf("unexpected merged rows: %v", tags)
	}
}

func TestQueryRequestErrors(t *testing.T) {
	srv := newTestServer(t, staticExecutor())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown environment", schema.QueryRequest{TargetEnvironmentIDs: []string{"zzz"}}, http.StatusNotFound, "unknown_environment"},
		{"invalid mode", schema.QueryRequest{Mode: "fanout"}, http.StatusBadRequest, "invalid_mode"},
		{"single with many", schema.QueryRequest{Mode: schema.ModeSingle}, http.StatusBadRequest, "invalid_mode"},
		{"bad time range", schema.QueryRequest{TimeRange: schema.TimeRange{Relative: "forever"}}, http.StatusBadRequest, "bad_request"},
		{"unknown field", map[string]any{"query": "*", "tenant": "x"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, srv, "/query", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d body=%s", tt.status, w.Code, w.Body.String())
			}
			if body := decodeBody(t, w); body["code"] != tt.code {
				t.Fatalf("expected code %s, got %+v", tt.code, body)
			}
		})
	}
}

func TestListEnvironments(t *testing.T) {
	srv := newTestServer(t, staticExecutor())
	req := httptest.NewRequest(http.MethodGet, "/environments", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out environmentList
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Environments) != 3 || out.Default != "fra" {
		t.Fatalf("unexpected environments: %+v", out)
	}
}

func TestEnvironmentTest(t *testing.T) {
	srv := newTestServer(t, staticExecutor())

	req := httptest.NewRequest(http.MethodPost, "/environments/test", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var out schema.AggregatedResult
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Groups) != 3 || out.Groups["iad"].ErrorKind != schema.ErrorAuthFailure || !out.Groups["fra"].Success {
		t.Fatalf("unexpected probe result: %+v", out.Groups)
	}

	w = postJSON(t, srv, "/environments/test", probeBody{EnvironmentIDs: []string{"phx"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProvidersList(t *testing.T) {
	srv := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	var out map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(out["providers"], ",") != "plugin,static" {
		t.Fatalf("unexpected providers: %v", out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, staticExecutor())
	postJSON(t, srv, "/query", schema.QueryRequest{Query: "*", ContinueOnError: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `multiquery_dispatch_dispatches_total{mode="parallel",outcome="partial"} 1`) {
		t.Fatalf("expected dispatch counter in metrics output:\n%s", w.Body.String())
	}
}

func TestQueryViaPlugin(t *testing.T) {
	tmp := t.TempDir()
	pluginPath := filepath.Join(tmp, "loganmock")
	build := exec.Command("go", "build", "-o", pluginPath, "../plugins/loganmock")
	build.Env = append(os.Environ(), "GOCACHE="+filepath.Join(tmp, "gocache"), "GOMODCACHE="+filepath.Join(tmp, "gomodcache"), "CGO_ENABLED=0")
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build plugin: %v output=%s", err, string(out))
	}

	pe := executor.NewPluginExecutor(pluginPath, nil)
	defer pe.Close()
	srv := newTestServer(t, pe)

	w := postJSON(t, srv, "/query", schema.QueryRequest{
		Query:                "'Log Source' = 'OCI Audit Logs'",
		TargetEnvironmentIDs: []string{"fra", "iad"},
		Aggregate:            schema.AggregateGroup,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	var out schema.AggregatedResult
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Groups) != 2 || len(out.Groups["fra"].Rows) != 2 || out.Groups["iad"].Rows[0]["Environment"] != "iad" {
		t.Fatalf("unexpected plugin result: %+v", out.Groups)
	}
}
