package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	authhandler "github.com/jwalitptl/pathology-report-api/internal/handler/auth"
	"github.com/jwalitptl/pathology-report-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/pathology-report-api/internal/handler/patient"
	"github.com/jwalitptl/pathology-report-api/internal/handler/prometheus"
	"github.com/jwalitptl/pathology-report-api/internal/handler/report"
	"github.com/jwalitptl/pathology-report-api/internal/middleware"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
	"github.com/jwalitptl/pathology-report-api/internal/service/artifact"
	authsvc "github.com/jwalitptl/pathology-report-api/internal/service/auth"
	"github.com/jwalitptl/pathology-report-api/internal/service/signing"
	"github.com/jwalitptl/pathology-report-api/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSigner struct {
	resp *model.SignResponse
	err  error
	ids  []int64
}

func (s *stubSigner) Sign(ctx context.Context, id int64) (*model.SignResponse, error) {
	s.ids = append(s.ids, id)
	return s.resp, s.err
}

type stubPatients struct {
	patient *model.Patient
	updated *model.UpdatePatientRequest
}

func (s *stubPatients) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	if s.patient == nil || s.patient.ID != id {
		return nil, repository.ErrNotFound
	}
	return s.patient, nil
}

func (s *stubPatients) UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	s.updated = req
	return s.GetPatient(ctx, id)
}

type stubLogin struct{}

func (stubLogin) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	if req.Username == "admin" && req.Password == "secret123" {
		return &model.TokenResponse{Token: "tok", Role: model.RoleAdmin}, nil
	}
	return nil, authsvc.ErrInvalidCredentials
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(ctx context.Context) error { return p.err }

type testServer struct {
	engine   *gin.Engine
	signer   *stubSigner
	patients *stubPatients
	store    artifact.Store
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	jwt := auth.NewJWTService("test-secret", time.Hour)
	token, err := jwt.GenerateToken(1, "viewer", model.RoleViewer)
	require.NoError(t, err)

	store := artifact.NewFileStore(afero.NewMemMapFs(), config.ReportsConfig{Dir: "/reports", Extension: ".pdf"})
	signer := &stubSigner{resp: &model.SignResponse{PDFPath: "/reports/A-100.pdf"}}
	patients := &stubPatients{patient: &model.Patient{ID: 7, AttentionCode: "A-100", LastName: "Perez", FirstName: "Juan"}}

	metrics := prometheus.New(prom.NewRegistry())
	r := NewRouter(
		middleware.NewAuthMiddleware(jwt),
		authhandler.NewHandler(stubLogin{}),
		patienthandler.NewHandler(patients),
		report.NewHandler(signer, store, ".pdf"),
		health.NewHandler(stubPinger{}, metrics.Handler()),
		RouterConfig{
			RateLimit:     middleware.RateLimiterConfig{Rate: rate.Inf, Burst: 1},
			CORSConfig:    middleware.DefaultCORSConfig([]string{"*"}),
			ReportsPrefix: "/reports",
			Metrics:       metrics,
			Logger:        zerolog.Nop(),
		},
	)
	r.Setup()

	return &testServer{
		engine:   r.Engine(),
		signer:   signer,
		patients: patients,
		store:    store,
		token:    token,
	}
}

func (s *testServer) do(method, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		buf, _ := json.Marshal(body)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestSignReport_Success(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/v1/reports/sign/7", nil, true)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "success", env.Status)
	assert.JSONEq(t, `{"pdfPath":"/reports/A-100.pdf"}`, string(env.Data))
	assert.Equal(t, []int64{7}, s.signer.ids)
	assert.Equal(t, APIVersion, w.Header().Get("X-API-Version"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
}

func TestSignReport_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", signing.ErrNotFound, http.StatusNotFound},
		{"in progress", signing.ErrSignInProgress, http.StatusConflict},
		{"render failure", &signing.StageError{Stage: signing.StageRender, Err: signing.ErrRenderCrashed}, http.StatusInternalServerError},
		{"storage failure", &signing.StageError{Stage: signing.StageStore, Err: signing.ErrWrite}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.signer.resp = nil
			s.signer.err = tt.err

			w := s.do(http.MethodPut, "/api/v1/reports/sign/7", nil, true)

			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.Equal(t, "error", env.Status)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestSignReport_InvalidID(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/v1/reports/sign/abc", nil, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.signer.ids)
}

func TestProtectedRoutes_Authentication(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/api/v1/reports/sign/7", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/reports/sign/7", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients/7", nil)
	req.Header.Set("Authorization", "Token "+s.token)
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, s.signer.ids)
}

func TestServeArtifact(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/reports/A-100.pdf", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := s.store.Save(context.Background(), "A-100", []byte("%PDF-1.4 report"))
	require.NoError(t, err)

	w = s.do(http.MethodGet, "/reports/A-100.pdf", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 report", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "must-revalidate")

	w = s.do(http.MethodGet, "/reports/A-100.txt", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatientRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/patients/7", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"attentionCode":"A-100"`)

	w = s.do(http.MethodGet, "/api/v1/patients/8", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	diagnosis := "Benign"
	w = s.do(http.MethodPatch, "/api/v1/patients/7", map[string]interface{}{"diagnosis": diagnosis}, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.patients.updated)
	require.NotNil(t, s.patients.updated.Diagnosis)
	assert.Equal(t, diagnosis, *s.patients.updated.Diagnosis)
}

func TestPatientUpdate_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPatch, "/api/v1/patients/7", map[string]interface{}{"photo1": "http://example.com/x.png"}, true)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, "validation failed", env.Message)
	assert.Contains(t, string(env.Data), `"field":"photo1"`)
	assert.Nil(t, s.patients.updated)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "secret123"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"token":"tok","role":"admin"}`, string(decode(t, w).Data))

	w = s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "wrong-pass"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		w := s.do(http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	s.do(http.MethodGet, "/api/v1/health/live", nil, false)
	w := s.do(http.MethodGet, "/api/v1/health/metrics", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`http_requests_total{method="GET",path="/api/v1/health/live",status="%d"}`, http.StatusOK))
}

func TestHealthReady_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	health.NewHandler(stubPinger{err: assert.AnError}, nil).RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSignReport_UnversionedPath(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPut, "/reports/sign/7", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/reports/sign/7", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pdfPath":"/reports/A-100.pdf"}`, string(decode(t, w).Data))
	assert.Equal(t, []int64{7}, s.signer.ids)

	_, err := s.store.Save(context.Background(), "A-100", []byte("%PDF-1.4 report"))
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/reports/A-100.pdf", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
}
