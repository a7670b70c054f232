package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"cohortflow/internal/access"
	"cohortflow/internal/auth"
	"cohortflow/internal/config"
	"cohortflow/internal/database"
	"cohortflow/internal/domain"
	"cohortflow/internal/portal"
	"cohortflow/internal/scoring"
	"cohortflow/internal/store"
)

// fakeCache 用内存 map 模拟认证用到的 Redis 命令。
type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	counter map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, counter: map[string]int64{}}
}

func (f *fakeCache) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter[key]++
	return redis.NewIntResult(f.counter[key], nil)
}

func (f *fakeCache) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCache) TTL(_ context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewDurationResult(time.Minute, nil)
	}
	return redis.NewDurationResult(-2, nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.counter[key]; ok {
			delete(f.counter, key)
			n++
		}
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStorage) PresignedDownloadURL(_ context.Context, objectKey string, _ time.Duration, _ string) (string, error) {
	return "https://files.example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type fakeQueue struct{}

func (fakeQueue) EnqueueExport(context.Context, portal.ExportJobRequest) (string, error) {
	return "job-42", nil
}

type testServer struct {
	router  *gin.Engine
	store   *store.Memory
	svc     *portal.Service
	issuer  *auth.Issuer
	storage *fakeStorage
}

func newTestIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	issuer, err := auth.NewIssuer(privatePEM, publicPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		API: config.APIConfig{MetricsToken: "scrape-secret"},
		Auth: config.AuthConfig{
			LoginRateLimitPerHour: 20,
			LoginLockThreshold:    3,
			LoginLockTTL:          time.Minute,
		},
		Upload: config.UploadConfig{
			MaxBytes:     1 << 20,
			AllowedTypes: []string{"application/pdf"},
			ScanDisabled: true,
			LinkTTL:      time.Minute,
		},
	}

	st := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := portal.New(st, scoring.NewScorer(scoring.WeightsProportional), portal.WithLogger(logger), portal.WithExportQueue(fakeQueue{}))
	issuer := newTestIssuer(t)
	storage := newFakeStorage()

	router := NewRouter(cfg, logger)
	RegisterRoutes(router, Deps{
		Config:  cfg,
		Store:   st,
		Portal:  svc,
		Issuer:  issuer,
		Cache:   newFakeCache(),
		Storage: storage,
		Logger:  logger,
	})
	return &testServer{router: router, store: st, svc: svc, issuer: issuer, storage: storage}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// user 直接在存储中创建账号并签发访问令牌。
func (s *testServer) user(t *testing.T, email string, role domain.Role, mustChange bool) (*database.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("letters123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &database.User{Email: email, Name: strings.Split(email, "@")[0], Role: role, PasswordHash: hash, MustChangePassword: mustChange}
	if err := s.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := s.issuer.Issue(auth.Identity{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, MustChangePassword: mustChange})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return u, pair.AccessToken
}

func sessionOf(u *database.User) *access.Session {
	return &access.Session{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func profileBody() map[string]any {
	return map[string]any{
		"first_name":    "Ana",
		"last_name":     "Silva",
		"email":         "ana@example.org",
		"phone":         "555-0100",
		"date_of_birth": "1995-04-12",
		"address":       "1 Main St",
		"city":          "Springfield",
		"state":         "IL",
		"zip_code":      "62701",
		"emergency_contact": map[string]string{
			"name":         "Rui Silva",
			"relationship": "Brother",
			"phone":        "555-0101",
		},
	}
}

func openProgram(t *testing.T, s *testServer, coordinator *database.User) *database.Program {
	t.Helper()
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	program, err := s.svc.CreateProgram(context.Background(), sessionOf(coordinator), portal.CreateProgramInput{ProgramInput: portal.ProgramInput{
		Name:                "Community Health Volunteer Program",
		StartDate:           start,
		EndDate:             start.AddDate(0, 3, 0),
		ApplicationDeadline: start.AddDate(0, -1, 0),
		Capacity:            10,
		Rubric:              domain.VolunteerRubric(),
		Status:              domain.ProgramOpen,
	}})
	if err != nil {
		t.Fatalf("create program: %v", err)
	}
	return program
}

func TestRegisterLoginAndProfile(t *testing.T) {
	s := newTestServer(t)

	register := map[string]string{"name": "Ana Silva", "email": "Ana@Example.org", "password": "letters123"}
	if rec := s.do(t, http.MethodPost, "/v1/auth/register", "", register); rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/v1/auth/register", "", register); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "ana@example.org", "password": "letters123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	tokens := decode[tokenResponse](t, rec)
	if tokens.Role != domain.RoleApplicant || tokens.AccessToken == "" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}

	rec = s.do(t, http.MethodGet, "/v1/applicant/profile", tokens.AccessToken, nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("empty profile: %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodPut, "/v1/applicant/profile", tokens.AccessToken, profileBody()); rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/v1/applicant/profile", tokens.AccessToken, nil)
	profile := decode[database.ApplicantProfile](t, rec)
	if profile.FirstName != "Ana" || profile.EmergencyContact.Name != "Rui Silva" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"name": "Ana", "email": "ana@example.org", "password": "lettersonly"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	_, applicantToken := s.user(t, "ana@example.org", domain.RoleApplicant, false)
	_, coordinatorToken := s.user(t, "casey@example.org", domain.RoleCoordinator, false)

	rec := s.do(t, http.MethodGet, "/v1/applicant/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/v1/coordinator/dashboard", applicantToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("applicant on coordinator route: %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Kind != "forbidden" || body.Code != 4030 {
		t.Fatalf("unexpected error body %+v", body)
	}

	rec = s.do(t, http.MethodPut, "/v1/coordinator/applications/missing/status", coordinatorToken, map[string]string{"status": "accepted"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown application: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/applicant/applications", applicantToken, map[string]string{"program_id": "p"})
	if rec.Code != http.StatusBadRequest || decode[errorBody](t, rec).Kind != "validation" {
		t.Fatalf("application without profile: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "rita@example.org", domain.RoleReviewer, false)

	bad := map[string]string{"email": "rita@example.org", "password": "wrong12345"}
	for i := 0; i < 3; i++ {
		if rec := s.do(t, http.MethodPost, "/v1/auth/login", "", bad); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, rec.Code)
		}
	}
	good := map[string]string{"email": "rita@example.org", "password": "letters123"}
	if rec := s.do(t, http.MethodPost, "/v1/auth/login", "", good); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected lock, got %d", rec.Code)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "rita@example.org", domain.RoleReviewer, false)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": "rita@example.org", "password": "letters123"})
	var refreshToken string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshTokenCookieName {
			refreshToken = cookie.Value
		}
	}
	if refreshToken == "" {
		t.Fatalf("login did not set refresh cookie")
	}

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": refreshToken}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token accepted: %d", rec.Code)
	}

	var rotated string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshTokenCookieName {
			rotated = cookie.Value
		}
	}
	if rec := s.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{"refresh_token": rotated}); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": rotated}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", rec.Code)
	}
}

func TestMustChangePasswordGate(t *testing.T) {
	s := newTestServer(t)
	_, token := s.user(t, "casey@example.org", domain.RoleCoordinator, true)

	rec := s.do(t, http.MethodGet, "/v1/coordinator/dashboard", token, nil)
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "password change required") {
		t.Fatalf("gate not applied: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/auth/change-password", token, map[string]string{
		"current_password": "letters123",
		"new_password":     "fresh45678",
		"confirm_password": "fresh45678",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password: %d %s", rec.Code, rec.Body.String())
	}
	tokens := decode[tokenResponse](t, rec)
	if tokens.MustChangePassword {
		t.Fatalf("flag not cleared")
	}

	rec = s.do(t, http.MethodGet, "/v1/coordinator/dashboard", tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard after change: %d %s", rec.Code, rec.Body.String())
	}
}

func uploadRequest(t *testing.T, path, token, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestDocumentUploadAndDownloadLink(t *testing.T) {
	s := newTestServer(t)
	coordinator, _ := s.user(t, "casey@example.org", domain.RoleCoordinator, false)
	_, applicantToken := s.user(t, "ana@example.org", domain.RoleApplicant, false)
	_, intruderToken := s.user(t, "ivo@example.org", domain.RoleApplicant, false)
	_, reviewerToken := s.user(t, "rita@example.org", domain.RoleReviewer, false)
	program := openProgram(t, s, coordinator)

	s.do(t, http.MethodPut, "/v1/applicant/profile", applicantToken, profileBody())
	rec := s.do(t, http.MethodPost, "/v1/applicant/applications", applicantToken, map[string]any{"program_id": program.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create application: %d %s", rec.Code, rec.Body.String())
	}
	app := decode[database.Application](t, rec)
	uploadPath := "/v1/applicant/applications/" + app.ID + "/documents"

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, uploadRequest(t, uploadPath, applicantToken, "../cv.pdf", pdf))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	doc := decode[database.Document](t, rec)
	if doc.Name != "cv.pdf" || doc.MediaType != "application/pdf" || !strings.HasPrefix(doc.ObjectKey, "documents/"+app.ID+"/") {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, ok := s.storage.uploaded[doc.ObjectKey]; !ok {
		t.Fatalf("object not uploaded")
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, uploadRequest(t, uploadPath, applicantToken, "notes.txt", []byte("plain text")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("disallowed type: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, uploadRequest(t, uploadPath, intruderToken, "cv.pdf", pdf))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("intruder upload: %d", rec.Code)
	}

	linkPath := "/v1/documents/" + doc.ID + "/download-link"
	// 草稿期间评审人看不到文档。
	if rec := s.do(t, http.MethodGet, linkPath, reviewerToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("reviewer download of draft document: %d", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, "/v1/applicant/applications/"+app.ID+"/submit", applicantToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	for _, token := range []string{applicantToken, reviewerToken} {
		rec = s.do(t, http.MethodGet, linkPath, token, nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), doc.ObjectKey) {
			t.Fatalf("download link: %d %s", rec.Code, rec.Body.String())
		}
	}
	if rec := s.do(t, http.MethodGet, linkPath, intruderToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("intruder download: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, uploadRequest(t, uploadPath, applicantToken, "late.pdf", pdf))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("upload after submit: %d", rec.Code)
	}
	if len(s.storage.uploaded) != 1 {
		t.Fatalf("rejected uploads reached storage: %d objects", len(s.storage.uploaded))
	}
}

func TestDocumentName(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "cv.pdf", "cv.pdf"},
		{"strips directories", "../../etc/cv.pdf", "cv.pdf"},
		{"windows path", `C:\Users\ana\cv.pdf`, "cv.pdf"},
		{"empty", "  ", "document"},
		{"long ascii", strings.Repeat("a", 300), strings.Repeat("a", 255)},
		// 1 + 3*84 = 253 字节，第 85 个汉字会越过 255。
		{"multibyte boundary", "a" + strings.Repeat("文", 100) + ".pdf", "a" + strings.Repeat("文", 84)},
		{"invalid bytes dropped", "cv\xff.pdf", "cv.pdf"},
		{"only invalid bytes", "\xff\xfe", "document"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := documentName(tc.in)
			if got != tc.want {
				t.Fatalf("documentName(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if !utf8.ValidString(got) || len(got) > 255 {
				t.Fatalf("documentName(%q) produced invalid name %q (%d bytes)", tc.in, got, len(got))
			}
		})
	}
}

func TestCoordinatorExportAndAuditRoutes(t *testing.T) {
	s := newTestServer(t)
	coordinator, token := s.user(t, "casey@example.org", domain.RoleCoordinator, false)
	program := openProgram(t, s, coordinator)

	rec := s.do(t, http.MethodGet, "/v1/coordinator/programs/"+program.ID+"/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") || !strings.Contains(rec.Header().Get("Content-Disposition"), "attachment") {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
	if !strings.HasPrefix(rec.Body.String(), "Application ID,First Name,Last Name") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/coordinator/programs/"+program.ID+"/export-jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted || decode[portal.ExportJob](t, rec).JobID != "job-42" {
		t.Fatalf("export job: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Correlation-ID") != "corr-123" {
		t.Fatalf("correlation id not echoed")
	}

	rec = s.do(t, http.MethodGet, "/v1/coordinator/audit-logs?limit=2", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit logs: %d %s", rec.Code, rec.Body.String())
	}
	page := decode[struct {
		Entries []database.AuditLog `json:"entries"`
		Total   int64               `json:"total"`
		Limit   int                 `json:"limit"`
	}](t, rec)
	if page.Limit != 2 || len(page.Entries) != 2 || page.Total != 3 {
		t.Fatalf("unexpected page %+v", page)
	}

	for _, query := range []string{"?limit=abc", "?limit=500", "?offset=-1"} {
		if rec := s.do(t, http.MethodGet, "/v1/coordinator/audit-logs"+query, token, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("audit query %s: %d", query, rec.Code)
		}
	}
}

func TestMetricsEndpointRequiresToken(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("metrics without token: %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Metrics-Token", "scrape-secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cohortflow_http_request_duration_seconds") {
		t.Fatalf("metrics with token: %d", rec.Code)
	}
}
