package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldops/api/internal/authpw"
	"fieldops/api/internal/cache"
	"fieldops/api/internal/config"
	"fieldops/api/internal/docstore"
	"fieldops/api/internal/feed"
	"fieldops/api/internal/search"
	"fieldops/api/internal/store"
)

type fakeDataStore struct {
	users   map[string]store.User // keyed by id
	byEmail map[string]store.User
	revoked map[string]bool
}

func newFakeDataStore(users ...store.User) *fakeDataStore {
	f := &fakeDataStore{
		users:   make(map[string]store.User),
		byEmail: make(map[string]store.User),
		revoked: make(map[string]bool),
	}
	for _, u := range users {
		f.users[u.ID] = u
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeDataStore) Ping(context.Context) error { return nil }

func (f *fakeDataStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeDataStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeDataStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeDataStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

type fakeSessions struct {
	tokens map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, _ time.Time) error {
	f.tokens[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	u, ok := f.tokens[tokenHash]
	if !ok {
		return store.User{}, errors.New("token not found or expired")
	}
	return u, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.tokens, tokenHash)
	return nil
}

// fakeFeedData serves the aggregator's source queries from fixed slices.
type fakeFeedData struct {
	jobs     []store.Job
	invoices []store.Invoice
}

func (f *fakeFeedData) JobsByTenant(context.Context, string, int) ([]store.Job, error) {
	return f.jobs, nil
}

func (f *fakeFeedData) InvoicesByTenant(context.Context, string, int) ([]store.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeFeedData) QuotesByTenant(context.Context, string, int) ([]store.Quote, error) {
	return nil, nil
}

func (f *fakeFeedData) CertificatesByTenant(context.Context, string, int) ([]store.Certificate, error) {
	return nil, nil
}

func (f *fakeFeedData) EnquiriesByTenant(context.Context, string, int) ([]store.Enquiry, error) {
	return nil, nil
}

func (f *fakeFeedData) DealsByTenant(context.Context, string, int) ([]store.Deal, error) {
	return nil, nil
}

func (f *fakeFeedData) TimesheetsByTenant(context.Context, string, time.Time, int) ([]store.TimesheetEntry, error) {
	return nil, nil
}

func (f *fakeFeedData) AuditByTenant(context.Context, string, int) ([]store.AuditEntry, error) {
	return nil, nil
}

func (f *fakeFeedData) EngineersByTenant(context.Context, string) ([]store.User, error) {
	return nil, nil
}

func (f *fakeFeedData) GetJob(_ context.Context, _ string, jobID string) (store.Job, error) {
	for _, j := range f.jobs {
		if j.ID == jobID {
			return j, nil
		}
	}
	return store.Job{}, sql.ErrNoRows
}

func (f *fakeFeedData) InvoicesForJob(context.Context, string, string, int) ([]store.Invoice, error) {
	return nil, nil
}

func (f *fakeFeedData) QuotesForJob(context.Context, string, string, int) ([]store.Quote, error) {
	return nil, nil
}

func (f *fakeFeedData) CertificatesForJob(context.Context, string, string, int) ([]store.Certificate, error) {
	return nil, nil
}

func (f *fakeFeedData) AuditForEntity(context.Context, string, string, int) ([]store.AuditEntry, error) {
	return nil, nil
}

func (f *fakeFeedData) JobsForClient(context.Context, string, string, int) ([]store.Job, error) {
	return f.jobs, nil
}

func (f *fakeFeedData) InvoicesForClient(context.Context, string, string, int) ([]store.Invoice, error) {
	return f.invoices, nil
}

func (f *fakeFeedData) QuotesForClient(context.Context, string, string, int) ([]store.Quote, error) {
	return nil, nil
}

func (f *fakeFeedData) CertificatesForClient(context.Context, string, string, int) ([]store.Certificate, error) {
	return nil, nil
}

func newTestService(ds *fakeDataStore, feedData feed.Store) *Service {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	return &Service{
		cfg:      cfg,
		store:    ds,
		sessions: newFakeSessions(),
		authpw:   authpw.NewService(ds),
		feed:     feed.New(feedData, cache.Noop{}, docstore.Noop{}, 30*time.Second, time.Second),
		search:   search.NewService(nil, search.NewPgFTS(nil)),
	}
}

func tokenFor(t *testing.T, svc *Service, user store.User) string {
	t.Helper()
	session, err := svc.issueSession(context.Background(), user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func adminUser() store.User {
	return store.User{ID: "user-admin", TenantID: "tn-1", DisplayName: "Dana Hill", Email: "dana@example.com", Role: "admin"}
}

func engineerUser() store.User {
	return store.User{ID: "user-eng", TenantID: "tn-1", DisplayName: "Sam Archer", Email: "sam@example.com", Role: "engineer"}
}

func get(server *HTTPServer, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeDataStore(), &fakeFeedData{}), "*")
	rr := get(server, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeDataStore(), &fakeFeedData{}), "*")
	for _, path := range []string{"/api/attention", "/api/timeline?entityId=job-1", "/api/search?q=boiler"} {
		rr := get(server, path, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestErrorEnvelopeCarriesOKFalse(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeDataStore(), &fakeFeedData{}), "*")
	rr := get(server, "/api/attention", "")

	var body struct {
		OK    *bool  `json:"ok"`
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if body.OK == nil || *body.OK {
		t.Errorf("error envelope must carry ok=false, got %s", rr.Body.String())
	}
	if body.Code == "" || body.Error == "" {
		t.Errorf("error envelope missing code or error: %s", rr.Body.String())
	}
}

func TestEngineerCannotReadOpsDashboard(t *testing.T) {
	eng := engineerUser()
	svc := newTestService(newFakeDataStore(eng), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, eng)

	for _, path := range []string{"/api/attention", "/api/jobs/health-flags", "/api/map-pins", "/api/activity"} {
		rr := get(server, path, token)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d body=%s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestCustomerCannotReadStaffSurfaces(t *testing.T) {
	clientID := "cl-1"
	customer := store.User{ID: "user-cust", TenantID: "tn-1", DisplayName: "R. Patel", Email: "r@example.com", Role: "customer", ClientID: &clientID}
	svc := newTestService(newFakeDataStore(customer), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, customer)

	for _, path := range []string{"/api/attention", "/api/timeline?entityId=job-1", "/api/search?q=x"} {
		rr := get(server, path, token)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, rr.Code)
		}
	}

	rr := get(server, "/api/portal/timeline", token)
	if rr.Code != http.StatusOK {
		t.Errorf("portal timeline: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTimelineRequiresEntityID(t *testing.T) {
	admin := adminUser()
	svc := newTestService(newFakeDataStore(admin), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")

	rr := get(server, "/api/timeline", tokenFor(t, svc, admin))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestTimelineUnknownEntityIsNotFound(t *testing.T) {
	admin := adminUser()
	svc := newTestService(newFakeDataStore(admin), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")

	rr := get(server, "/api/timeline?entityId=job-nope", tokenFor(t, svc, admin))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAttentionEmptyTenantIsOKAndEmpty(t *testing.T) {
	admin := adminUser()
	svc := newTestService(newFakeDataStore(admin), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")

	rr := get(server, "/api/attention", tokenFor(t, svc, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		OK   bool                 `json:"ok"`
		Data []feed.AttentionItem `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !payload.OK {
		t.Error("expected ok:true")
	}
	if payload.Data == nil || len(payload.Data) != 0 {
		t.Errorf("expected empty list, got %+v", payload.Data)
	}
}

func TestHealthFlagsCarryAllThreeKeys(t *testing.T) {
	admin := adminUser()
	feedData := &fakeFeedData{jobs: []store.Job{
		{ID: "job-1", TenantID: "tn-1", Reference: "JB-1042", Status: "scheduled"},
	}}
	svc := newTestService(newFakeDataStore(admin), feedData)
	server := NewHTTPServer(svc, "*")

	rr := get(server, "/api/jobs/health-flags", tokenFor(t, svc, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Data map[string]map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	flags, ok := payload.Data["job-1"]
	if !ok {
		t.Fatalf("expected flags for job-1, got %v", payload.Data)
	}
	for _, key := range []string{"hasInvoice", "hasOpenSnags", "hasMissingTimesheet"} {
		if _, present := flags[key]; !present {
			t.Errorf("flag %s missing from %v", key, flags)
		}
	}
}

func TestSignInRefreshLogoutFlow(t *testing.T) {
	hash, err := authpw.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := adminUser()
	admin.PasswordHash = hash
	svc := newTestService(newFakeDataStore(admin), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")

	// Sign in
	body := bytes.NewBufferString(`{"email":"dana@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", body)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var signin struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		PathPrefix   string `json:"pathPrefix"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &signin); err != nil {
		t.Fatalf("parse signin: %v", err)
	}
	if signin.Token == "" || signin.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if signin.PathPrefix != "/admin" {
		t.Errorf("expected /admin prefix, got %q", signin.PathPrefix)
	}

	// The access token works.
	if rr := get(server, "/api/attention", signin.Token); rr.Code != http.StatusOK {
		t.Fatalf("attention with fresh token: expected 200, got %d", rr.Code)
	}

	// Refresh rotates the pair; the old refresh token dies.
	refreshBody := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/session/refresh",
			bytes.NewBufferString(`{"refreshToken":"`+token+`"}`))
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)
		return rr
	}
	refreshed := refreshBody(signin.RefreshToken)
	if refreshed.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d body=%s", refreshed.Code, refreshed.Body.String())
	}
	if again := refreshBody(signin.RefreshToken); again.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", again.Code)
	}

	// Logout revokes the access token.
	req = httptest.NewRequest(http.MethodPost, "/api/session/logout", bytes.NewBufferString(`{}`))
	req.Header.Set("Authorization", "Bearer "+signin.Token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	if rr := get(server, "/api/attention", signin.Token); rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rr.Code)
	}
}

func TestSignInRejectsBadPassword(t *testing.T) {
	hash, err := authpw.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := adminUser()
	admin.PasswordHash = hash
	server := NewHTTPServer(newTestService(newFakeDataStore(admin), &fakeFeedData{}), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin",
		bytes.NewBufferString(`{"email":"dana@example.com","password":"wrong"}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSearchEmptyQueryReturnsEmptyResults(t *testing.T) {
	admin := adminUser()
	svc := newTestService(newFakeDataStore(admin), &fakeFeedData{})
	server := NewHTTPServer(svc, "*")

	rr := get(server, "/api/search", tokenFor(t, svc, admin))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Data search.Response `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(payload.Data.Results) != 0 {
		t.Errorf("expected no results, got %+v", payload.Data.Results)
	}
}
