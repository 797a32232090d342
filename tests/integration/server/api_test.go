package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/cache"
	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/resolver"
	"github.com/preplab/preplab/internal/server"
	"github.com/preplab/preplab/internal/store"
	"github.com/preplab/preplab/tests/testutil"
)

func setupTestServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()

	s := testutil.SetupTestStore(t)
	reg := registry.New(s)
	res := resolver.New(reg, s, cache.NewMemoryCache(), zap.NewNop(), resolver.Config{})
	agg := metrics.NewAggregator(s, 0)

	return server.New(s, reg, res, agg, 0, "", zap.NewNop()), s
}

func seedRunning(t *testing.T, s *store.SQLiteStore) {
	t.Helper()
	testutil.SeedExperiment(t, s, "paywall_test",
		[]string{"direct_paywall", "freemium"},
		map[string]int{"direct_paywall": 50, "freemium": 50},
		store.StatusRunning)
}

func TestHealth(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var health struct {
		Status           string `json:"status"`
		ExperimentsCount int    `json:"experiments_count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("got status %q, want ok", health.Status)
	}
	if health.ExperimentsCount != 1 {
		t.Errorf("got %d experiments, want 1", health.ExperimentsCount)
	}
}

func TestVariantAPI_ExplicitUser(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	req := httptest.NewRequest(http.MethodGet, "/v1/variant?experiment=paywall_test&user=user-456", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Variant string `json:"variant"`
		Source  string `json:"source"`
		IsNew   bool   `json:"isNew"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Variant != "direct_paywall" && resp.Variant != "freemium" {
		t.Errorf("got variant %q", resp.Variant)
	}
	if !resp.IsNew {
		t.Error("first lookup should mint a new assignment")
	}
	if resp.UserID != "user-456" {
		t.Errorf("got userId %q, want user-456", resp.UserID)
	}

	// Same user, same variant, now served from cache or remote.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/variant?experiment=paywall_test&user=user-456", nil)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, req2)

	var resp2 struct {
		Variant string `json:"variant"`
		IsNew   bool   `json:"isNew"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&resp2); err != nil {
		t.Fatalf("failed to decode second response: %v", err)
	}
	if resp2.Variant != resp.Variant {
		t.Errorf("assignment not sticky: %q then %q", resp.Variant, resp2.Variant)
	}
	if resp2.IsNew {
		t.Error("second lookup should not be new")
	}
}

func TestVariantAPI_AnonymousUserGetsCookie(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	req := httptest.NewRequest(http.MethodGet, "/v1/variant?experiment=paywall_test", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var uidCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "preplab_uid" {
			uidCookie = c
		}
	}
	if uidCookie == nil {
		t.Fatal("expected a preplab_uid cookie for anonymous callers")
	}

	var resp struct {
		Variant string `json:"variant"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.UserID != uidCookie.Value {
		t.Errorf("response userId %q does not match cookie %q", resp.UserID, uidCookie.Value)
	}

	// Replaying the cookie keeps the identity and the variant.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/variant?experiment=paywall_test", nil)
	req2.AddCookie(uidCookie)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, req2)

	var resp2 struct {
		Variant string `json:"variant"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&resp2); err != nil {
		t.Fatalf("failed to decode second response: %v", err)
	}
	if resp2.UserID != resp.UserID {
		t.Errorf("identity not stable: %q then %q", resp.UserID, resp2.UserID)
	}
	if resp2.Variant != resp.Variant {
		t.Errorf("variant not sticky across cookie replay: %q then %q", resp.Variant, resp2.Variant)
	}
}

func TestVariantAPI_ErrorMapping(t *testing.T) {
	srv, s := setupTestServer(t)
	testutil.SeedExperiment(t, s, "draft_exp", []string{"a", "b"},
		map[string]int{"a": 50, "b": 50}, store.StatusDraft)

	cases := []struct {
		name string
		url  string
		want int
	}{
		{"missing experiment param", "/v1/variant?user=u1", http.StatusBadRequest},
		{"unknown experiment", "/v1/variant?experiment=missing&user=u1", http.StatusNotFound},
		{"draft experiment", "/v1/variant?experiment=draft_exp&user=u1", http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("got status %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestForceAPI(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	body, _ := json.Marshal(map[string]string{
		"userId":         "vip-user",
		"experimentName": "paywall_test",
		"variant":        "freemium",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/assignments/force", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// The forced variant wins future lookups.
	req2 := httptest.NewRequest(http.MethodGet, "/v1/variant?experiment=paywall_test&user=vip-user", nil)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, req2)

	var resp struct {
		Variant string `json:"variant"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Variant != "freemium" {
		t.Errorf("got variant %q, want freemium", resp.Variant)
	}
}

func TestForceAPI_UndeclaredVariant(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	body, _ := json.Marshal(map[string]string{
		"userId":         "vip-user",
		"experimentName": "paywall_test",
		"variant":        "premium",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/assignments/force", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", w.Code)
	}
}

func TestPurchaseAPI(t *testing.T) {
	srv, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"userId":      "user-1",
		"amountCents": 999,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/purchase", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPurchaseAPI_RejectsNonPositiveAmount(t *testing.T) {
	srv, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"userId":      "user-1",
		"amountCents": 0,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/purchase", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", w.Code)
	}
}

func TestAdminAPI_RequiresToken(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/experiments", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", w.Code)
	}
}

func TestAdminAPI_TokenFlow(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	// A valid query token sets a cookie and redirects without the param.
	req := httptest.NewRequest(http.MethodGet, "/admin/api/experiments?token="+srv.Token(), nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", w.Code)
	}
	if strings.Contains(w.Header().Get("Location"), "token=") {
		t.Error("redirect location should strip the token param")
	}

	var authCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "preplab_admin" {
			authCookie = c
		}
	}
	if authCookie == nil {
		t.Fatal("expected an auth cookie")
	}

	// The cookie grants access.
	req2 := httptest.NewRequest(http.MethodGet, "/admin/api/experiments", nil)
	req2.AddCookie(authCookie)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w2.Code)
	}

	var experiments []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&experiments); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(experiments) != 1 || experiments[0].Name != "paywall_test" {
		t.Errorf("unexpected experiment list: %v", experiments)
	}
}

func TestAdminMetricsAPI_CSV(t *testing.T) {
	srv, s := setupTestServer(t)
	seedRunning(t, s)

	req := httptest.NewRequest(http.MethodGet,
		"/admin/api/metrics?experiment=paywall_test&format=csv", nil)
	req.AddCookie(&http.Cookie{Name: "preplab_admin", Value: srv.Token()})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("got Content-Type %q, want text/csv", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "Variant,Visitors,Conversions,Conversion Rate,Revenue (cents),Revenue Per Visitor") {
		t.Errorf("unexpected csv header: %q", strings.SplitN(w.Body.String(), "\n", 2)[0])
	}
}
