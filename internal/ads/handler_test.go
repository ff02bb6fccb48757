package ads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"adboard/internal/auth"
)

// asUser stands in for auth.RequireUser, taking the caller's name from a header.
func asUser(f *fixture) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := f.users.UserByName(r.Context(), r.Header.Get("X-Test-User"))
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

func newAdsMux(t *testing.T) (*http.ServeMux, *fixture) {
	t.Helper()
	f := newFixture(t)
	mux := http.NewServeMux()
	h := &Handler{Service: f.svc, Logger: discardLogger()}
	h.Routes(mux, asUser(f))
	return mux, f
}

func call(t *testing.T, mux http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAdLifecycle(t *testing.T) {
	mux, _ := newAdsMux(t)

	rec := call(t, mux, http.MethodPost, "/api/v1/ads", "u", map[string]any{"title": "Guitar", "price": 300})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var ad Advertisement
	if err := json.Unmarshal(rec.Body.Bytes(), &ad); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := fmt.Sprintf("/api/v1/ads/%d", ad.ID)

	if rec := call(t, mux, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("public get: status %d", rec.Code)
	}
	if rec := call(t, mux, http.MethodPatch, path, "v", map[string]any{"price": 1}); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign patch: status %d, want 403", rec.Code)
	}
	rec = call(t, mux, http.MethodPatch, path, "u", map[string]any{"price": 280})
	if rec.Code != http.StatusOK {
		t.Fatalf("own patch: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = call(t, mux, http.MethodPut, path, "u", map[string]any{"title": "Bass guitar", "price": 350, "description": "4 strings"})
	if rec.Code != http.StatusOK {
		t.Fatalf("replace: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := call(t, mux, http.MethodDelete, path, "v", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: status %d, want 403", rec.Code)
	}
	if rec := call(t, mux, http.MethodDelete, path, "u", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("own delete: status %d", rec.Code)
	}
	if rec := call(t, mux, http.MethodGet, path, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: status %d, want 404", rec.Code)
	}
}

func TestHandlerWritesNeedAuthentication(t *testing.T) {
	mux, _ := newAdsMux(t)
	if rec := call(t, mux, http.MethodPost, "/api/v1/ads", "", map[string]any{"title": "x", "price": 1}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d, want 401", rec.Code)
	}
	if rec := call(t, mux, http.MethodPost, "/api/v1/ads", "nobody", map[string]any{"title": "x", "price": 1}); rec.Code != http.StatusForbidden {
		t.Fatalf("create without rights: status %d, want 403", rec.Code)
	}
	if rec := call(t, mux, http.MethodPost, "/api/v1/ads", "u", map[string]any{"title": "x", "price": -1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative price: status %d, want 400", rec.Code)
	}
}

func TestHandlerListQuery(t *testing.T) {
	mux, f := newAdsMux(t)
	ctx := context.Background()
	for _, in := range []Input{{Title: "Old phone", Price: 50}, {Title: "New phone", Price: 700}, {Title: "Table", Price: 60}} {
		if _, err := f.svc.Create(ctx, f.poster, in); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	rec := call(t, mux, http.MethodGet, "/api/v1/ads?title=PHONE&max_price=100", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var got []Advertisement
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Old phone" {
		t.Fatalf("unexpected list %+v", got)
	}
	for _, q := range []string{"min_price=cheap", "max_price=x", "author_id=me", "limit=ten"} {
		if rec := call(t, mux, http.MethodGet, "/api/v1/ads?"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: status %d, want 400", q, rec.Code)
		}
	}
	rec = call(t, mux, http.MethodGet, "/api/v1/ads?title=zzz", "", nil)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("empty result should be [], got %s", body)
	}
}

func TestHandlerReadChecks(t *testing.T) {
	f := newFixture(t)
	ad, err := f.svc.Create(context.Background(), f.poster, Input{Title: "Piano", Price: 900})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mux := http.NewServeMux()
	checked := NewService(f.ads, auth.NewEvaluator(f.users, discardLogger()), discardLogger(), WithReadChecks())
	h := &Handler{Service: checked, Logger: discardLogger()}
	h.Routes(mux, asUser(f))

	for _, path := range []string{"/api/v1/ads", fmt.Sprintf("/api/v1/ads/%d", ad.ID)} {
		if rec := call(t, mux, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("anonymous %s: status %d, want 401", path, rec.Code)
		}
		if rec := call(t, mux, http.MethodGet, path, "nobody", nil); rec.Code != http.StatusForbidden {
			t.Fatalf("nobody %s: status %d, want 403", path, rec.Code)
		}
		if rec := call(t, mux, http.MethodGet, path, "r", nil); rec.Code != http.StatusOK {
			t.Fatalf("reader %s: status %d body %s", path, rec.Code, rec.Body.String())
		}
	}
}
