package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adboard/internal/apperr"
)

func TestErrorMapsKnownKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, "get", fmt.Errorf("get ad 4: %w", apperr.ErrNotFound))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "get ad 4: not found" || body["code"] != float64(404) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	Error(rec, logger, "list", errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	if err := Decode(req, &v); err != nil || v.Name != "a" {
		t.Fatalf("decode: %v %+v", err, v)
	}
	for _, body := range []string{`{"name":1}`, `{"other":"x"}`, `not json`, ``} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if err := Decode(req, &v); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("Decode(%q) = %v, want invalid input", body, err)
		}
	}
}
