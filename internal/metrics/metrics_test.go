package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://SteamCommunity.com/id/x/recommended/620", "steamcommunity.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCacheIncrements(t *testing.T) {
	before := testutil.ToFloat64(dailyCacheTotal.WithLabelValues(CacheHit))
	ObserveCache(CacheHit)
	after := testutil.ToFloat64(dailyCacheTotal.WithLabelValues(CacheHit))
	if after != before+1 {
		t.Fatalf("expected hit counter to grow by one, got %f -> %f", before, after)
	}
}

func TestObserveClueLabelsBySite(t *testing.T) {
	ObserveClue("https://store.example.com/app/1", "ok", 20*time.Millisecond)
	if got := testutil.ToFloat64(clueFetchTotal.WithLabelValues("store.example.com", "ok")); got < 1 {
		t.Fatalf("expected clue counter to be recorded, got %f", got)
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/7", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	if after != before+1 {
		t.Fatalf("expected request counter to grow by one, got %f -> %f", before, after)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
