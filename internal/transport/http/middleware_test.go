package httptransport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wagerboard/internal/app/betting"
)

type flusherRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flusherRecorder) Flush() {
	f.flushed = true
}

func TestBodyCaptureMiddlewarePreservesFlusherAndBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"delta":5}` {
			http.Error(w, "body lost", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "no flusher", http.StatusInternalServerError)
			return
		}
		flusher.Flush()
		w.WriteHeader(http.StatusOK)
	})

	mw := BodyCaptureMiddleware(4)
	rec := &flusherRecorder{ResponseRecorder: httptest.NewRecorder()}
	req := httptest.NewRequest(http.MethodPost, "/api/users/u1/adjust", strings.NewReader(`{"delta":5}`))
	mw(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !rec.flushed {
		t.Fatal("expected flusher to be called")
	}
}

func TestActorMiddleware(t *testing.T) {
	var got string
	handler := ActorMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = betting.ActorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/scopes/g/events", nil)
	req.Header.Set("X-Actor-ID", " mod-7 ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != "mod-7" {
		t.Fatalf("actor = %q, want mod-7", got)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "" {
		t.Fatalf("actor without header = %q", got)
	}
}

func TestCheckAdminAuth(t *testing.T) {
	cases := []struct {
		name   string
		header string
		value  string
		want   bool
	}{
		{"admin key header", "X-Admin-Key", "k", true},
		{"bearer", "Authorization", "Bearer k", true},
		{"wrong bearer", "Authorization", "Bearer nope", false},
		{"wrong admin key header", "X-Admin-Key", "kk", false},
		{"basic scheme", "Authorization", "Basic k", false},
		{"missing", "", "", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set(tc.header, tc.value)
		}
		if got := CheckAdminAuth(r, "k"); got != tc.want {
			t.Errorf("%s: CheckAdminAuth() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
