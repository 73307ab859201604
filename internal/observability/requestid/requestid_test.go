package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestMiddlewareGeneratesID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = From(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if rec.Header().Get(Header) != seen {
		t.Fatalf("response header %q does not match context id %q", rec.Header().Get(Header), seen)
	}
}

func TestMiddlewareKeepsValidInboundID(t *testing.T) {
	in := uuid.NewString()
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = From(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, in)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != in {
		t.Fatalf("expected %q, got %q", in, seen)
	}
}

func TestMiddlewareReplacesGarbageID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = From(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "<script>" || seen == "" {
		t.Fatalf("expected a fresh id, got %q", seen)
	}
}
