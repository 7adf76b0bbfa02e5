package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/clipkeep/kit"
)

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "script-src 'none'") {
		t.Errorf("CSP = %q", got)
	}
}

func TestFlashRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	SetFlash(rec, FlashSuccess, "Copied!")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies: %d", len(cookies))
	}

	var got *FlashMessage
	h := Flash(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetFlash(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got == nil || got.Type != FlashSuccess || got.Message != "Copied!" {
		t.Fatalf("flash: %+v", got)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Fatalf("flash cookie not expired: %+v", c)
	}
}

func TestFlashUnknownTypeIsError(t *testing.T) {
	var got *FlashMessage
	h := Flash(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetFlash(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "flash", Value: "note%3A+a%3Ab"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.Type != FlashError || got.Message != "note: a:b" {
		t.Fatalf("flash: %+v", got)
	}
}

func TestNoFlash(t *testing.T) {
	h := Flash(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetFlash(r.Context()) != nil {
			t.Error("unexpected flash")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestID(t *testing.T) {
	var id, transport string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = kit.GetRequestID(r.Context())
		transport = kit.GetTransport(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(id) != 8 || rec.Header().Get("X-Request-ID") != id {
		t.Fatalf("request id %q, header %q", id, rec.Header().Get("X-Request-ID"))
	}
	if transport != "http" {
		t.Fatalf("transport = %q", transport)
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/", nil))
	if method != http.MethodGet {
		t.Fatalf("method = %q", method)
	}
}
