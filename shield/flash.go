package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const flashCookie = "flash"

// FlashKind selects how a flash message is styled.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
)

// FlashMessage is a one-time notification shown on the next page view.
type FlashMessage struct {
	Type    FlashKind
	Message string
}

// GetFlash returns the flash message of the request, nil when there is none.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// Flash moves the flash cookie into the request context and expires it.
// The cookie value is "<type>:<message>"; an unknown type reads as an error.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(flashCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: flashCookie, MaxAge: -1, Path: "/"})

		raw, _ := url.QueryUnescape(cookie.Value)
		msg := &FlashMessage{Type: FlashError, Message: raw}
		if typ, text, ok := strings.Cut(raw, ":"); ok {
			switch k := FlashKind(typ); k {
			case FlashSuccess, FlashError:
				msg.Type, msg.Message = k, text
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), FlashKey, msg)))
	})
}

// SetFlash queues a flash message for the next request. The cookie is
// HttpOnly, SameSite=Lax and lives 10 seconds.
func SetFlash(w http.ResponseWriter, kind FlashKind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(string(kind) + ":" + message),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
