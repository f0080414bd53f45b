package i18n

import (
	"net/http"

	"golang.org/x/text/message"
)

// Middleware injects a printer matching the Accept-Language header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := message.NewPrinter(MatchLanguage(r.Header.Get("Accept-Language")))
		next.ServeHTTP(w, r.WithContext(WithPrinter(r.Context(), p)))
	})
}
