package ipc

import (
	_ "embed"
	"html/template"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/callback.html
var callbackHTML string

var callbackTemplate = template.Must(
	template.New("callback").Funcs(sprig.FuncMap()).Parse(callbackHTML))

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeExpired = "expired"
)

type callbackPage struct {
	Action      string // "sign-in" or "sign-out"
	Outcome     string
	Error       string
	Description string
	Time        time.Time
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

func renderCallback(w http.ResponseWriter, status int, page callbackPage) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackTemplate.Execute(w, page)
}
