package callback

import (
	"log/slog"
	"net/http"
)

// renderSuccess renders the success page
func (l *Listener) renderSuccess(w http.ResponseWriter, message string) {
	l.renderPage(w, http.StatusOK, "success.html", "Sign-in Successful", message)
}

// renderError renders the error page
func (l *Listener) renderError(w http.ResponseWriter, errMsg string) {
	l.renderPage(w, http.StatusBadRequest, "error.html", "Sign-in Failed", errMsg)
}

func (l *Listener) renderPage(w http.ResponseWriter, status int, name, title, message string) {
	data := map[string]string{
		"Title":   title,
		"Message": message,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := l.templates.ExecuteTemplate(w, name, data); err != nil {
		// Headers are already written; the body is best effort.
		slog.Error("failed to render template", "template", name, "error", err)
	}
}
