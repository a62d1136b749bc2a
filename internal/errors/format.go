package errors

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ANSI color codes for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorWhite = "\033[37m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// colorEnabled controls whether ANSI colors are used.
var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

func red(text string) string   { return color(colorRed, text) }
func white(text string) string { return color(colorWhite, text) }
func gray(text string) string  { return color(colorGray, text) }
func bold(text string) string  { return color(colorBold, text) }

// Format returns the error formatted for terminal display.
func (e *GatewayError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	if e.Code != "" {
		b.WriteString(red(bold("ERROR ")))
		b.WriteString(white(bold(e.Code + ": ")))
	} else {
		b.WriteString(red(bold("ERROR: ")))
	}
	b.WriteString(white(e.Message))
	b.WriteString("\n\n")

	if e.Detail != "" {
		b.WriteString("  ")
		b.WriteString(e.Detail)
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		b.WriteString("  ")
		b.WriteString(gray("cause: "))
		b.WriteString(e.Wrapped.Error())
		b.WriteString("\n")
	}

	return b.String()
}

// Render writes err as an HTTP response.
//
// Upstream errors carrying a body are relayed verbatim (status, content type
// and bytes). Every other GatewayError renders as {"error": Message} with its
// status. Errors outside the taxonomy render as a generic 500.
func Render(w http.ResponseWriter, err error) {
	ge, ok := As(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	status := ge.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if ge.Category == CategoryUpstream && ge.Body != nil {
		if ge.ContentType != "" {
			w.Header().Set("Content-Type", ge.ContentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write(ge.Body)
		return
	}

	WriteJSON(w, status, map[string]string{"error": ge.Message})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
