package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/marmos91/dittonet/internal/logger"
)

// Result is the JSON body of the device-control routes.
type Result struct {
	Result int `json:"result"`
}

// writeJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encoding failure can still be
// reported before headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", logger.Err(err))
		WriteText(w, http.StatusInternalServerError, MsgUnexpected)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteResult writes {"result": n}.
func WriteResult(w http.ResponseWriter, n int) {
	writeJSON(w, http.StatusOK, Result{Result: n})
}

// RedirectHome answers 303 See Other to the admin root.
func RedirectHome(w http.ResponseWriter) {
	w.Header().Set("Location", "/")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusSeeOther)
}

// RedirectOrResult redirects to the root when the request carries a truthy
// "redirect" flag and otherwise writes the result. Both carry result n.
func RedirectOrResult(w http.ResponseWriter, r *http.Request, n int) int {
	if QueryFlag(r, "redirect") {
		RedirectHome(w)
	} else {
		WriteResult(w, n)
	}
	return n
}

// QueryFlag reports whether query variable name is a non-zero integer.
func QueryFlag(r *http.Request, name string) bool {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	return err == nil && v != 0
}
