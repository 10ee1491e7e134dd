// Copyright 2025 James Ross
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gwbischof/starq/internal/queueerr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": message})
}

// writeErr translates a queuecore/queueerr failure into its documented HTTP
// response, falling back to 500 for anything unrecognized.
func writeErr(w http.ResponseWriter, err error) {
	var qe *queueerr.Error
	if errors.As(err, &qe) {
		writeError(w, qe.HTTPStatus(), string(qe.Code), qe.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}
