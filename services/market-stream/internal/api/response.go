// services/market-stream/internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON пишет успешный ответ.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	res := errorBody{}
	res.Error.Code = code
	res.Error.Message = msg
	writeJSON(w, code, res)
}

func badRequest(w http.ResponseWriter, msg string)    { writeError(w, http.StatusBadRequest, msg) }
func conflict(w http.ResponseWriter, msg string)      { writeError(w, http.StatusConflict, msg) }
func unavailable(w http.ResponseWriter, msg string)   { writeError(w, http.StatusServiceUnavailable, msg) }
func internalError(w http.ResponseWriter, msg string) { writeError(w, http.StatusInternalServerError, msg) }
