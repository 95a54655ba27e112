package middleware

import (
	"net/http"

	"atlas/pkg/fastjson"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, errorBody{Error: code, Message: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	out, err := fastjson.Marshal(body)
	if err != nil {
		return
	}
	_, _ = w.Write(out)
}
