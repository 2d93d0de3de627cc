package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/heirloom-restoration/workshop/internal/apperr"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: apperr.Message(err),
		Code:  string(code),
	})
}
