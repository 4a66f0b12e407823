package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/prescient/pkg/api"
)

// writeError отправляет ошибку в формате {"error", "message"}
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
