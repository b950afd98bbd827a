package httputils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// GetQueryParam returns a pointer to the query parameter value if it exists, otherwise nil.
func GetQueryParam(values url.Values, key string) *string {
	if values.Has(key) {
		val := values.Get(key)
		return &val
	}
	return nil
}

// BearerToken returns the token of an "Authorization: Bearer" header or an empty string.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn(fmt.Sprintf("Could not write response: %s", err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, errorResponse{Error: message})
}
