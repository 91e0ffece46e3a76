package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/clashmarket/arena/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Current *domain.Game `json:"current,omitempty"`
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
// Rejected transitions carry the current game.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Current: appErr.Current,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, errorBody{
		Code:    domain.CodeInternal,
		Message: "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies over 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

// ClientIP returns the first X-Forwarded-For address, or the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
