package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filegate/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusTable maps sentinel errors to HTTP status codes. Order matters only
// in that the first match wins.
var statusTable = []struct {
	err    error
	status int
}{
	{common.ErrMissingField, http.StatusBadRequest},
	{common.ErrInvalidField, http.StatusBadRequest},
	{common.ErrInvalidOTP, http.StatusBadRequest},
	{common.ErrExpiredOTP, http.StatusBadRequest},
	{common.ErrConflict, http.StatusConflict},
	{common.ErrAlreadyVerified, http.StatusConflict},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrInvalidCredentials, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrNotVerified, http.StatusForbidden},
	{common.ErrAccessDenied, http.StatusForbidden},
	{common.ErrRateLimited, http.StatusTooManyRequests},
	{common.ErrDispatchFailure, http.StatusBadGateway},
	{common.ErrStorageFailure, http.StatusBadGateway},
}

func statusFor(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// publicMessage is what the client sees. Client errors carry their full text
// (e.g. "missing field: user_id"); upstream and internal failures carry only
// the sentinel text.
func publicMessage(err error, status int) string {
	switch {
	case errors.Is(err, common.ErrDispatchFailure):
		return common.ErrDispatchFailure.Error()
	case errors.Is(err, common.ErrStorageFailure):
		return common.ErrStorageFailure.Error()
	case status >= http.StatusInternalServerError:
		return common.ErrorInternal.Error()
	}
	return err.Error()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: publicMessage(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
