package api

import (
	"encoding/json"
	"net/http"

	"slotbook/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindPolicy:
		return http.StatusUnprocessableEntity
	case domain.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInvalidInput:
		return codes.InvalidArgument
	case domain.KindConflict:
		return codes.Aborted
	case domain.KindPolicy:
		return codes.FailedPrecondition
	case domain.KindStorage:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// grpcError converts an engine error into a status error. Storage and
// unknown failures are not described to the caller.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	code := grpcCode(err)
	msg := err.Error()
	if code == codes.Unavailable || code == codes.Internal {
		msg = code.String()
	}
	return status.Error(code, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError writes err with the status its kind maps to.
func writeDomainError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	writeError(w, code, msg)
}
