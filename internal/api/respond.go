package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders any error as {code, message, details}. Internal causes are logged
// here and never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	ae := apperr.As(err)

	if ae.Kind == apperr.KindInternal {
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	writeJSON(w, ae.HTTPStatus(), ErrorResponse{
		Code:    ae.Code,
		Message: ae.Message,
		Details: ae.Details,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid_request_body", "could not parse JSON body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	return nil
}
