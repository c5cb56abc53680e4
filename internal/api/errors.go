package api

import (
	"encoding/json"
	"net/http"

	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/logging"
	"github.com/blagoySimandov/trainer/internal/models"
)

type ErrorResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

var kindStatus = map[string]int{
	"unknown_column":          http.StatusBadRequest,
	"insufficient_data":       http.StatusBadRequest,
	"invalid_feature_value":   http.StatusBadRequest,
	"unknown_model_type":      http.StatusBadRequest,
	"invalid_hyperparameter":  http.StatusBadRequest,
	"missing_feature":         http.StatusBadRequest,
	"invalid_role_assignment": http.StatusBadRequest,
	"invalid_split_ratio":     http.StatusBadRequest,
	"invalid_dataset":         http.StatusBadRequest,
	"invalid_argument":        http.StatusBadRequest,
	"not_found":               http.StatusNotFound,
	// Never reaches clients through the envelope; kept so a leak is still
	// reported as missing.
	"forbidden":           http.StatusNotFound,
	"insufficient_tokens": http.StatusPaymentRequired,
	"already_exists":      http.StatusConflict,
}

func statusForError(err error) (int, string) {
	kind := models.ErrorKind(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind
	}
	return http.StatusInternalServerError, kind
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusForError(err)
	logging.EnrichError(r.Context(), err, kind)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed", "path", r.URL.Path, "error", err)
		detail = internalServerError
	}
	if kind == "forbidden" {
		kind, detail = "not_found", "model not found"
	}
	writeJSON(w, status, ErrorResponse{Status: "error", Kind: kind, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to write JSON response", "error", err)
	}
}
