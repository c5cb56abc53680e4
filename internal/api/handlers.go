package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/blagoySimandov/trainer/internal/adapters"
	"github.com/blagoySimandov/trainer/internal/dataset"
	"github.com/blagoySimandov/trainer/internal/metering"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/training"
	"github.com/blagoySimandov/trainer/internal/user"
)

const (
	defaultTrainRatio = 0.8
	multipartMemory   = 8 << 20
)

type ModelHandler struct {
	envelope       *metering.Envelope
	registry       *adapters.Registry
	maxUploadBytes int64
}

func NewModelHandler(envelope *metering.Envelope, registry *adapters.Registry, maxUploadBytes int64) *ModelHandler {
	return &ModelHandler{
		envelope:       envelope,
		registry:       registry,
		maxUploadBytes: maxUploadBytes,
	}
}

type ModelTypeInfo struct {
	ModelType       models.ModelType     `json:"model_type"`
	Task            models.Task          `json:"task"`
	Hyperparameters []adapters.ParamInfo `json:"hyperparameters"`
	PredictParams   []string             `json:"predict_params"`
}

type TrainResponse struct {
	Status    string           `json:"status"`
	ModelName string           `json:"model_name"`
	ModelType models.ModelType `json:"model_type"`
	Metrics   models.Metrics   `json:"metrics"`
}

type PredictResponse struct {
	Status     string `json:"status"`
	ModelName  string `json:"model_name"`
	Prediction any    `json:"prediction"`
}

func (h *ModelHandler) ListModelTypes(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]ModelTypeInfo, len(list))
	for i, a := range list {
		predictParams := a.PredictParams()
		if predictParams == nil {
			predictParams = []string{}
		}
		out[i] = ModelTypeInfo{
			ModelType:       a.Type(),
			Task:            a.Task(),
			Hyperparameters: a.Params(),
			PredictParams:   predictParams,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_types": out})
}

// CreateModel trains a model from a multipart CSV upload.
func (h *ModelHandler) CreateModel(w http.ResponseWriter, r *http.Request) {
	dbUser, ok := user.GetDBUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Status: "error",
				Kind:   "invalid_dataset",
				Detail: fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes),
			})
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", models.ErrInvalidArgument, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := h.trainRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.OwnerID = dbUser.ID

	artifact, err := h.envelope.Train(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, TrainResponse{
		Status:    "success",
		ModelName: artifact.Name,
		ModelType: artifact.ModelType,
		Metrics:   artifact.Metrics,
	})
}

func (h *ModelHandler) trainRequest(r *http.Request) (training.TrainRequest, error) {
	var req training.TrainRequest

	file, _, err := r.FormFile("csv_file")
	if err != nil {
		return req, fmt.Errorf("%w: CSV file missing", models.ErrInvalidDataset)
	}
	defer file.Close()

	ds, err := dataset.Load(file)
	if err != nil {
		return req, err
	}
	if ds.NumRows() == 0 {
		return req, fmt.Errorf("%w: CSV file has no data", models.ErrInvalidDataset)
	}
	req.Dataset = ds

	req.ModelType = models.ModelType(strings.TrimSpace(r.FormValue("model_type")))
	if req.ModelType == "" {
		return req, fmt.Errorf("%w: model_type is required", models.ErrInvalidArgument)
	}

	features, err := parseColumnList(r.FormValue("feature_cols"))
	if err != nil {
		return req, err
	}
	req.Roles = models.RoleAssignment{
		Features: features,
		Label:    strings.TrimSpace(r.FormValue("label_col")),
	}

	req.SplitRatio = defaultTrainRatio
	if v := strings.TrimSpace(r.FormValue("train_percentage")); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: train_percentage %q is not a number", models.ErrInvalidSplitRatio, v)
		}
		req.SplitRatio = ratio
	}

	if v := strings.TrimSpace(r.FormValue("optional_params")); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Hyperparameters); err != nil {
			return req, fmt.Errorf("%w: optional_params must be a JSON object: %v", models.ErrInvalidHyperparameter, err)
		}
	}

	if v := strings.TrimSpace(r.FormValue("seed")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, fmt.Errorf("%w: seed %q is not an integer", models.ErrInvalidArgument, v)
		}
		req.Seed = &seed
	}

	req.ModelName = r.FormValue("model_name")
	return req, nil
}

// parseColumnList accepts a JSON array or a comma separated list.
func parseColumnList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: feature_cols is required", models.ErrInvalidRoleAssignment)
	}
	var cols []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, fmt.Errorf("%w: feature_cols: %v", models.ErrInvalidRoleAssignment, err)
		}
	} else {
		cols = strings.Split(raw, ",")
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols, nil
}

func (h *ModelHandler) Predict(w http.ResponseWriter, r *http.Request) {
	dbUser, ok := user.GetDBUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	name := mux.Vars(r)["name"]

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", models.ErrInvalidArgument, err))
		return
	}
	features, ok := body["features"].(map[string]any)
	if !ok || len(features) == 0 {
		writeError(w, r, fmt.Errorf("%w: missing 'features' in request body", models.ErrInvalidArgument))
		return
	}
	delete(body, "features")

	pred, err := h.envelope.Predict(r.Context(), name, dbUser.ID, features, body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := PredictResponse{Status: "success", ModelName: pred.ModelName}
	if pred.Class != nil {
		resp.Prediction = *pred.Class
	} else if pred.Value != nil {
		resp.Prediction = *pred.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	dbUser, ok := user.GetDBUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	metas, err := h.envelope.ListModels(r.Context(), dbUser.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": metas})
}

func (h *ModelHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	dbUser, ok := user.GetDBUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	name := mux.Vars(r)["name"]
	if err := h.envelope.DeleteModel(r.Context(), name, dbUser.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": fmt.Sprintf("Model %s deleted", name)})
}

func (h *ModelHandler) GetTokens(w http.ResponseWriter, r *http.Request) {
	dbUser, ok := user.GetDBUserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	tokens, err := h.envelope.Balance(r.Context(), dbUser.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": dbUser.ID, "tokens": tokens})
}
