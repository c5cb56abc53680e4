package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blagoySimandov/trainer/internal/adapters"
	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/metering"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/prediction"
	"github.com/blagoySimandov/trainer/internal/state"
	"github.com/blagoySimandov/trainer/internal/training"
	"github.com/blagoySimandov/trainer/internal/user"
)

var testSecret = []byte("api-test-secret")

const (
	testOrigin    = "http://localhost:5173"
	testAdminID   = "admin"
	testMaxUpload = 1 << 20
)

type testServer struct {
	router *mux.Router
	ledger *user.MemoryLedger
	store  *state.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	registry := adapters.NewRegistry()
	store := state.NewMemoryStore()
	ledger := user.NewMemoryLedger()
	envelope := metering.NewEnvelope(
		ledger,
		training.NewTrainer(registry, store),
		prediction.NewPredictor(registry, store),
		store,
		metering.Costs{Train: metering.DefaultTrainCost, Predict: metering.DefaultPredictCost},
	)
	userService := user.NewUserService(ledger, store, 15)
	verifier, err := auth.NewHMACVerifier(testSecret)
	require.NoError(t, err)
	router := SetupRoutes(
		NewModelHandler(envelope, registry, testMaxUpload),
		NewAdminHandler(userService),
		auth.NewMiddleware(verifier),
		userService,
		RouterConfig{AllowedOrigin: testOrigin, AdminUserIDs: []string{testAdminID}},
	)
	return &testServer{router: router, ledger: ledger, store: store}
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, req *http.Request, sub string) *httptest.ResponseRecorder {
	t.Helper()
	if sub != "" {
		req.Header.Set("Authorization", bearer(t, sub))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func linearCSV(n int) string {
	var b strings.Builder
	b.WriteString("x,colour,y\n")
	for i := 0; i < n; i++ {
		colour := "red"
		if i%2 == 1 {
			colour = "blue"
		}
		fmt.Fprintf(&b, "%d,%s,%d\n", i, colour, 2*i+1)
	}
	return b.String()
}

func trainForm(t *testing.T, csv string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if csv != "" {
		fw, err := mw.CreateFormFile("csv_file", "data.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(csv))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) train(t *testing.T, sub string, fields map[string]string) TrainResponse {
	t.Helper()
	rec := s.do(t, trainForm(t, linearCSV(40), fields), sub)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TrainResponse](t, rec)
}

func predictRequest(name string, body map[string]any) *http.Request {
	raw, _ := json.Marshal(body)
	return httptest.NewRequest(http.MethodPost, "/api/v1/models/"+name+"/predict", bytes.NewReader(raw))
}

func TestModelTypesIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/model-types", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[map[string][]ModelTypeInfo](t, rec)
	var types []string
	for _, info := range resp["model_types"] {
		types = append(types, string(info.ModelType))
	}
	assert.Equal(t, []string{"knn", "linear", "logistic", "random_forest"}, types)
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil)
	rec := s.do(t, req, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTrainPredictFlow(t *testing.T) {
	s := newTestServer(t)

	trained := s.train(t, "alice", map[string]string{
		"feature_cols": `["x", "colour"]`,
		"label_col":    "y",
		"model_type":   "linear",
		"seed":         "7",
	})
	assert.Equal(t, "success", trained.Status)
	assert.True(t, strings.HasPrefix(trained.ModelName, "alice.linear_"))
	assert.InDelta(t, 1.0, trained.Metrics.R2Score, 1e-6)
	assert.Equal(t, 32, trained.Metrics.TrainRows)
	assert.Equal(t, 8, trained.Metrics.TestRows)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 14, decode[map[string]any](t, rec)["tokens"])

	rec = s.do(t, predictRequest(trained.ModelName, map[string]any{
		"features": map[string]any{"x": 100, "colour": "red"},
	}), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pred := decode[PredictResponse](t, rec)
	assert.Equal(t, "success", pred.Status)
	assert.InDelta(t, 201.0, pred.Prediction, 1e-3)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil), "alice")
	assert.EqualValues(t, 9, decode[map[string]any](t, rec)["tokens"])

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]map[string]any](t, rec)["models"]
	require.Len(t, listed, 1)
	assert.Equal(t, trained.ModelName, listed[0]["model_name"])
	assert.NotContains(t, listed[0], "fitted_state")
}

func TestTrainCommaSeparatedFeatures(t *testing.T) {
	s := newTestServer(t)
	trained := s.train(t, "alice", map[string]string{
		"feature_cols":     "x, colour",
		"label_col":        "y",
		"model_type":       "knn",
		"model_name":       "my model!",
		"train_percentage": "0.5",
		"optional_params":  `{"n_neighbors": 3}`,
	})
	assert.Equal(t, "alice.my_model", trained.ModelName)
	assert.Equal(t, 20, trained.Metrics.TrainRows)
}

func TestTrainErrors(t *testing.T) {
	base := map[string]string{
		"feature_cols": `["x"]`,
		"label_col":    "y",
		"model_type":   "linear",
	}
	with := func(k, v string) map[string]string {
		out := make(map[string]string, len(base)+1)
		for key, val := range base {
			out[key] = val
		}
		out[k] = v
		return out
	}

	tests := []struct {
		name   string
		csv    string
		fields map[string]string
		status int
		kind   string
	}{
		{"missing file", "", base, http.StatusBadRequest, "invalid_dataset"},
		{"header only", "x,y\n", base, http.StatusBadRequest, "invalid_dataset"},
		{"unknown model type", linearCSV(10), with("model_type", "svm"), http.StatusBadRequest, "unknown_model_type"},
		{"unknown column", linearCSV(10), with("label_col", "z"), http.StatusBadRequest, "unknown_column"},
		{"label among features", linearCSV(10), with("feature_cols", "x,y"), http.StatusBadRequest, "invalid_role_assignment"},
		{"bad ratio", linearCSV(10), with("train_percentage", "1.5"), http.StatusBadRequest, "invalid_split_ratio"},
		{"bad params json", linearCSV(10), with("optional_params", "{"), http.StatusBadRequest, "invalid_hyperparameter"},
		{"too few rows", linearCSV(3), base, http.StatusBadRequest, "insufficient_data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, trainForm(t, tt.csv, tt.fields), "alice")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, rec).Kind)

			tokens, err := s.ledger.GetTokens(context.Background(), "alice")
			require.NoError(t, err)
			assert.EqualValues(t, 15, tokens)
		})
	}
}

func TestTrainUploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	big := linearCSV(100000)
	require.Greater(t, len(big), testMaxUpload)

	rec := s.do(t, trainForm(t, big, map[string]string{
		"feature_cols": "x",
		"label_col":    "y",
		"model_type":   "linear",
	}), "alice")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredictErrors(t *testing.T) {
	s := newTestServer(t)
	trained := s.train(t, "alice", map[string]string{
		"feature_cols": "x,colour",
		"label_col":    "y",
		"model_type":   "linear",
	})

	t.Run("missing features body", func(t *testing.T) {
		rec := s.do(t, predictRequest(trained.ModelName, map[string]any{"x": 1}), "alice")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing feature", func(t *testing.T) {
		rec := s.do(t, predictRequest(trained.ModelName, map[string]any{
			"features": map[string]any{"x": 1},
		}), "alice")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_feature", decode[ErrorResponse](t, rec).Kind)
	})

	t.Run("other owner sees not found", func(t *testing.T) {
		rec := s.do(t, predictRequest(trained.ModelName, map[string]any{
			"features": map[string]any{"x": 1, "colour": "red"},
		}), "mallory")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Kind)

		tokens, err := s.ledger.GetTokens(context.Background(), "mallory")
		require.NoError(t, err)
		assert.EqualValues(t, 15, tokens)
	})

	t.Run("unknown model", func(t *testing.T) {
		rec := s.do(t, predictRequest("alice.nope", map[string]any{
			"features": map[string]any{"x": 1},
		}), "alice")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	tokens, err := s.ledger.GetTokens(context.Background(), "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 14, tokens)
}

func TestPredictInsufficientTokens(t *testing.T) {
	s := newTestServer(t)
	trained := s.train(t, "alice", map[string]string{
		"feature_cols": "x",
		"label_col":    "y",
		"model_type":   "linear",
	})
	_, err := s.ledger.AdjustTokens(context.Background(), "alice", -10)
	require.NoError(t, err)

	rec := s.do(t, predictRequest(trained.ModelName, map[string]any{
		"features": map[string]any{"x": 1},
	}), "alice")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_tokens", decode[ErrorResponse](t, rec).Kind)
}

func TestDeleteModel(t *testing.T) {
	s := newTestServer(t)
	trained := s.train(t, "alice", map[string]string{
		"feature_cols": "x",
		"label_col":    "y",
		"model_type":   "linear",
	})
	path := "/api/v1/models/" + trained.ModelName

	rec := s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), "mallory")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	addTokens := func(sub, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/"+target+"/tokens", strings.NewReader(body))
		return s.do(t, req, sub)
	}

	rec := addTokens("alice", "alice", `{"amount": 100}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = addTokens(testAdminID, "bob", `{"amount": 100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 115, decode[map[string]any](t, rec)["tokens"])

	rec = addTokens(testAdminID, "bob", `{"amount": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?min_tokens=100", nil), testAdminID)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[map[string][]map[string]any](t, rec)["users"]
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0]["id"])

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?min_tokens=abc", nil), testAdminID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDeleteUser(t *testing.T) {
	s := newTestServer(t)
	trained := s.train(t, "alice", map[string]string{
		"feature_cols": "x",
		"label_col":    "y",
		"model_type":   "linear",
	})
	s.train(t, "bob", map[string]string{
		"feature_cols": "x",
		"label_col":    "y",
		"model_type":   "linear",
	})

	deleteUser := func(sub, target string) *httptest.ResponseRecorder {
		return s.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/users/"+target, nil), sub)
	}

	assert.Equal(t, http.StatusForbidden, deleteUser("bob", "alice").Code)

	rec := deleteUser(testAdminID, testAdminID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_argument", decode[ErrorResponse](t, rec).Kind)

	assert.Equal(t, http.StatusNotFound, deleteUser(testAdminID, "nobody").Code)

	rec = deleteUser(testAdminID, "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["models_deleted"])

	_, err := s.store.Load(context.Background(), trained.ModelName)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.ledger.GetTokens(context.Background(), "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)

	bobModels, err := s.store.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, bobModels, 1)
}
