package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/user"
)

type RouterConfig struct {
	AllowedOrigin string
	AdminUserIDs  []string
}

func SetupRoutes(modelHandler *ModelHandler, adminHandler *AdminHandler, authMiddleware *auth.Middleware, userService user.Service, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(CORSMiddleware(cfg.AllowedOrigin))

	// Preflight requests match here so the CORS middleware can answer them.
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/model-types", modelHandler.ListModelTypes).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware.RequireAuth)
	api.Use(user.UserMiddleware(userService))

	api.HandleFunc("/models", modelHandler.CreateModel).Methods(http.MethodPost)
	api.HandleFunc("/models", modelHandler.ListModels).Methods(http.MethodGet)
	api.HandleFunc("/models/{name}", modelHandler.DeleteModel).Methods(http.MethodDelete)
	api.HandleFunc("/models/{name}/predict", modelHandler.Predict).Methods(http.MethodPost)
	api.HandleFunc("/tokens", modelHandler.GetTokens).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(AdminMiddleware(cfg.AdminUserIDs))
	admin.HandleFunc("/users", adminHandler.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userID}", adminHandler.DeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{userID}/tokens", adminHandler.AddTokens).Methods(http.MethodPost)

	return r
}
