package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/user"
)

type AdminHandler struct {
	users user.Service
}

func NewAdminHandler(users user.Service) *AdminHandler {
	return &AdminHandler{users: users}
}

type AddTokensRequest struct {
	Amount int64 `json:"amount"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var minTokens int64
	if v := r.URL.Query().Get("min_tokens"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: min_tokens %q is not an integer", models.ErrInvalidArgument, v))
			return
		}
		minTokens = n
	}

	users, err := h.users.ListUsers(r.Context(), minTokens)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AdminHandler) AddTokens(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req AddTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", models.ErrInvalidArgument, err))
		return
	}

	balance, err := h.users.AddTokens(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if admin, ok := auth.GetUserFromRequest(r); ok {
		logger.Log.Info("admin added tokens", "admin_id", admin.ID, "user_id", userID, "amount", req.Amount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"user_id": userID,
		"tokens":  balance,
		"message": fmt.Sprintf("Added %d tokens to %s", req.Amount, userID),
	})
}

// DeleteUser removes a user together with every model they own.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	admin, ok := auth.GetUserFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	removed, err := h.users.DeleteUser(r.Context(), admin.ID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"user_id":        userID,
		"models_deleted": removed,
		"message":        fmt.Sprintf("User %s and all associated models deleted", userID),
	})
}
