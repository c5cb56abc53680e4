package user

import (
	"context"
	"net/http"

	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/logging"
	"github.com/blagoySimandov/trainer/internal/models"
)

type dbContextKey string

const (
	dbUserContextKey dbContextKey = "db_user"
)

func GetDBUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(dbUserContextKey).(*models.User)
	return user, ok
}

func WithDBUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, dbUserContextKey, u)
}

// UserMiddleware makes sure every authenticated caller has a ledger account.
func UserMiddleware(userService Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := auth.GetUserFromRequest(r)
			if !ok {
				http.Error(w, "Unauthorized: User not found in context", http.StatusUnauthorized)
				return
			}

			logging.EnrichUser(r.Context(), authUser.ID, authUser.Email)

			dbUser, err := userService.GetOrCreate(r.Context(), authUser.ID, authUser.Email)
			if err != nil {
				logger.Log.Error("failed to get or create user", "user_id", authUser.ID, "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDBUser(r.Context(), dbUser)))
		})
	}
}
