package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/logging"
)

const (
	corsAllowOrigin      = "Access-Control-Allow-Origin"
	corsAllowMethods     = "Access-Control-Allow-Methods"
	corsAllowHeaders     = "Access-Control-Allow-Headers"
	corsAllowCredentials = "Access-Control-Allow-Credentials"
	allowedMethods       = "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders       = "Content-Type, Authorization"
	allowedCredentials   = "true"
	internalServerError  = "Internal server error"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware opens a wide event for the request and emits it once the
// handler returns.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		event := logging.NewWideEvent("http_request")
		ctx := logging.WithContext(r.Context(), event)
		logging.EnrichHTTP(ctx, r.Method, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			logging.EnrichHTTPStatus(ctx, rec.status)
			logging.EnrichHTTPDuration(ctx, time.Since(start))
			logging.Emit(ctx)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Log.Error("panic recovered", "panic", err, "path", r.URL.Path)
				logging.EnrichPanic(r.Context())
				http.Error(w, internalServerError, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(corsAllowOrigin, allowedOrigin)
			w.Header().Set(corsAllowMethods, allowedMethods)
			w.Header().Set(corsAllowHeaders, allowedHeaders)
			w.Header().Set(corsAllowCredentials, allowedCredentials)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware lets through only callers listed in adminIDs.
func AdminMiddleware(adminIDs []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := auth.GetUserFromRequest(r)
			if !ok || !slices.Contains(adminIDs, u.ID) {
				writeJSON(w, http.StatusForbidden, ErrorResponse{
					Status: "error",
					Kind:   "forbidden",
					Detail: "Admin privileges required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
