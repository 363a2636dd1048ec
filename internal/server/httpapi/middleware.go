package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Authenticator resolves a bearer session token to the requesting user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (access.RequestingUser, error)
}

// WithRequestLogging logs method, path, status and duration of every request.
func WithRequestLogging(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}

// WithRecovery turns a panicking handler into the ErrSystem envelope.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func WithRecovery(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), "handler panicked",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
					"request_id", chiMiddleware.GetReqID(r.Context()),
				)
				writeError(w, r, logger, common.ErrSystem)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithBearerAuth rejects requests without a live session and stores the
// resolved user in the request context.
func WithBearerAuth(auth Authenticator, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, logger, common.ErrAccessUnauthorized.WithMessage("missing bearer token"))
				return
			}
			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(access.WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	if !strings.HasPrefix(h, common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, common.BearerPrefix))
	return token, token != ""
}

func requestingUser(r *http.Request) access.RequestingUser {
	u, _ := access.UserFromContext(r.Context())
	return u
}
