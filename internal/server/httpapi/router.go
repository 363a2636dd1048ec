// Package httpapi exposes the sync services over HTTP with chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/healthcheck"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/services"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type AuthService interface {
	Authenticator
	Register(ctx context.Context, email, displayName, password string) (*models.User, string, error)
	Verify(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
}

type VaultService interface {
	Create(ctx context.Context, user access.RequestingUser, dto services.VaultCreate) (*models.Vault, error)
	Get(ctx context.Context, user access.RequestingUser, id string) (*models.Vault, error)
	Update(ctx context.Context, user access.RequestingUser, id string, patch models.VaultPatch) (*models.Vault, error)
	Delete(ctx context.Context, user access.RequestingUser, id string) error
	Query(ctx context.Context, user access.RequestingUser, q services.VaultQuery) (*models.Page[*models.Vault], error)
}

type VersionService interface {
	Create(ctx context.Context, user access.RequestingUser, vaultID string, dto services.VersionCreate) (*models.Version, error)
	Get(ctx context.Context, user access.RequestingUser, id string) (*models.Version, error)
	GetVersion(ctx context.Context, user access.RequestingUser, versionID string) (*models.Version, error)
	Delete(ctx context.Context, user access.RequestingUser, id string) (*models.Version, error)
	Query(ctx context.Context, user access.RequestingUser, vaultID string, q services.VersionQuery) (*models.Page[*models.Version], error)
	CommitFile(ctx context.Context, user access.RequestingUser, versionID string) (*models.Version, error)
	ListChunks(ctx context.Context, user access.RequestingUser, versionID string) ([]models.FileChunk, error)
}

type ChunkService interface {
	RequestUpload(ctx context.Context, user access.RequestingUser, vaultID, hash string, size int64) (string, error)
	RequestDownload(ctx context.Context, user access.RequestingUser, vaultID, hash string) (string, error)
	ListStored(ctx context.Context, user access.RequestingUser, vaultID string) ([]string, error)
}

type UserService interface {
	Get(ctx context.Context, user access.RequestingUser, id string) (*models.User, error)
	Update(ctx context.Context, user access.RequestingUser, id string, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, user access.RequestingUser, id string) error
}

type ServerService interface {
	Info(ctx context.Context) (*models.ServerInfo, error)
	Settings(ctx context.Context, user access.RequestingUser) (*models.Settings, error)
	UpdateSettings(ctx context.Context, user access.RequestingUser, patch models.SettingsPatch) (*models.Settings, error)
}

type HealthChecker interface {
	Check(ctx context.Context) healthcheck.Report
}

type SnapshotService interface {
	Get(ctx context.Context, user access.RequestingUser, vaultID string) (*models.Snapshot, error)
}

// PendingSource reports vaults changed by other sessions of the same user.
type PendingSource interface {
	Pending(userID, sessionID string) []string
}

// Services bundles the dependencies of the router.
type Services struct {
	Auth      AuthService
	Vaults    VaultService
	Versions  VersionService
	Chunks    ChunkService
	Snapshots SnapshotService
	Pending   PendingSource
	Users     UserService
	Server    ServerService
	Health    HealthChecker
}

type Handler struct {
	Services
	logger logging.Logger
}

// NewRouter mounts every endpoint. Everything except registration,
// verification, login, server info and health requires a bearer session
// token.
func NewRouter(s Services, logger logging.Logger) http.Handler {
	h := &Handler{Services: s, logger: logger.With("module", "httpapi")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(WithRequestLogging(h.logger))
	r.Use(WithRecovery(h.logger))
	r.Use(chiMiddleware.AllowContentType("application/json"))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify", h.Verify)
		r.Post("/login", h.Login)
		r.With(WithBearerAuth(s.Auth, h.logger)).Post("/logout", h.Logout)
	})

	r.Route("/server", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/info", h.ServerInfo)
		r.With(WithBearerAuth(s.Auth, h.logger)).Get("/settings", h.GetSettings)
		r.With(WithBearerAuth(s.Auth, h.logger)).Patch("/settings", h.UpdateSettings)
	})

	r.Group(func(r chi.Router) {
		r.Use(WithBearerAuth(s.Auth, h.logger))

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", h.GetUser)
			r.Patch("/", h.UpdateUser)
			r.Delete("/", h.DeleteUser)
		})

		r.Route("/vaults", func(r chi.Router) {
			r.Post("/", h.CreateVault)
			r.Get("/", h.QueryVaults)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetVault)
				r.Patch("/", h.UpdateVault)
				r.Delete("/", h.DeleteVault)
				r.Get("/snapshot", h.GetSnapshot)
				r.Get("/chunks", h.ListStoredChunks)
				r.Post("/versions", h.CreateVersion)
				r.Get("/versions", h.QueryVersions)
			})
		})

		r.Route("/versions/{versionId}", func(r chi.Router) {
			r.Get("/", h.GetVersion)
			r.Post("/commit", h.CommitFile)
			r.Get("/chunks", h.ListVersionChunks)
		})

		r.Get("/items/{id}", h.GetItem)
		r.Delete("/items/{id}", h.DeleteItem)

		r.Post("/chunks/{vaultId}/{hash}", h.RequestUpload)
		r.Get("/chunks/{vaultId}/{hash}", h.RequestDownload)

		r.Get("/events/pending", h.PendingEvents)
	})

	return r
}
