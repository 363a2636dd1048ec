package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/access"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/repomanager"
)

const apiVersion = "v1"

// ServerService exposes public server info and the admin-only settings.
// Until an admin saves settings, the configured defaults are stored and
// used.
type ServerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	defaults    models.Settings
	limits      models.ServerLimits
}

func NewServerService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ServerService {
	return &ServerService{
		db:          db,
		repomanager: m,
		defaults:    models.Settings{RegistrationEnabled: cfg.RegistrationEnabled},
		limits: models.ServerLimits{
			MaxPageLimit:         cfg.MaxPageLimit,
			PresignExpirySeconds: int(cfg.PresignExpiry / time.Second),
		},
	}
}

func (s *ServerService) current(ctx context.Context) (*models.Settings, error) {
	repo := s.repomanager.Settings(s.db)
	cur, err := repo.Latest(ctx)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return repo.Save(ctx, &s.defaults)
}

func (s *ServerService) Info(ctx context.Context) (*models.ServerInfo, error) {
	cur, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ServerInfo{
		Version:             apiVersion,
		RegistrationEnabled: cur.RegistrationEnabled,
		Limits:              s.limits,
	}, nil
}

// RegistrationEnabled satisfies RegistrationGate.
func (s *ServerService) RegistrationEnabled(ctx context.Context) (bool, error) {
	cur, err := s.current(ctx)
	if err != nil {
		return false, err
	}
	return cur.RegistrationEnabled, nil
}

func adminOnly(user access.RequestingUser) error {
	return access.Validate(access.Rules{User: user, Unscoped: perms(access.SettingsManage)})
}

func (s *ServerService) Settings(ctx context.Context, user access.RequestingUser) (*models.Settings, error) {
	if err := adminOnly(user); err != nil {
		return nil, err
	}
	return s.current(ctx)
}

func (s *ServerService) UpdateSettings(ctx context.Context, user access.RequestingUser, patch models.SettingsPatch) (*models.Settings, error) {
	if err := adminOnly(user); err != nil {
		return nil, err
	}
	if patch.RegistrationEnabled == nil {
		return nil, common.ErrRequestInvalid.WithMessage("nothing to update")
	}

	cur, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	next := *cur
	next.RegistrationEnabled = *patch.RegistrationEnabled
	return s.repomanager.Settings(s.db).Save(ctx, &next)
}
