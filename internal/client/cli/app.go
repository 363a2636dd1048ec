package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/client/config"
	"github.com/dmitrijs2005/vaultsync/internal/client/models"
	"github.com/dmitrijs2005/vaultsync/internal/client/services"
	"github.com/dmitrijs2005/vaultsync/internal/client/store"
	clientsync "github.com/dmitrijs2005/vaultsync/internal/client/sync"
	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/events"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
)

// originCLI marks events of writes made through the CLI.
const originCLI = "cli"

const eventBuffer = 64

// App is everything one CLI process shares between commands.
type App struct {
	config *config.Config
	logger logging.Logger
	store  *store.Store
	api    *api.Client

	bus       *events.Bus
	broadcast *events.LocalBroadcast

	auth       *services.AuthService
	vaults     *services.VaultService
	entities   *services.EntityService
	reconciler *clientsync.Reconciler

	in  *bufio.Reader
	out io.Writer

	keys map[string][]byte
}

func NewApp(ctx context.Context, cfg *config.Config, in *bufio.Reader, out, errOut io.Writer) (*App, error) {
	logger, err := logging.NewJSONSlog(errOut, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.ServerURL, cfg.RequestTimeout)

	// Local writes and sync results go to the bus; the broadcast fans them
	// out to the watcher and the shell without echoing to their origin.
	bus := events.NewBus(eventBuffer)
	broadcast := events.NewLocalBroadcast(eventBuffer)
	go events.Relay(bus.Subscribe(), broadcast)

	return &App{
		config:     cfg,
		logger:     logger,
		store:      st,
		api:        client,
		bus:        bus,
		broadcast:  broadcast,
		auth:       services.NewAuthService(client, st),
		vaults:     services.NewVaultService(st, bus, originCLI),
		entities:   services.NewEntityService(st, client, bus, originCLI),
		reconciler: clientsync.NewReconciler(client, st, logger).WithPublisher(bus),
		in:         in,
		out:        out,
		keys:       make(map[string][]byte),
	}, nil
}

// unlock resolves ref and returns its key, asking for the vault password
// unless this process already unlocked it.
func (a *App) unlock(ctx context.Context, ref string) (*models.Vault, []byte, error) {
	v, err := a.vaults.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if key, ok := a.keys[v.ID]; ok {
		return v, key, nil
	}

	password, err := GetPassword(a.out, fmt.Sprintf("Password for vault %s: ", v.Name))
	if err != nil {
		return nil, nil, err
	}
	_, key, err := a.vaults.Unlock(ctx, v.ID, password)
	if err != nil {
		return nil, nil, err
	}
	a.keys[v.ID] = key
	return v, key, nil
}

func (a *App) lock(vaultID string) {
	if key, ok := a.keys[vaultID]; ok {
		common.WipeByteArray(key)
		delete(a.keys, vaultID)
	}
}

func (a *App) Close() error {
	for id := range a.keys {
		a.lock(id)
	}
	a.bus.Close()
	return a.store.Close()
}

// watcher follows the server and this process's own writes. It joins the
// broadcast as the reconciler's origin, so the reconciler's own
// announcements do not trigger another round.
func (a *App) watcher() *clientsync.Watcher {
	return clientsync.NewWatcher(a.reconciler, a.api, a.broadcast.Join(clientsync.Origin), a.config.OnlineCheckInterval, a.logger)
}
