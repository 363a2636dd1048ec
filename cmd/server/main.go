// Command server runs the vault sync API: the HTTP surface for clients, the
// gRPC health endpoint and the background sweepers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/vaultsync/internal/server"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
)

func run(ctx context.Context) error {
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	app.Run(ctx)
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
