// Command stocksctl administers the stock request store: schema, claims and chat accounts.
package main

import (
	"context"
	"fmt"
	"os"

	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/pkg/logger"
)

func main() {
	cfg := config.Load()
	appLogger := logger.New(cfg.Environment, cfg.ServiceName+"-ctl")
	defer appLogger.Sync()

	open := func(ctx context.Context) (repository.Store, error) {
		return repository.Open(ctx, cfg, appLogger)
	}

	if err := newRootCmd(open, appLogger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stocksctl:", err)
		os.Exit(1)
	}
}
