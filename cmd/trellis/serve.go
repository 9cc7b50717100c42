package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verdia/trellis/internal/cache"
	"github.com/verdia/trellis/internal/config"
	"github.com/verdia/trellis/internal/gateway"
	"github.com/verdia/trellis/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Trellis gateway",
		Long:  "Runs the HTTP gateway (REST plus websocket message streams) and the idle-conversation housekeeping schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "trellis.yaml", "path to Trellis config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Gateway.Port
	}

	db, err := store.Connect(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}
	if err := store.AutoMigrate(db); err != nil {
		return err
	}

	broker := store.NewBroker()
	st, err := store.New(store.Opts{DB: db, Broker: broker})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedis(ctx, cfg.Cache.Addr)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		cacheStore = redisStore
	default:
		cacheStore = cache.NewMemory()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if cfg.Housekeeping.Enabled {
		go func() {
			err := gateway.RunHousekeeping(ctx, gateway.HousekeepingOpts{
				Store:   st,
				Cron:    cfg.Housekeeping.Cron,
				IdleFor: cfg.Housekeeping.IdleAfter(),
				Out:     out,
			})
			if err != nil {
				fmt.Fprintf(out, "Housekeeping disabled: %v\n", err)
			}
		}()
	}

	return gateway.Start(ctx, gateway.StartOpts{
		Store:    st,
		Broker:   broker,
		Cache:    cacheStore,
		CacheTTL: cfg.Cache.TTL(),
		Port:     port,
		Out:      out,
	})
}
