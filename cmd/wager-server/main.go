package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagerboard/internal/app/betting"
	"wagerboard/internal/app/challenge"
	"wagerboard/internal/app/gamble"
	"wagerboard/internal/config"
	"wagerboard/internal/ledger"
	"wagerboard/internal/logging"
	"wagerboard/internal/mcpserver"
	"wagerboard/internal/metrics"
	"wagerboard/internal/notify"
	"wagerboard/internal/store"
	"wagerboard/internal/store/postgres"
	"wagerboard/internal/store/sqlite"
	httptransport "wagerboard/internal/transport/http"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Server.StoreDriver).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	pub, err := notify.FromConfig(ctx, cfg.Notify)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Notify.Backend).Msg("notify init failed")
	}
	if d, ok := pub.(*notify.Dispatcher); ok {
		d.Start(ctx)
		defer stopNotifier(stop, d)
	}

	led := ledger.New(st, cfg.Server.DefaultBalance, ledger.WithTopUsersMax(cfg.Server.LeaderboardMax))
	svc := httptransport.Services{
		Store:    st,
		Ledger:   led,
		Registry: challenge.NewRegistry(st, led, challenge.WithNotifier(pub)),
		Engine:   betting.NewEngine(st, led, betting.WithNotifier(pub)),
		Gamble:   gamble.NewService(st, led),
	}
	if cfg.Server.MCPEnabled {
		svc.MCP = mcpserver.New(svc.Ledger, svc.Registry, svc.Engine, svc.Gamble).Handler()
	}
	r := httptransport.NewRouter(svc, cfg.Server.AdminAPIKey)
	httptransport.LogRoutes(r)

	metricsSrv := metrics.StartServer(cfg.Metrics.Addr, st.Ping)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Server.HTTPAddr).Str("store", cfg.Server.StoreDriver).Str("notify", cfg.Notify.Backend).
		Str("metrics_addr", cfg.Metrics.Addr).Msg("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}

// stopNotifier cancels the dispatcher's context, waits for an in-flight
// delivery to finish, then closes the underlying client.
func stopNotifier(cancel context.CancelFunc, d *notify.Dispatcher) {
	cancel()
	d.Wait()
	if err := d.Close(); err != nil {
		log.Warn().Err(err).Msg("notify close failed")
	}
}

func openStore(ctx context.Context, cfg config.ServerConfig) (store.Gateway, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return postgres.New(cfg.PostgresDSN)
	case config.StoreDriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
