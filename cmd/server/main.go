// Command server runs one authorization shard: it loads configuration,
// wires the event store, buffer, cache, bulk processor, shard client
// manager, operation router, and query service, then serves the HTTP
// transport until an interrupt signal triggers a graceful shutdown.
//
// Exit codes follow spec.md §6: 0 on a clean shutdown, 1 on a
// configuration validation failure, 2 on any other startup failure.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/config"
	"accessfabric/internal/domain"
	"accessfabric/internal/eventbuffer"
	"accessfabric/internal/eventstore"
	"accessfabric/internal/eventcache"
	"accessfabric/internal/hashring"
	"accessfabric/internal/metrics"
	"accessfabric/internal/notify"
	"accessfabric/internal/queryservice"
	"accessfabric/internal/router"
	"accessfabric/internal/shardclient"
	httptransport "accessfabric/internal/transport/http"
)

const exitConfig = 1
const exitStartup = 2

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration failed to load", "error", err)
		os.Exit(exitConfig)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(exitStartup)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Storage.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	store := eventstore.NewPostgresStore(db)
	m := metrics.New()
	tripSwitch := metrics.NewTripSwitch(m, nil)

	processor := bulkprocessor.New(store, tripSwitch, m, bulkprocessor.WithMaxRetries(cfg.Storage.MaxDeadlockRetries))
	cache := eventcache.New(cfg.Cache.CachedEventCount, m)
	publisher := notify.Publisher(notify.Noop{})

	buffer := eventbuffer.New(cfg.Buffer.SizeLimit, cfg.Buffer.FlushLoopInterval, processor, cache, publisher, m, log,
		eventbuffer.WithTripSwitch(tripSwitch))
	ctx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	buffer.Start(ctx)
	defer buffer.Stop()

	queries := queryservice.New(store)

	shardRecords := toShardRecords(cfg.Shards.Records)
	shards := shardclient.NewManager(shardclient.NewHTTPClient, shardclient.DefaultQuiesce)
	shards.Reconfigure(shardRecords)

	byID := make(map[string]domain.ShardConfigRecord, len(shardRecords))
	for _, rec := range shardRecords {
		byID[rec.ID] = rec
	}

	opRouter := router.New(shards, log)
	for _, w := range cfg.Routing.Windows {
		opRouter.Configure(domain.ElementKind(w.ElementKind), router.WindowConfig{
			RoutingOn:   w.RoutingInitiallyOn,
			SourceStart: w.SourceRangeStart,
			SourceEnd:   w.SourceRangeEnd,
			TargetStart: w.TargetRangeStart,
			TargetEnd:   w.TargetRangeEnd,
			Source:      byID[w.SourceShardID],
			Target:      byID[w.TargetShardID],
		})
	}

	handler := httptransport.NewRouter(httptransport.Deps{
		Buffer:          buffer,
		Queries:         queries,
		Processor:       processor,
		Cache:           cache,
		Shards:          shards,
		Router:          opRouter,
		TripSwitch:      tripSwitch,
		Metrics:         m,
		AdminSigningKey: []byte(cfg.Admin.SigningKey),
		Log:             log,
		Mode:            cfg.Mode,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func toShardRecords(records []config.ShardRecordConfig) []domain.ShardConfigRecord {
	out := make([]domain.ShardConfigRecord, len(records))
	for i, rec := range records {
		out[i] = domain.ShardConfigRecord{
			ID:             rec.ID,
			Kind:           domain.ElementKind(rec.Kind),
			Op:             domain.OpKind(rec.Op),
			HashRangeStart: rec.HashRangeStart,
			Client: domain.ClientConfig{
				Address:        rec.Address,
				DialTimeout:    rec.DialTimeout,
				RequestTimeout: rec.RequestTimeout,
			},
		}
	}
	return out
}
