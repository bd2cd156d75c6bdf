// Package client wires the queue, reconciler, monitor, feed sync and the
// local HTTP API into the long-running client process.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/viperadnan-git/tubestash/internal/client/api"
	"github.com/viperadnan-git/tubestash/internal/client/discovery"
	"github.com/viperadnan-git/tubestash/internal/client/library"
	"github.com/viperadnan-git/tubestash/internal/client/monitor"
	"github.com/viperadnan-git/tubestash/internal/client/publisher"
	"github.com/viperadnan-git/tubestash/internal/client/queue"
	"github.com/viperadnan-git/tubestash/internal/client/reconcile"
	"github.com/viperadnan-git/tubestash/internal/client/records"
	"github.com/viperadnan-git/tubestash/internal/client/remote"
	"github.com/viperadnan-git/tubestash/internal/config"
	"github.com/viperadnan-git/tubestash/internal/core/event"
)

func Run(ctx context.Context, cfg *config.Config) error {
	cfg.Logging.Apply()

	feedInterval := config.ParseDuration(cfg.Client.FeedPollInterval, 30*time.Minute)
	store, err := records.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxConnections,
		records.WithDefaultSettings(records.Settings{
			Concurrency:         cfg.Client.Concurrency,
			PollIntervalMinutes: int(feedInterval / time.Minute),
			MaxAgeDays:          cfg.Client.MaxAgeDays,
		}))
	if err != nil {
		return fmt.Errorf("open records: %w", err)
	}
	defer store.Close()

	settings, err := store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	bus := event.NewBus()
	if cfg.Events.AMQPURL != "" {
		pub, err := publisher.NewRabbitMQ(publisher.Config{
			URL:         cfg.Events.AMQPURL,
			Exchange:    cfg.Events.Exchange,
			Queue:       cfg.Events.Queue,
			RoutingKeys: publisher.Forwarded,
		})
		if err != nil {
			log.Warn().Err(err).Msg("event broker unavailable, events stay in-process")
		} else {
			defer pub.Close()
			detach := publisher.Attach(bus, pub, publisher.Forwarded...)
			defer detach()
		}
	}

	worker := remote.NewClient(cfg.Client.WorkerURL, config.ParseDuration(cfg.Client.RequestTimeout, 5*time.Second))

	var (
		syncer *discovery.Syncer
		rec    *reconcile.Reconciler
		lib    *library.Library
	)

	mon := monitor.New(worker, worker.BaseURL(),
		monitor.WithBus(bus),
		monitor.WithIntervals(
			config.ParseDuration(cfg.Client.ConnectedInterval, 60*time.Second),
			config.ParseDuration(cfg.Client.DisconnectedInterval, 30*time.Second),
		),
		monitor.WithHistory(store, func(ctx context.Context) {
			if _, err := syncer.Sync(ctx); err != nil {
				log.Error().Err(err).Msg("backlog pull failed")
			}
		}),
	)

	q := queue.New(worker, store, settings.Concurrency,
		queue.WithAuth(queue.CookieFile{Path: cfg.Client.CookiesPath}),
		queue.WithConnectivity(mon),
		queue.WithBus(bus),
		queue.WithOnSubmit(func() { rec.Ensure() }),
	)

	syncOpts := []discovery.Option{discovery.WithConnectivity(mon), discovery.WithBus(bus)}
	if cfg.Client.ShortsURL != "" {
		syncOpts = append(syncOpts, discovery.WithShortDetector(discovery.NewShortsProbe(cfg.Client.ShortsURL, 10*time.Second)))
	}
	syncer = discovery.NewSyncer(discovery.FileSource{Path: cfg.Client.BacklogFile}, q, store, syncOpts...)

	lib = library.New(store, worker, q, syncer,
		library.WithBus(bus),
		library.WithCleanupAfter(cfg.Client.CleanupAfterDays),
	)

	rec = reconcile.New(worker, store, q, config.ParseDuration(cfg.Client.DownloadPollInterval, time.Second),
		reconcile.WithConnectivity(mon),
		reconcile.WithBus(bus),
		reconcile.WithOnDone(func(ctx context.Context, _ records.Item) {
			if _, err := lib.CleanupOld(ctx); err != nil {
				log.Error().Err(err).Msg("cleanup failed")
			}
		}),
	)

	workCtx, workCancel := context.WithCancel(ctx)
	defer workCancel()

	// Records left in flight by a previous run are resubmitted once the
	// worker is reachable, before any backlog pull.
	var restoreOnce sync.Once
	unsubscribe := bus.Subscribe(event.EventConnectionRestored, func(ctx context.Context, _ event.Event) error {
		restoreOnce.Do(func() {
			if _, err := RestoreBacklog(ctx, store, q); err != nil {
				log.Error().Err(err).Msg("restore backlog failed")
			}
		})
		return nil
	})
	defer unsubscribe()

	untrace := bus.Subscribe(event.AllEvents, func(_ context.Context, e event.Event) error {
		log.Debug().Str("event", string(e.Type)).Str("event_id", e.ID).Interface("payload", e.Payload).Msg("event")
		return nil
	})
	defer untrace()

	unsubscribeDeleted := bus.Subscribe(event.EventVideoDeleted, func(_ context.Context, e event.Event) error {
		if v, ok := e.Payload.(event.VideoEvent); ok {
			rec.Forget(v.ID)
		}
		return nil
	})
	defer unsubscribeDeleted()

	if n, err := lib.CleanupOld(ctx); err != nil {
		log.Error().Err(err).Msg("startup cleanup failed")
	} else if n > 0 {
		log.Info().Int("cleaned", n).Msg("startup cleanup")
	}

	rec.Start(workCtx)
	go mon.Run(workCtx)
	go syncer.Run(workCtx, func() time.Duration {
		st, err := store.Settings(workCtx)
		if err != nil {
			return feedInterval
		}
		return st.PollInterval()
	})

	e := api.NewRouter(api.NewHandler(api.Deps{
		Queue:    q,
		Records:  store,
		Library:  lib,
		Syncer:   syncer,
		Monitor:  mon,
		Progress: rec,
		Disk:     worker,
	}))
	httpServer := &http.Server{Addr: cfg.Client.Listen, Handler: e}

	go func() {
		log.Info().
			Str("addr", cfg.Client.Listen).
			Str("worker", worker.BaseURL()).
			Int("concurrency", settings.Concurrency).
			Msg("client started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("client server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("client shutting down (signal)...")
	case <-ctx.Done():
		log.Info().Msg("client shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("client server shutdown error")
	}
	workCancel()
	lib.Wait()
	return nil
}
