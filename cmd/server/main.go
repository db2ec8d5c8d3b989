package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/config"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/db"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	httpapi "github.com/adrean-github/Proyecto-Yggdrasil/internal/http"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/inventory"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/notify"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/service"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/staging"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "yggdrasil-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var source upstream.Client
	if cfg.UpstreamURL == "" {
		source = &upstream.MockClient{}
		logger.Info().Msg("using mock upstream client")
	} else {
		source = upstream.HTTPClient{BaseURL: cfg.UpstreamURL}
	}

	var implements inventory.Provider
	if cfg.InventoryURL == "" {
		implements = inventory.MockProvider{}
		logger.Info().Msg("using mock inventory provider")
	} else {
		implements = inventory.HTTPProvider{BaseURL: cfg.InventoryURL}
	}

	bus := events.NewBus()
	hub := notify.NewHub(logger)

	conflicts := &service.ConflictService{Store: store, Logger: logger}
	agendas := &service.AgendaService{Store: store, Conflicts: conflicts, Bus: bus, Logger: logger}
	resolver := &service.Resolver{
		Store:     store,
		Conflicts: conflicts,
		Bus:       bus,
		Weights: service.Weights{
			SameCorridor:    cfg.WeightSameCorridor,
			DailyLoad:       cfg.WeightDailyLoad,
			HistoricalUse:   cfg.WeightHistoricalUse,
			PrincipalType:   cfg.WeightPrincipalType,
			SecondaryType:   cfg.WeightSecondaryType,
			ContinuousAvail: cfg.WeightContinuousAvail,
			MedicPreference: cfg.WeightMedicPreference,
		},
		Logger: logger,
	}
	dashboard := &service.DashboardService{
		Store:     store,
		Inventory: implements,
		Logger:    logger,
		TTL:       cfg.CacheTTL,
		OpenHour:  cfg.OpenHour,
		CloseHour: cfg.CloseHour,
	}
	updater := &service.Updater{
		Store:    store,
		Upstream: source,
		Bus:      bus,
		Interval: cfg.UpdaterInterval,
		Logger:   logger,
	}
	simulator := &service.Simulator{
		Store:     store,
		Conflicts: conflicts,
		Staging:   staging.NewStore(cfg.StagingTTL),
		Bus:       bus,
		Logger:    logger,
	}

	// Every agenda mutation invalidates the dashboard cache and is pushed to
	// websocket subscribers.
	bus.SubscribeAll(func(e events.Event) {
		dashboard.Invalidate(string(e.Type), e.Details)
		topic := notify.TopicAgendas
		if e.Type == events.BoxStateChanged {
			topic = notify.TopicBoxes
		}
		hub.Broadcast(topic, string(e.Type), e.Details)
		hub.Broadcast(notify.TopicDashboard, "invalidated", map[string]any{"reason": string(e.Type)})
	})

	updater.Start(ctx)
	defer updater.Stop()

	router := httpapi.Router(cfg, store, httpapi.Services{
		Agendas:   agendas,
		Conflicts: conflicts,
		Resolver:  resolver,
		Dashboard: dashboard,
		Updater:   updater,
		Simulator: simulator,
	}, hub, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
