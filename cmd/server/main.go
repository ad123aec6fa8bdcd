// Command server starts the payment-session service: it loads config,
// wires the registry, a ChainWatcher per active chain, the
// ExpiryScanner, the webhook/NATS subscribers, and the HTTP API, then
// blocks until SIGINT/SIGTERM triggers a graceful shutdown. Grounded
// on the signal-driven shutdown of a sibling pack repo's
// services/escrow-gateway/main.go (the teacher has no long-running
// server entrypoint), generalized from a single HTTP server to the
// service's full set of background loops.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/address"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/chain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/expiry"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/registry"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/router"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/store"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/watcher"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/webhook"
)

const shutdownDeadline = 5 * time.Second

func main() {
	log := logrus.New()
	configureLogger(log)
	entry := log.WithField("component", "server")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		entry.WithError(err).Fatal("failed to load config")
	}
	entry.WithField("loadedAt", config.Now()).Info("config loaded")

	dataStore, err := buildStore(cfg)
	if err != nil {
		entry.WithError(err).Fatal("failed to initialize store")
	}
	defer dataStore.Close()

	bus := eventbus.New(entry.WithField("component", "eventbus"))
	addrSrc := address.NewPoolSource(cfg.Chains)
	reg := registry.New(cfg, bus, addrSrc, dataStore, entry.WithField("component", "registry"))
	defer reg.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Restore(ctx); err != nil {
		entry.WithError(err).Fatal("failed to restore state from durable store")
	}

	watchers := make(map[string]*watcher.ChainWatcher)
	statusers := make(map[string]api.WatcherStatuser)
	for _, network := range cfg.ActiveNetworks {
		chainCfg, ok := cfg.Chains[network]
		if !ok {
			entry.WithField("network", network).Warn("activeNetworks entry has no chain config, skipping")
			continue
		}

		client, err := chain.Dial(chainCfg.RPCURL, chain.DefaultTimeout)
		if err != nil {
			entry.WithFields(logrus.Fields{"network": network, "error": err}).Error("watcher: failed to dial chain, skipping")
			continue
		}

		w := watcher.New(chainCfg, client, reg, bus, entry)
		if err := w.Initialize(ctx); err != nil {
			entry.WithFields(logrus.Fields{"network": network, "error": err}).Error("watcher: failed to initialize, skipping")
			continue
		}

		watchers[network] = w
		statusers[network] = w
		go w.Start(ctx)
		entry.WithField("network", network).Info("watcher started")
	}

	scanInterval := time.Duration(cfg.ExpiryScanIntervalSeconds) * time.Second
	scanner := expiry.New(reg, scanInterval, entry.WithField("component", "expiry"))
	go scanner.Start(ctx)

	var dispatcher *webhook.Dispatcher
	if cfg.Webhook.Enabled {
		dispatcher = webhook.NewDispatcher(cfg.Webhook.URL, cfg.Webhook.Secret, bus, entry.WithField("component", "webhook"))
		go dispatcher.Start(ctx)
	}

	var natsRelay *webhook.NATSRelay
	if cfg.NATS.Enabled {
		natsRelay, err = webhook.NewNATSRelay(
			cfg.NATS.URL,
			cfg.NATS.SubjectPrefix,
			time.Duration(cfg.NATS.ReconnectWait)*time.Second,
			cfg.NATS.MaxReconnects,
			bus,
			entry.WithField("component", "nats"),
		)
		if err != nil {
			entry.WithError(err).Error("nats: failed to connect, relay disabled")
		} else {
			go natsRelay.Start(ctx)
		}
	}

	facade := api.New(reg, bus, cfg.Chains, statusers)
	engine := router.SetupRouter(cfg, facade, entry.WithField("component", "http"))

	addr := cfg.Server.Host + ":" + portOrDefault(cfg.Server.Port)
	httpSrv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		entry.WithField("addr", addr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	entry.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		entry.WithError(err).Error("http server graceful shutdown failed")
	}

	for network, w := range watchers {
		w.Stop()
		entry.WithField("network", network).Info("watcher stopped")
	}
	scanner.Stop()
	if dispatcher != nil {
		dispatcher.Stop()
	}
	if natsRelay != nil {
		natsRelay.Stop()
	}
	cancel()

	entry.Info("shutdown complete")
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.Store.DSN)
	default:
		return store.NewMemoryStore(), nil
	}
}

func portOrDefault(port int) string {
	if port == 0 {
		return "8080"
	}
	return strconv.Itoa(port)
}

// configureLogger selects the formatter and level the way the
// teacher's own services do: JSON in production, human-readable text
// for local development, both already registered and picked by env
// rather than a code change.
func configureLogger(log *logrus.Logger) {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
