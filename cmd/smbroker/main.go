// Command smbroker is a demo process wiring the library end to end: load
// bootstrap config, stand up a loopback transport and dispatcher, declare a
// message class, subscribe both handler styles, publish one message, then
// wait for a shutdown signal and drain gracefully.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartmessage/sm/config"
	"github.com/smartmessage/sm/dedup"
	"github.com/smartmessage/sm/dedup/memory"
	"github.com/smartmessage/sm/dedup/sharedstore"
	"github.com/smartmessage/sm/dispatch"
	"github.com/smartmessage/sm/filter"
	"github.com/smartmessage/sm/header"
	"github.com/smartmessage/sm/logging"
	"github.com/smartmessage/sm/schema"
	jsonserializer "github.com/smartmessage/sm/serializer/json"
	"github.com/smartmessage/sm/transport/loopback"
)

func main() {
	var cfg *config.Config
	var configSource string

	if len(os.Args) >= 2 {
		configFile := os.Args[1]
		loaded, err := config.Load(configFile)
		if err != nil {
			log.Fatalf("failed to load config from %s: %v", configFile, err)
		}
		cfg = loaded
		configSource = fmt.Sprintf("config file: %s", configFile)
	} else if _, err := os.Stat("config/smartmessage.yaml"); err == nil {
		loaded, err := config.Load("config/smartmessage.yaml")
		if err != nil {
			log.Printf("warning: config/smartmessage.yaml exists but failed to load: %v", err)
			cfg = getDefaultConfig()
			configSource = "hardcoded defaults (config/smartmessage.yaml failed to parse)"
		} else {
			cfg = loaded
			configSource = "config/smartmessage.yaml"
		}
	} else {
		cfg = getDefaultConfig()
		configSource = "hardcoded defaults"
	}

	log.Printf("starting smbroker using %s", configSource)

	logger := logging.Default()

	dispatcher := dispatch.New(dispatch.Config{
		WorkerPool:     cfg.WorkerPool.ToWorkerPoolConfig(),
		CircuitBreaker: cfg.CircuitBreaker.ToCircuitBreakerConfig(),
	}, logger)

	var store *sharedstore.Store
	if cfg.DDQ.Enabled && cfg.DDQ.Storage.Kind == "badger" {
		var err error
		store, err = sharedstore.Open(cfg.DDQ.Storage.ToSharedStoreConfig())
		if err != nil {
			log.Fatalf("failed to open shared DDQ store: %v", err)
		}
		defer store.Close()
	}

	tr := loopback.New("demo", jsonserializer.New(), dispatcher, logger)

	orderDescriptor := schema.New("OrderMessage",
		schema.WithVersion(1),
		schema.WithDescription("An order placed through the demo broker."),
		schema.WithDefaultFrom("smbroker-demo"),
		schema.WithTransport(tr),
		schema.WithProperty(schema.Property{
			Name:     "order_id",
			Required: true,
			Aliases:  []string{"orderId"},
		}),
		schema.WithProperty(schema.Property{
			Name:    "status",
			Default: schema.DefaultValue("pending"),
		}),
	)

	dispatcher.RegisterClass(orderDescriptor, dispatch.DDQConfig{
		Enabled:  cfg.DDQ.Enabled,
		NewQueue: ddqFactory(cfg, store),
	})

	allMessages, err := filter.Normalize(filter.Criteria{})
	if err != nil {
		log.Fatalf("failed to build filter: %v", err)
	}

	dispatcher.SubscribeSplit("OrderMessage", allMessages, func(h *header.Header, payload []byte) error {
		logger.Info("order received (split)", "uuid", h.UUID, "from", h.From)
		return nil
	})

	dispatcher.SubscribeUnified("OrderMessage", allMessages, func(m *schema.Message) error {
		orderID, _ := m.Get("order_id")
		status, _ := m.Get("status")
		logger.Info("order received (unified)", "order_id", orderID, "status", status)
		return nil
	})

	order, err := orderDescriptor.NewMessage("", "", "", map[string]interface{}{"order_id": "ORD-1001"})
	if err != nil {
		log.Fatalf("failed to construct demo order message: %v", err)
	}
	if err := order.Publish(); err != nil {
		log.Printf("publish failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Printf("dispatcher shutdown did not complete cleanly: %v", err)
	} else {
		log.Println("dispatcher shut down cleanly")
	}
}

// ddqFactory returns the dedup queue constructor a registered class uses
// (dispatch.DDQConfig.NewQueue): a fresh bounded ring per handler for the
// "memory" storage kind, or a shared-store-backed queue namespaced by its
// "class:handler_id" key for "badger".
func ddqFactory(cfg *config.Config, store *sharedstore.Store) func(ddqKey string) dedup.Queue {
	if cfg.DDQ.Storage.Kind == "badger" && store != nil {
		storeCfg := cfg.DDQ.Storage.ToSharedStoreConfig()
		return func(ddqKey string) dedup.Queue {
			return sharedstore.NewQueue(store, storeCfg, ddqKey, cfg.DDQ.Size)
		}
	}
	return func(ddqKey string) dedup.Queue {
		return memory.New(cfg.DDQ.Size)
	}
}

// getDefaultConfig returns hardcoded defaults used when no config file is
// available, mirroring config.applyDefaults' values directly so the demo
// never depends on a file existing on disk.
func getDefaultConfig() *config.Config {
	cfg := &config.Config{}
	empty := "/tmp/smartmessage-demo-ddq"
	cfg.DDQ.Storage.Dir = empty
	return configWithDefaults(cfg)
}

func configWithDefaults(cfg *config.Config) *config.Config {
	if cfg.WorkerPool.MaxWorkers == 0 {
		cfg.WorkerPool.MaxWorkers = 64
	}
	if cfg.WorkerPool.QueueSize == 0 {
		cfg.WorkerPool.QueueSize = 1024
	}
	if cfg.WorkerPool.IdleTimeoutSecs == 0 {
		cfg.WorkerPool.IdleTimeoutSecs = 30
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = 3
	}
	if cfg.CircuitBreaker.CooldownSecs == 0 {
		cfg.CircuitBreaker.CooldownSecs = 30
	}
	if cfg.DDQ.Size == 0 {
		cfg.DDQ.Size = 100
	}
	if cfg.DDQ.Storage.Kind == "" {
		cfg.DDQ.Storage.Kind = "memory"
	}
	return cfg
}
