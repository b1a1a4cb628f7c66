package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/gray-logic-valves/migrations"

	"github.com/nerrad567/gray-logic-valves/internal/api"
	"github.com/nerrad567/gray-logic-valves/internal/command"
	"github.com/nerrad567/gray-logic-valves/internal/entity"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-valves/internal/metrics"
	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/store"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

// shutdownSaveTimeout bounds the final state save.
const shutdownSaveTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the valve controllers",
	Long: `Run starts one controller per configured valve and the shared
actuation queue.

The service will:
1. Restore learned calibration from the database
2. Ingest device state from MQTT
3. Adjust valve positions and dispatch them through the queue
4. Save state again on shutdown`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx, getConfigPath())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the service lifecycle, separated from the command for testability.
// It blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Valves",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)
	states := store.NewSQLiteRepository(db.DB)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	entities := entity.NewStore(entity.WithLogger(log.Component("entities")))
	if err := entities.Subscribe(mqttClient, entity.SubscribeOptions{
		Bridges:         cfg.Sources.Bridges,
		Zigbee2MQTT:     cfg.Sources.Zigbee2MQTT.Enabled,
		Zigbee2MQTTBase: cfg.Sources.Zigbee2MQTT.BaseTopic,
	}); err != nil {
		return fmt.Errorf("subscribing to device state: %w", err)
	}

	dispatcher := command.NewDispatcher(mqttClient, command.Options{
		WaitForAck: cfg.Commands.WaitForAck,
		AckTimeout: config.Seconds(cfg.Commands.AckTimeout),
		Logger:     log.Component("commands"),
	})
	if cfg.Commands.WaitForAck {
		if err := dispatcher.SubscribeAcks(mqttClient); err != nil {
			return fmt.Errorf("subscribing to command acks: %w", err)
		}
	}

	qopts, err := queueOptions(cfg, entities, log.Component("queue"))
	if err != nil {
		return fmt.Errorf("configuring actuation queue: %w", err)
	}
	q := queue.New(qopts)

	registry, err := buildRegistry(cfg, controllerDeps{
		entities: entities,
		commands: dispatcher,
		queue:    q,
		states:   states,
		log:      log,
	})
	if err != nil {
		return err
	}
	if err := restoreState(ctx, registry, states, log); err != nil {
		return err
	}
	log.Info("valve controllers initialised", "valves", registry.Len())

	publishTelemetry(registry, q, mqttClient, influxClient, log)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Valves:  registry,
			Queue:   q,
			States:  states,
			MQTT:    mqttClient,
			DB:      db.DB,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		registry.Run(ctx, config.Seconds(cfg.Valves.TickInterval))
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
	defer cancel()
	saved := saveState(saveCtx, registry, states, log)
	log.Info("valve state saved", "valves", saved)

	log.Info("Gray Logic Valves stopped")
	return nil
}

// openDatabase opens and migrates the state database.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// publishTelemetry fans controller diagnostics and queue activity out to
// Prometheus, retained MQTT topics and InfluxDB (when enabled).
func publishTelemetry(reg *valve.Registry, q *queue.Queue, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) {
	metrics.Attach(q, reg)
	topics := mqtt.Topics{}

	reg.OnUpdate(func(d valve.Diagnostics) {
		if err := mqttClient.PublishJSON(topics.ValveState(d.ID), d, true); err != nil {
			log.Debug("publishing valve diagnostics", "valve", d.ID, "error", err)
		}
		if influxClient != nil && d.Updated {
			influxClient.WriteValveSample(valveSample(d))
		}
	})

	q.OnDepth(func(depth int) {
		if err := mqttClient.PublishJSON(topics.QueueDepth(), map[string]int{"depth": depth}, true); err != nil {
			log.Debug("publishing queue depth", "error", err)
		}
	})

	if influxClient != nil {
		q.OnDispatch(func(r queue.Result) {
			influxClient.WriteDispatch(dispatchSample(r))
		})
	}
}

// healthCheck returns the first failing dependency. influxClient is nil
// when telemetry is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
