// roomshow is a single room's show controller: it loads one room's
// configuration, connects to that room's MQTT broker, and drives scenes
// started by a remote "<room>/scene START" message or the dashboard, until
// told to shut down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/dashboard"
	"github.com/Wadanator/museum-system-sub000/internal/history"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/config"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/database"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/mqtt"
	"github.com/Wadanator/museum-system-sub000/internal/media/audio"
	"github.com/Wadanator/museum-system-sub000/internal/media/video"
	_ "github.com/Wadanator/museum-system-sub000/migrations"
	"github.com/Wadanator/museum-system-sub000/internal/mqttcoord"
	"github.com/Wadanator/museum-system-sub000/internal/show"
	"github.com/Wadanator/museum-system-sub000/internal/telemetry"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// healthCheckInterval is the main controller loop's cadence: the device
// staleness sweep.
const healthCheckInterval = time.Second

func main() {
	fmt.Printf("roomshow %s (%s) built %s\n", version, commit, date)

	configPath := "./config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "roomshow: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logBuf := dashboard.NewLogBuffer(cfg.Dashboard.LogBufferSize)
	log := logging.NewWithWriter(cfg.Logging, version, logBuf)
	log.Info("starting room controller", "room_id", cfg.Room.ID)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	historyRepo := history.NewSQLiteRepository(db.DB)

	transport, err := mqtt.Connect(cfg.MQTT, cfg.ClientID())
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	transport.SetLogger(log)
	defer transport.Close()

	devices := mqttcoord.NewDeviceRegistry(time.Duration(cfg.Device.TimeoutSeconds)*time.Second, log)
	feedback := mqttcoord.NewFeedbackTracker(time.Duration(cfg.Feedback.TimeoutSeconds*float64(time.Second)), log)
	transitions := show.NewTransitionManager()

	loader := show.NewLoader(cfg.Media.RoomDir, cfg.Room.ID, mqttcoord.ValidatePublish)

	audioEngine := audio.NewEngine(audio.Config{
		Dir:             filepath.Join(cfg.Media.RoomDir, "scenes", cfg.Room.ID, "audio"),
		FFmpegBinary:    "ffmpeg",
		FFprobeBinary:   "ffprobe",
		MaxInitAttempts: cfg.Audio.MaxInitAttempts,
		InitRetryDelay:  time.Duration(cfg.Audio.InitRetryDelay) * time.Second,
		DefaultVolume:   cfg.Audio.DefaultVolume,
	}, log.With("component", "audio"))
	audioEngine.SetEndCallback(transitions.EnqueueAudioEnd)

	videoEngine, err := video.NewEngine(ctx, video.Config{
		Dir:                 filepath.Join(cfg.Media.RoomDir, "scenes", cfg.Room.ID, "videos"),
		PlayerBinary:        cfg.Video.PlayerBinary,
		IPCSocketPath:       cfg.Video.IPCSocketPath,
		IdleImagePath:       cfg.Video.IdleImagePath,
		HealthCheckInterval: time.Duration(cfg.Video.HealthCheckInterval) * time.Second,
		RestartCooldown:     time.Duration(cfg.Video.RestartCooldown) * time.Second,
		MaxRestartAttempts:  cfg.Video.MaxRestartAttempts,
	}, log.With("component", "video"))
	if err != nil {
		return fmt.Errorf("starting video engine: %w", err)
	}
	videoEngine.SetEndCallback(transitions.EnqueueVideoEnd)

	var tsdb *telemetry.Client
	if cfg.InfluxDB.Enabled {
		tsdb, err = telemetry.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("telemetry unavailable, continuing without it", "error", err)
			tsdb = nil
		} else {
			defer tsdb.Close()
		}
	}
	// runner is declared before the router's trigger closure captures it,
	// and assigned once the mqtt coordinator (which the router itself feeds
	// into) exists: the coordinator needs the router first, the executor and
	// runner need the finished coordinator as their MQTTClient.
	var runner *show.Runner
	onTrigger := func(topic string) {
		log.Info("scene trigger received", "topic", topic)
		startDefaultScene(ctx, cfg, loader, runner, transitions, log, "mqtt")
	}
	router := mqttcoord.NewRouter(devices, feedback, transitions, onTrigger, log)

	mqttClient, err := mqttcoord.New(transport, cfg.Room.ID, devices, feedback, router, log.With("component", "mqttcoord"))
	if err != nil {
		return fmt.Errorf("wiring mqtt coordinator: %w", err)
	}

	executor := show.NewExecutor(mqttClient, audioEngine, videoEngine, log)
	var telemetryWriter show.TelemetryWriter
	if tsdb != nil {
		telemetryWriter = tsdb
	}
	runner = show.NewRunner(cfg.Room.ID, executor, feedback, mqttClient, historyRepo, telemetryWriter, audioEngine, videoEngine, log.With("component", "scene_runner"))

	dash, err := dashboard.New(dashboard.Deps{
		Config:      cfg.Dashboard,
		Security:    cfg.Security,
		RoomID:      cfg.Room.ID,
		Version:     version,
		Logger:      log.With("component", "dashboard"),
		LogBuffer:   logBuf,
		Runner:      runner,
		Transitions: transitions,
		Loader:      loader,
		Executor:    executor,
		MQTT:        mqttClient,
		Devices:     devices,
		History:     historyRepo,
	})
	if err != nil {
		return fmt.Errorf("creating dashboard: %w", err)
	}
	if err := dash.Start(ctx); err != nil {
		return fmt.Errorf("starting dashboard: %w", err)
	}
	defer dash.Close() //nolint:errcheck // best-effort on shutdown path, logged internally

	log.Info("room controller ready", "room_id", cfg.Room.ID, "dashboard_addr", fmt.Sprintf("%s:%d", cfg.Dashboard.Host, cfg.Dashboard.Port))

	mainLoop(ctx, devices)

	log.Info("shutdown signal received, cleaning up")
	runner.Stop()
	videoEngine.Close() //nolint:errcheck // best-effort on shutdown path
	audioEngine.Stop()

	return nil
}

// mainLoop is the ~1 Hz controller loop: it sweeps stale devices from the
// registry. It blocks until ctx is cancelled. The media end-poll runs at
// the scene runner's own ~10 Hz tick rate instead (see show.Runner.tick),
// so an audioEnd/videoEnd transition is never more than one tick stale.
func mainLoop(ctx context.Context, devices *mqttcoord.DeviceRegistry) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			devices.CleanupStaleDevices()
		}
	}
}

// startDefaultScene loads and starts the room's default scene — the scene a
// bare remote "<room>/scene START" trigger starts, since it carries no scene
// name of its own.
func startDefaultScene(ctx context.Context, cfg *config.Config, loader *show.Loader, runner *show.Runner, transitions *show.TransitionManager, log *logging.Logger, trigger string) {
	scene, err := loader.LoadScene(cfg.Room.DefaultScene)
	if err != nil {
		log.Error("failed to load default scene", "scene", cfg.Room.DefaultScene, "error", err)
		return
	}
	if err := runner.StartScene(ctx, scene, transitions, trigger); err != nil {
		log.Warn("default scene start rejected", "error", err)
	}
}
