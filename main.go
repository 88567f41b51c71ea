package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/cmd"
	"github.com/smazurov/camstream/internal/api"
	"github.com/smazurov/camstream/internal/capture"
	"github.com/smazurov/camstream/internal/config"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/led"
	"github.com/smazurov/camstream/internal/logging"
	"github.com/smazurov/camstream/internal/metrics"
	"github.com/smazurov/camstream/internal/nats"
	"github.com/smazurov/camstream/internal/publish"
	"github.com/smazurov/camstream/internal/session"
	"github.com/smazurov/camstream/internal/status"
	"github.com/smazurov/camstream/internal/streamconfig"
	"github.com/smazurov/camstream/internal/supervisor"
	"github.com/smazurov/camstream/internal/sysstats"
	"github.com/smazurov/camstream/internal/systemd"
	"github.com/smazurov/camstream/internal/updater"
	"github.com/smazurov/camstream/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to daemon options file" short:"c" default:"/home/pi/streamer/camstream.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":5000" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Files
	StreamConfigFile string `help:"Stream configuration file" default:"/home/pi/streamer/config.json" toml:"files.stream_config" env:"STREAM_CONFIG_FILE"`
	StatusFile       string `help:"Status file shared with readers" default:"/home/pi/streamer/status.json" toml:"files.status" env:"STATUS_FILE"`
	LogFile          string `help:"Durable stream log" default:"/home/pi/streamer/logs/streamer.log" toml:"files.log" env:"LOG_FILE"`

	// Capture and publish settings
	CaptureDevice string `help:"Camera device, by-id name or testsrc" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureBinary string `help:"Binary reading the camera" default:"ffmpeg" toml:"capture.binary" env:"CAPTURE_BINARY"`
	PublishBinary string `help:"Binary encoding and publishing" default:"ffmpeg" toml:"publish.binary" env:"PUBLISH_BINARY"`
	WarmUpMs      int    `help:"Capture warm-up before publish is trusted, in milliseconds" default:"2000" toml:"session.warm_up_ms" env:"WARM_UP_MS"`
	TickSeconds   int    `help:"Status refresh and fault check interval in seconds" default:"10" toml:"session.tick_seconds" env:"TICK_SECONDS"`
	Autostart     bool   `help:"Start streaming when the daemon starts" default:"true" toml:"session.autostart" env:"AUTOSTART"`

	// Service manager settings
	ServiceName    string `help:"Streamer unit controlled by /api/control" default:"rtmp-streamer" toml:"service.name" env:"SERVICE_NAME"`
	ServiceBackend string `help:"Service manager backend (command, dbus)" default:"command" toml:"service.backend" env:"SERVICE_BACKEND"`

	// Features settings
	FeaturesLEDControl bool   `help:"Enable LED control" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	MetricsEnabled     bool   `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"features.metrics_enabled" env:"METRICS_ENABLED"`
	ProgressSocket     string `help:"Unix socket receiving ffmpeg progress, empty disables" default:"/tmp/camstream-progress.sock" toml:"features.progress_socket" env:"PROGRESS_SOCKET"`
	ThermalPath        string `help:"Thermal zone read for temperature" default:"/sys/class/thermal/thermal_zone0/temp" toml:"features.thermal_path" env:"THERMAL_PATH"`

	// NATS settings
	NATSServerURL string `help:"NATS server URL, empty disables" default:"" toml:"nats.url" env:"NATS_URL"`
	NATSEmbedded  bool   `help:"Run an embedded NATS server on 127.0.0.1:4222" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSNode      string `help:"Node name in NATS subjects, defaults to the hostname" default:"" toml:"nats.node" env:"NATS_NODE"`

	// Update settings
	UpdatePrerelease bool `help:"Consider prereleases for updates" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingPublish string `help:"Publish logging level" default:"info" toml:"logging.publish" env:"LOGGING_PUBLISH"`
	LoggingFFmpeg  string `help:"FFmpeg output logging level" default:"warn" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNATS    string `help:"NATS logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			if err := run(ctx, cancel, opts); err != nil {
				slog.Error("camstream exited", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			cancel()
			<-done
		})
	})

	root := cli.Root()
	root.Use = "camstream"
	root.Short = "Camera to RTMP streaming daemon"
	root.Version = version.Get().String()

	for _, sub := range []*cobra.Command{
		cmd.CreateStatusCmd(),
		cmd.CreateServiceCmd(),
		cmd.CreateConfigCmd(),
		cmd.CreateUpdateCmd(),
		cmd.CreateCtlCmd(),
	} {
		root.AddCommand(sub)
	}

	cli.Run()
}

// run wires every component and serves the supervisor tree until ctx is
// cancelled. cancel is used by the updater to restart the daemon.
func run(ctx context.Context, cancel context.CancelFunc, opts *Options) error {
	logging.Initialize(logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		File:   opts.LogFile,
		Modules: map[string]string{
			"session": opts.LoggingSession,
			"capture": opts.LoggingCapture,
			"publish": opts.LoggingPublish,
			"ffmpeg":  opts.LoggingFFmpeg,
			"api":     opts.LoggingAPI,
			"nats":    opts.LoggingNATS,
		},
	})
	logger := logging.GetLogger("main")
	logger.Info("Starting camstream", "version", version.Get().String())

	eventBus := events.New()
	logging.SetLogCallback(forwardLogs(eventBus))
	defer logging.SetLogCallback(nil)

	// Stream configuration, reloaded when edited by hand
	store := streamconfig.NewStore(opts.StreamConfigFile, logging.GetLogger("config"))
	initial := store.Load()
	logger.Info("Stream config loaded", "endpoint", initial.Redacted(), "resolution", initial.Resolution.String())

	watcher := config.NewWatcher(opts.StreamConfigFile, streamconfig.Parse, logging.GetLogger("config"),
		config.WithDebounce[streamconfig.StreamConfig](time.Second))
	watcher.OnReload(func(cfg streamconfig.StreamConfig) {
		if cfg == store.Current() {
			return
		}
		store.Replace(cfg)
		eventBus.Publish(events.ConfigChangedEvent{
			Source:    "file",
			Endpoint:  cfg.Redacted(),
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})

	// Pipeline
	device := capture.NewV4L2Device(capture.V4L2Options{
		Device:       opts.CaptureDevice,
		Binary:       opts.CaptureBinary,
		SysClassDir:  capture.DefaultSysClassDir,
		Logger:       logging.GetLogger("capture"),
		OutputLogger: logging.GetLogger("ffmpeg"),
	})
	publisher := publish.NewSupervisor(opts.PublishBinary, logging.GetLogger("publish"))
	publisher.OutputLogger = logging.GetLogger("ffmpeg")

	var progress *metrics.ProgressCollector
	if opts.MetricsEnabled && opts.ProgressSocket != "" {
		progress = metrics.NewProgressCollector(opts.ProgressSocket, logging.GetLogger("metrics"))
		// bound before autostart; Serve retries under the supervisor if this fails
		if err := progress.Listen(); err != nil {
			logger.Warn("Progress listener unavailable, publishing without progress reports", "error", err)
		}
		publisher.Progress = progress
	}

	reporter := status.NewReporter(opts.StatusFile, logging.GetLogger("status"))

	ctrl := session.New(session.Options{
		Device:       device,
		Publisher:    publisher,
		Config:       store,
		Status:       reporter,
		Bus:          eventBus,
		Logger:       logging.GetLogger("session"),
		WarmUp:       time.Duration(opts.WarmUpMs) * time.Millisecond,
		TickInterval: time.Duration(opts.TickSeconds) * time.Second,
		Autostart:    opts.Autostart,
	})

	// Collaborators
	services, err := systemd.New(ctx, opts.ServiceBackend)
	if err != nil {
		logger.Warn("Service manager unavailable, falling back to systemctl", "backend", opts.ServiceBackend, "error", err)
		services = systemd.NewCommandManager()
	}

	upd, err := updater.New(updater.Options{
		Prerelease: opts.UpdatePrerelease,
		Logger:     logging.GetLogger("updater"),
	})
	if err != nil {
		return fmt.Errorf("create updater: %w", err)
	}

	apiOpts := api.Options{
		Addr:         opts.Port,
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Session:      ctrl,
		Config:       store,
		StatusPath:   opts.StatusFile,
		LogFile:      opts.LogFile,
		Stats:        sysstats.NewCollector(opts.ThermalPath, logging.GetLogger("sysstats")),
		Services:     services,
		ServiceName:  opts.ServiceName,
		Updater:      upd,
		Restart:      restarter(services, opts.ServiceName, cancel, logger),
		EventBus:     eventBus,
		Logger:       logging.GetLogger("api"),
	}
	if opts.MetricsEnabled {
		apiOpts.PrometheusHandler = metrics.Handler()
	}

	tree := supervisor.NewTree(logging.GetLogger("supervisor"), supervisor.DefaultTreeConfig())

	if opts.FeaturesLEDControl {
		logger.Info("LED control enabled, initializing")
		ledController := led.New(logging.GetLogger("led"))
		ledManager := led.NewManager(ledController, eventBus, logging.GetLogger("led"))
		apiOpts.LEDs = ledController
		tree.AddMessagingService(supervisor.StartStop("led", func() error {
			ledManager.Start()
			return nil
		}, ledManager.Stop))
	}

	if progress != nil {
		tree.AddMessagingService(supervisor.Func("progress", progress.Serve))
	}

	var embedded *nats.Server
	if opts.NATSEmbedded {
		natsOpts := nats.DefaultServerOptions()
		natsOpts.Logger = logging.GetLogger("nats")
		embedded = nats.NewServer(natsOpts)
		tree.AddMessagingService(supervisor.Func("nats-server", embedded.Serve))
		if opts.NATSServerURL == "" {
			opts.NATSServerURL = embedded.ClientURL()
		}
	}
	if opts.NATSServerURL != "" {
		node := opts.NATSNode
		if node == "" {
			node, _ = os.Hostname()
		}
		client := nats.NewClient(opts.NATSServerURL, nats.Subjects{Node: node}, eventBus, ctrl, logging.GetLogger("nats"))
		tree.AddMessagingService(supervisor.Func("nats-client", func(ctx context.Context) error {
			if embedded != nil {
				if err := embedded.WaitReady(ctx); err != nil {
					return err
				}
			}
			return client.Serve(ctx)
		}))
	}

	server := api.NewServer(apiOpts)

	tree.AddCoreService(supervisor.Func("session", ctrl.Serve))
	tree.AddCoreService(supervisor.Func("config-watcher", watcher.Serve))
	tree.AddAPIService(supervisor.Func("http", server.Serve))

	logger.Info("Starting HTTP server", "port", opts.Port)
	err = tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		logger.Warn("Services did not stop in time", "count", len(report))
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("camstream stopped")
	return nil
}

// forwardLogs publishes every log entry on the bus for SSE clients.
func forwardLogs(bus *events.Bus) logging.LogCallback {
	var seq atomic.Uint64
	return func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{
			Seq:        seq.Add(1),
			Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
			Level:      entry.Level,
			Module:     entry.Module,
			Message:    entry.Message,
			Attributes: entry.Attributes,
		})
	}
}

// restarter asks the service manager to restart the unit so the new binary
// is started. When that fails the daemon stops and leaves the restart to the
// unit's Restart= policy.
func restarter(services systemd.Manager, unit string, cancel context.CancelFunc, logger *slog.Logger) func() {
	return func() {
		go func() {
			// let the HTTP response go out first
			time.Sleep(time.Second)
			ctx, stop := context.WithTimeout(context.Background(), 30*time.Second)
			defer stop()
			if err := services.Run(ctx, systemd.VerbRestart, unit); err != nil {
				logger.Error("Restart through service manager failed, exiting", "unit", unit, "error", err)
				cancel()
			}
		}()
	}
}
