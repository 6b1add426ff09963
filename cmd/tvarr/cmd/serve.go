package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/nekorec/blivec/internal/bili"
	"github.com/nekorec/blivec/internal/config"
	"github.com/nekorec/blivec/internal/diskspace"
	"github.com/nekorec/blivec/internal/events"
	internalhttp "github.com/nekorec/blivec/internal/http"
	"github.com/nekorec/blivec/internal/http/handlers"
	"github.com/nekorec/blivec/internal/httpclient"
	"github.com/nekorec/blivec/internal/notify"
	"github.com/nekorec/blivec/internal/task"
	"github.com/nekorec/blivec/internal/version"
)

// ErrInterrupted signals that the server exited because of a shutdown
// signal rather than an error, so main can exit 1 instead of 2.
var ErrInterrupted = fmt.Errorf("interrupted")

var (
	outDir     string
	serveHost  string
	servePort  int
	keyFile    string
	certFile   string
	apiKey     string
	ffmpegPath string
	openAdmin  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch configured rooms and serve the admin API",
	Long: `Start recording every room configured in the config file, and serve an
HTTP admin surface for starting, stopping, and reconfiguring rooms, and for
streaming live events and exceptions over WebSocket.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&outDir, "out-dir", "", "override output directory for every room (default: config file's output.out_dir)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "override admin server bind host (default: config file's server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override admin server bind port (default: config file's server.port)")
	serveCmd.Flags().StringVar(&keyFile, "key-file", "", "override TLS key file path")
	serveCmd.Flags().StringVar(&certFile, "cert-file", "", "override TLS certificate file path")
	serveCmd.Flags().StringVar(&apiKey, "api-key", "", "override the admin API key")
	serveCmd.Flags().StringVar(&ffmpegPath, "ffmpeg-path", "ffmpeg", "path to the ffmpeg binary used for remuxing")
	serveCmd.Flags().BoolVar(&openAdmin, "open", false, "open the admin UI in the default browser once the server is listening")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeOverrides(cfg)

	logger := slog.Default()

	api := bili.NewClient(cfg.Header.Cookie, cfg.Header.UserAgent)

	manager := task.NewManager(api, ffmpegPath)
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := manager.LoadAll(ctx, cfg.Tasks); err != nil {
		return fmt.Errorf("loading rooms: %w", err)
	}
	defer manager.DestroyAll()

	monitor := diskspace.New(logger, cfg.Output.Dir, int(cfg.Space.CheckInterval.Duration().Seconds()), cfg.Space.MinFreeSpace.Bytes())
	events.WireDiskSpace(monitor)
	monitor.Enable()
	defer monitor.Disable()

	reclaimer := diskspace.NewReclaimer(logger, monitor, cfg.Output.Dir, cfg.Space.RecycleRecordings)
	reclaimer.Enable()
	defer reclaimer.Disable()

	stopNotifiers := wireNotifiers(cfg, logger)
	defer stopNotifiers()

	serverCfg := internalhttp.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverCfg.APIKey = cfg.Server.APIKey
	serverCfg.KeyFile = cfg.Server.KeyFile
	serverCfg.CertFile = cfg.Server.CertFile

	server := internalhttp.NewServer(serverCfg, logger, version.Short())

	handlers.NewTasksHandler(manager).Register(server.API())
	handlers.NewSettingsHandler(manager, cfg).Register(server.API())
	handlers.NewHealthHandler(version.Short()).Register(server.API())
	server.Router().Get("/ws/v1/events", handlers.NewEventsWSHandler(logger).ServeHTTP)
	server.Router().Get("/ws/v1/exceptions", handlers.NewExceptionsWSHandler(logger).ServeHTTP)
	server.Router().Get("/docs", handlers.NewDocsHandler("blivec admin API", "/openapi.json").ServeHTTP)

	if openAdmin {
		go openBrowser(serverCfg.Host, serverCfg.Port, logger)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	if ctx.Err() != nil {
		return ErrInterrupted
	}
	return nil
}

// applyServeOverrides layers --out-dir/--host/--port/--key-file/--cert-file/
// --api-key onto the loaded config, matching blrec's CLI-over-config-file
// precedence.
func applyServeOverrides(cfg *config.Config) {
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if keyFile != "" {
		cfg.Server.KeyFile = keyFile
	}
	if certFile != "" {
		cfg.Server.CertFile = certFile
	}
	if apiKey != "" {
		cfg.Server.APIKey = apiKey
	}
}

// wireNotifiers constructs and enables every configured notification
// provider and webhook sink, returning a func that disables them all.
func wireNotifiers(cfg *config.Config, logger *slog.Logger) func() {
	client := httpclient.NewWithDefaults()
	var notifiers []*notify.Notifier
	var webhooks []*notify.Webhook

	if cfg.EmailNotify.Enabled {
		n := notify.NewNotifier("email", notify.NewEmailService(cfg.EmailNotify), cfg.EmailNotify.NotificationEvents, logger)
		n.Enable()
		notifiers = append(notifiers, n)
	}
	if cfg.ServerchanNotify.Enabled {
		n := notify.NewNotifier("serverchan", notify.NewServerchan(cfg.ServerchanNotify, client), cfg.ServerchanNotify.NotificationEvents, logger)
		n.Enable()
		notifiers = append(notifiers, n)
	}
	if cfg.PushplusNotify.Enabled {
		n := notify.NewNotifier("pushplus", notify.NewPushplus(cfg.PushplusNotify, client), cfg.PushplusNotify.NotificationEvents, logger)
		n.Enable()
		notifiers = append(notifiers, n)
	}
	for _, wc := range cfg.Webhooks {
		w := notify.NewWebhook(wc, client, cfg.Header.UserAgent, logger)
		w.Enable()
		webhooks = append(webhooks, w)
	}

	return func() {
		for _, n := range notifiers {
			n.Disable()
		}
		for _, w := range webhooks {
			w.Disable()
		}
	}
}

// openBrowser waits briefly for the server to come up, then launches the
// admin UI in the default browser.
func openBrowser(host string, port int, logger *slog.Logger) {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	time.Sleep(500 * time.Millisecond)
	url := fmt.Sprintf("http://%s:%d/docs", host, port)
	if err := browser.OpenURL(url); err != nil {
		logger.Warn("failed to open browser", slog.String("url", url), slog.String("error", err.Error()))
	}
}
