// Command guildwatch is the main entrypoint for the community bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the flat-file document stores (config, dedup state, tickets).
//   - Connects the Discord gateway session and registers slash commands.
//   - Starts the Twitch live-stream and YouTube upload polling loops, the
//     ticket expiry sweep, the moderation logger, and the voice provisioner.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tetherbyte/guildwatch/bot"
	"github.com/tetherbyte/guildwatch/config"
	"github.com/tetherbyte/guildwatch/modlog"
	"github.com/tetherbyte/guildwatch/notify"
	"github.com/tetherbyte/guildwatch/poller"
	"github.com/tetherbyte/guildwatch/server"
	"github.com/tetherbyte/guildwatch/store"
	"github.com/tetherbyte/guildwatch/telemetry"
	"github.com/tetherbyte/guildwatch/tickets"
	"github.com/tetherbyte/guildwatch/twitchapi"
	"github.com/tetherbyte/guildwatch/voice"
	"github.com/tetherbyte/guildwatch/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("guildwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Document stores
	configStore, err := store.OpenConfig(cfg.ConfigPath())
	if err != nil {
		slog.Error("config store open failed", slog.Any("err", err))
		os.Exit(1)
	}
	stateStore, err := store.OpenState(cfg.StatePath())
	if err != nil {
		slog.Error("state store open failed", slog.Any("err", err))
		os.Exit(1)
	}
	ticketStore, err := store.OpenTickets(cfg.TicketsPath())
	if err != nil {
		slog.Error("ticket store open failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Platform clients; each loop runs only when its credentials are present.
	var twitchClient *twitchapi.Client
	if cfg.TwitchReady() {
		twitchClient = &twitchapi.Client{
			TokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:    cfg.TwitchClientID,
		}
	} else {
		slog.Info("twitch polling disabled: missing credentials")
	}
	var youtubeClient *youtubeapi.Client
	if cfg.YouTubeReady() {
		var err error
		youtubeClient, err = youtubeapi.New(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			slog.Error("youtube client init failed", slog.Any("err", err))
			os.Exit(1)
		}
	} else {
		slog.Info("youtube polling disabled: missing api key")
	}

	// Discord session and handlers
	b, err := bot.New(cfg.DiscordToken, configStore, stateStore, youtubeClient)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	engine := &tickets.Engine{Session: b.Session, Config: configStore, Tickets: ticketStore}
	b.Tickets = engine
	(&modlog.Logger{Session: b.Session, Config: configStore}).Register(b.Session)
	voice.NewProvisioner(b.Session, configStore).Register(b.Session)

	if err := b.Start(ctx); err != nil {
		slog.Error("discord start failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := b.Stop(); err != nil {
			slog.Error("discord close failed", slog.Any("err", err))
		}
	}()

	// Polling loops
	p := &poller.Poller{
		Config:          configStore,
		State:           stateStore,
		Dispatcher:      &notify.Dispatcher{Session: b.Session, BotUserID: b.BotUserID()},
		Guilds:          b,
		TwitchInterval:  cfg.TwitchPollInterval,
		YouTubeInterval: cfg.YouTubePollInterval,
		Ready:           b.Ready(),
	}
	if twitchClient != nil {
		p.Twitch = twitchClient
	}
	if youtubeClient != nil {
		p.YouTube = youtubeClient
	}
	go p.RunTwitch(ctx)
	go p.RunYouTube(ctx)
	go engine.RunCleanup(ctx, time.Hour)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	status := func() server.Status {
		ready := false
		select {
		case <-b.Ready():
			ready = true
		default:
		}
		streamers, channels, guilds := trackedCounts(configStore)
		s := server.Status{
			Ready:            ready,
			Guilds:           guilds,
			TrackedStreamers: streamers,
			TrackedChannels:  channels,
			OpenTickets:      ticketStore.CountOpen(),
			TwitchErrors:     p.ErrorCount("twitch"),
			YouTubeErrors:    p.ErrorCount("youtube"),
		}
		if t := p.LastTick("twitch"); !t.IsZero() {
			s.LastTwitchTick = &t
		}
		if t := p.LastTick("youtube"); !t.IsZero() {
			s.LastYouTubeTick = &t
		}
		return s
	}
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, status); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

func trackedCounts(cs *store.ConfigStore) (streamers, channels, guilds int) {
	snap := cs.Snapshot()
	for _, gc := range snap {
		if gc.Twitch != nil {
			streamers += len(gc.Twitch.Streamers)
		}
		if gc.YouTube != nil {
			channels += len(gc.YouTube.Channels)
		}
	}
	return streamers, channels, len(snap)
}
