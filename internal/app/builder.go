package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/tessu-bridge/internal/bridge"
	"github.com/park285/tessu-bridge/internal/config"
	"github.com/park285/tessu-bridge/internal/gamehost"
	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/marker"
	"github.com/park285/tessu-bridge/internal/msgcat"
	"github.com/park285/tessu-bridge/internal/notify"
	"github.com/park285/tessu-bridge/internal/obslog"
	"github.com/park285/tessu-bridge/internal/restclient"
	"github.com/park285/tessu-bridge/internal/usercache"
	"github.com/park285/tessu-bridge/internal/voicelink"
	"github.com/park285/tessu-bridge/internal/wsfeed"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App owns every long-lived component of the daemon.
type App struct {
	Bridge    *bridge.Bridge
	Watcher   *config.Watcher
	VoiceFeed *wsfeed.Feed
	HostFeed  *wsfeed.Feed
	Markers   *marker.Controller
	Store     *usercache.Store

	rdb    *redis.Client
	repo   *usercache.Repository
	logger *zap.Logger
}

// Build wires the application without touching the network; Run
// connects.
func Build(cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	state, err := config.OpenState(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	a := &App{rdb: redis.NewClient(opt), logger: logger}
	a.Store = usercache.NewStore(a.rdb, logger.Named("usercache"))
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := usercache.NewRepository(cfg.DatabaseURL)
		if err != nil {
			_ = a.rdb.Close()
			return nil, fmt.Errorf("init pairing repository: %w", err)
		}
		a.repo = repo
		a.Store.AttachRepository(repo)
	}

	headers := func() map[string]string {
		return map[string]string{"X-Client": "tessu-bridge/" + cfg.ModVersion}
	}
	voiceBase, voiceWS := cfg.VoiceBaseURL, cfg.VoiceWSURL
	if voiceBase == "" {
		voiceBase = settings.VoiceBaseURL()
	}
	if voiceWS == "" {
		voiceWS = settings.VoiceWSURL()
	}
	voiceREST := restclient.New(voiceBase, restclient.WithHeaderProvider(headers), restclient.WithTimeout(3*time.Second))
	hostREST := restclient.New(cfg.GameHostURL, restclient.WithHeaderProvider(headers), restclient.WithTimeout(3*time.Second))
	voice := voicelink.NewClient(voiceREST)
	host := gamehost.NewClient(hostREST, logger.Named("gamehost"))

	a.VoiceFeed = wsfeed.New(voiceWS,
		wsfeed.WithLogger(logger.Named("voicefeed")),
		wsfeed.WithHeaderProvider(headers),
		wsfeed.WithBackoff(settings.VoiceRetryInterval(), 10*time.Second),
		wsfeed.WithReconnect(cfg.MaxReconnectAttempts))
	if cfg.GameHostWSURL != "" {
		a.HostFeed = wsfeed.New(cfg.GameHostWSURL,
			wsfeed.WithLogger(logger.Named("hostfeed")),
			wsfeed.WithHeaderProvider(headers),
			wsfeed.WithReconnect(cfg.MaxReconnectAttempts))
	}

	egress := gamehost.NewEgress(cfg.HostTransport, host, a.HostFeed, logger.Named("egress"))
	a.Markers = marker.NewController(egress, logger.Named("marker"))
	notes := notify.NewCenter(host, notify.WithLogger(logger.Named("notify")))
	resolver := identity.NewResolver(settings.ResolverConfig(), logger.Named("identity"))

	a.Bridge = bridge.New(bridge.Deps{
		Resolver: resolver,
		Pool:     host.Pool(),
		Roster:   voicelink.NewRoster(),
		Voice:    voice,
		Host:     hostPort{Client: host, egress: egress},
		Markers:  a.Markers,
		Notes:    notes,
		Pairings: a.Store,
		Catalog:  catalog,
		State:    state,
		Logger:   logger.Named("bridge"),
	}, settings, bridge.Plugin{
		Version:       cfg.PluginVersion,
		InstallerPath: cfg.PluginInstaller,
		SupportURL:    cfg.SupportURL,
	})

	a.Watcher = config.NewWatcher(cfg.SettingsFile, settings, logger.Named("settings"), func(s *config.Settings) {
		obslog.SetLevel(s.General.LogLevel)
		a.Bridge.ApplySettings(s)
	})
	a.bind()
	return a, nil
}

// hostPort routes speaking indicators through the command egress and
// everything else through REST.
type hostPort struct {
	*gamehost.Client
	egress gamehost.Egress
}

func (h hostPort) SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error {
	return h.egress.SetSpeaking(ctx, id, speaking)
}

func (a *App) bind() {
	b := a.Bridge
	a.VoiceFeed.OnMessage(func(e wsfeed.Envelope) {
		ch := b.Roster.Apply(e)
		if ch.Kind != voicelink.ChangeNone {
			b.OnVoiceChange(context.Background(), ch)
		}
	})
	a.VoiceFeed.OnStateChange(func(s wsfeed.State) {
		a.logger.Info("voice_link_state", zap.String("state", s.String()))
		if s != wsfeed.StateConnected {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			b.OnVoiceDisconnected(ctx)
			cancel()
		}
	})
	if a.HostFeed == nil {
		return
	}
	gamehost.Bind(a.HostFeed, gamehost.Handlers{
		NotificationAction: func(act gamehost.NotificationAction) { b.HandleHostAction(context.Background(), act) },
		RosterChanged:      func() { b.OnRosterChanged(context.Background()) },
		LobbyEntered:       func() { go b.OnLobbyEntered(context.Background()) },
		BattleStarted:      b.OnBattleStarted,
		BattleEnded:        b.OnBattleEnded,
		ReplayStarted:      b.OnReplayStarted,
		NicknameChanged:    func(name string) { b.OnNicknameChanged(context.Background(), name) },
	}, a.logger.Named("hostfeed"))
}

// Run warms the pairing cache, connects both feeds and blocks until ctx
// ends. Feed connection failures are logged; the feeds keep redialing
// until Close.
func (a *App) Run(ctx context.Context) error {
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	if n, err := a.Store.Warm(ctx); err != nil {
		a.logger.Warn("pairing_warm_failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("pairing_warm_done", zap.Int("count", n))
	}

	for _, f := range []*wsfeed.Feed{a.VoiceFeed, a.HostFeed} {
		if f == nil {
			continue
		}
		if err := f.Connect(ctx); err != nil {
			a.logger.Warn("feed_connect_failed", zap.Error(err))
		}
	}
	go a.Watcher.Run(ctx)
	<-ctx.Done()
	return nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, f := range []*wsfeed.Feed{a.VoiceFeed, a.HostFeed} {
		if f != nil {
			errs = append(errs, f.Close(ctx))
		}
	}
	a.Bridge.Close()
	a.Markers.Close()
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	errs = append(errs, a.rdb.Close())
	return errors.Join(errs...)
}
