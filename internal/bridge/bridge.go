package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/tessu-bridge/internal/config"
	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/msgcat"
	"github.com/park285/tessu-bridge/internal/roster"
	"github.com/park285/tessu-bridge/internal/voicelink"
	"go.uber.org/zap"
)

// Deps are the collaborators of a Bridge. Pairings and Installer may be
// nil.
type Deps struct {
	Resolver  *identity.Resolver
	Pool      *roster.Pool
	Roster    *voicelink.Roster
	Voice     Voice
	Host      Host
	Markers   Markers
	Notes     Notifier
	Pairings  Pairings
	Installer Installer
	Catalog   *msgcat.Catalog
	State     *config.StateStore
	Logger    *zap.Logger
}

// Plugin describes the bundled voice client plugin.
type Plugin struct {
	Version       int
	InstallerPath string
	SupportURL    string
}

// Bridge pairs voice users with game players and mirrors their speaking
// state into the game.
type Bridge struct {
	Deps
	plugin   Plugin
	settings atomic.Pointer[config.Settings]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	speakers map[int]*speaker

	replay     atomic.Bool
	advertised atomic.Bool
}

// speaker is the visible effect of one talking voice user.
type speaker struct {
	user    voicelink.User
	shown   []identity.PlayerID
	markers []int64

	stop    *time.Timer
	stopGen int
}

func New(d Deps, settings *config.Settings, plugin Plugin) *Bridge {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Installer == nil {
		d.Installer = OSInstaller{}
	}
	if d.Roster == nil {
		d.Roster = voicelink.NewRoster()
	}
	if settings == nil {
		settings = config.DefaultSettings()
	}
	if d.Resolver == nil {
		d.Resolver = identity.NewResolver(settings.ResolverConfig(), d.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		Deps:     d,
		plugin:   plugin,
		ctx:      ctx,
		cancel:   cancel,
		speakers: make(map[int]*speaker),
	}
	b.settings.Store(settings)
	b.registerActions()
	return b
}

func (b *Bridge) Settings() *config.Settings { return b.settings.Load() }

// ApplySettings publishes a new settings snapshot. Resolutions already
// running finish with the old matching configuration.
func (b *Bridge) ApplySettings(s *config.Settings) {
	if s == nil {
		return
	}
	b.settings.Store(s)
	b.Resolver.Swap(s.ResolverConfig())
}

// Close cancels pending stop timers and clears every visible effect.
func (b *Bridge) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.clearAll(ctx)
	b.cancel()
}

// OnVoiceDisconnected clears every speaker; nobody is known to be talking
// while the voice link is down.
func (b *Bridge) OnVoiceDisconnected(ctx context.Context) { b.clearAll(ctx) }

func (b *Bridge) clearAll(ctx context.Context) {
	b.mu.Lock()
	all := b.speakers
	b.speakers = make(map[int]*speaker)
	for _, sp := range all {
		if sp.stop != nil {
			sp.stop.Stop()
		}
	}
	b.mu.Unlock()
	for _, sp := range all {
		b.clear(ctx, sp)
	}
}

// OnVoiceChange reacts to one roster change from the voice link.
func (b *Bridge) OnVoiceChange(ctx context.Context, ch voicelink.Change) {
	switch ch.Kind {
	case voicelink.ChangeConnected:
		b.PublishMetadata(ctx)
		talking := b.Roster.Talking()
		b.stopMissing(ctx, talking)
		for _, u := range talking {
			b.StartSpeaking(ctx, u)
		}
	case voicelink.ChangeTalking:
		if ch.User.Talking {
			b.StartSpeaking(ctx, ch.User)
		} else {
			b.StopSpeaking(ch.User.ClientID)
		}
	case voicelink.ChangeUpdated:
		if ch.User.Talking {
			b.StartSpeaking(ctx, ch.User)
		}
	case voicelink.ChangeLeft:
		b.stopNow(ctx, ch.User.ClientID)
	}
}

// stopMissing drops speakers that a fresh roster snapshot no longer shows
// as talking.
func (b *Bridge) stopMissing(ctx context.Context, talking []voicelink.User) {
	keep := make(map[int]bool, len(talking))
	for _, u := range talking {
		keep[u.ClientID] = true
	}
	b.mu.Lock()
	var gone []int
	for id := range b.speakers {
		if !keep[id] {
			gone = append(gone, id)
		}
	}
	b.mu.Unlock()
	for _, id := range gone {
		b.stopNow(ctx, id)
	}
}

// OnRosterChanged re-resolves every voice user that is talking right now.
func (b *Bridge) OnRosterChanged(ctx context.Context) {
	for _, u := range b.Roster.Talking() {
		b.StartSpeaking(ctx, u)
	}
}

// The host notification list is hidden in battles and replays, so pushes
// are only enabled in the lobby.

func (b *Bridge) OnReplayStarted() {
	b.replay.Store(true)
	b.setNotifications(false)
}

func (b *Bridge) OnBattleStarted() {
	b.replay.Store(false)
	b.setNotifications(false)
}

func (b *Bridge) setNotifications(enabled bool) {
	if b.Notes != nil {
		b.Notes.SetEnabled(enabled)
	}
}

// OnBattleEnded stops marker animations; vehicles of the finished battle
// no longer exist.
func (b *Bridge) OnBattleEnded() {
	b.replay.Store(false)
	b.mu.Lock()
	for _, sp := range b.speakers {
		sp.markers = nil
	}
	b.mu.Unlock()
	b.Markers.StopAll()
}
