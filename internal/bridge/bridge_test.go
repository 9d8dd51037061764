package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/park285/tessu-bridge/internal/config"
	"github.com/park285/tessu-bridge/internal/gamehost"
	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/msgcat"
	"github.com/park285/tessu-bridge/internal/notify"
	"github.com/park285/tessu-bridge/internal/roster"
	"github.com/park285/tessu-bridge/internal/usercache"
	"github.com/park285/tessu-bridge/internal/voicelink"
	"github.com/park285/tessu-bridge/internal/wsfeed"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type fakeHost struct {
	mu       sync.Mutex
	speaking map[identity.PlayerID]bool
	me       gamehost.Me
}

func (h *fakeHost) Me(context.Context) (gamehost.Me, error) {
	if h.me.Name == "" {
		return gamehost.Me{}, errors.New("not in game")
	}
	return h.me, nil
}

func (h *fakeHost) SetSpeaking(_ context.Context, id identity.PlayerID, on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.speaking == nil {
		h.speaking = map[identity.PlayerID]bool{}
	}
	h.speaking[id] = on
	return nil
}

func (h *fakeHost) isSpeaking(id identity.PlayerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.speaking[id]
}

type fakeVoice struct {
	info     voicelink.PluginInfo
	infoErr  error
	metadata []string
}

func (v *fakeVoice) PluginInfo(context.Context) (voicelink.PluginInfo, error) { return v.info, v.infoErr }

func (v *fakeVoice) SetMetadata(_ context.Context, nick string) error {
	v.metadata = append(v.metadata, nick)
	return nil
}

type fakeMarkers struct {
	mu      sync.Mutex
	running map[int64]string
}

func (m *fakeMarkers) Start(vid int64, action string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == nil {
		m.running = map[int64]string{}
	}
	m.running[vid] = action
}

func (m *fakeMarkers) Stop(vid int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.running, vid)
}

func (m *fakeMarkers) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = nil
}

func (m *fakeMarkers) isRunning(vid int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[vid]
	return ok
}

type fakeSink struct {
	mu      sync.Mutex
	pushed  []gamehost.Notification
	updated []gamehost.Notification
}

func (s *fakeSink) PushNotification(_ context.Context, n gamehost.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed = append(s.pushed, n)
	return nil
}

func (s *fakeSink) UpdateNotification(_ context.Context, n gamehost.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, n)
	return nil
}

type fakeInstaller struct {
	installed []string
	opened    []string
}

func (f *fakeInstaller) Install(path string) error {
	f.installed = append(f.installed, path)
	return nil
}

func (f *fakeInstaller) Open(url string) error {
	f.opened = append(f.opened, url)
	return nil
}

type BridgeSuite struct {
	suite.Suite

	mr        *miniredis.Miniredis
	store     *usercache.Store
	host      *fakeHost
	voice     *fakeVoice
	markers   *fakeMarkers
	sink      *fakeSink
	notes     *notify.Center
	installer *fakeInstaller
	state     *config.StateStore
	settings  *config.Settings
	battle    []identity.Player
	friends   []identity.Player
	bridge    *Bridge
	plugin    Plugin
}

func TestBridgeSuite(t *testing.T) { suite.Run(t, new(BridgeSuite)) }

func (s *BridgeSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.store = usercache.NewStore(rdb, nil)

	dir := s.T().TempDir()
	installer := filepath.Join(dir, "tessumod.ts3_plugin")
	s.Require().NoError(os.WriteFile(installer, []byte("x"), 0o644))
	s.state, err = config.OpenState(filepath.Join(dir, "state.yaml"))
	s.Require().NoError(err)

	s.host = &fakeHost{}
	s.voice = &fakeVoice{}
	s.markers = &fakeMarkers{}
	s.sink = &fakeSink{}
	s.installer = &fakeInstaller{}
	s.settings = config.DefaultSettings()
	s.settings.General.SpeakStopDelay = 0.05
	s.battle = []identity.Player{
		{ID: 1, Name: "Alice", Battle: &identity.BattleState{VehicleID: 101, Alive: true}},
		{ID: 2, Name: "Bob", Battle: &identity.BattleState{VehicleID: 102, Alive: false}},
		{ID: 9, Name: "Me", Battle: &identity.BattleState{VehicleID: 109, Alive: true}},
	}
	s.friends = []identity.Player{{ID: 3, Name: "Carol"}}
	s.plugin = Plugin{Version: 1, InstallerPath: installer, SupportURL: "https://example.invalid/support"}
	s.build()
}

func (s *BridgeSuite) TearDownTest() {
	s.bridge.Close()
	s.mr.Close()
}

func (s *BridgeSuite) build() {
	cat, err := msgcat.New("")
	s.Require().NoError(err)
	pool := &roster.Pool{
		Battle:  roster.SourceFunc(func(context.Context) []identity.Player { return s.battle }),
		Friends: roster.SourceFunc(func(context.Context) []identity.Player { return s.friends }),
	}
	s.notes = notify.NewCenter(s.sink)
	s.bridge = New(Deps{
		Pool:      pool,
		Voice:     s.voice,
		Host:      s.host,
		Markers:   s.markers,
		Notes:     s.notes,
		Pairings:  s.store,
		Installer: s.installer,
		Catalog:   cat,
		State:     s.state,
	}, s.settings, s.plugin)
}

func (s *BridgeSuite) talk(u voicelink.User, on bool) {
	u.Talking = on
	s.bridge.OnVoiceChange(context.Background(), voicelink.Change{Kind: voicelink.ChangeTalking, User: u})
}

func (s *BridgeSuite) TestSpeakingShowsIndicatorAndMarker() {
	alice := voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}
	s.talk(alice, true)

	s.True(s.host.isSpeaking(1))
	s.True(s.markers.isRunning(101))
	s.Equal([]identity.PlayerID{1}, s.bridge.Speaking(5))

	ids, err := s.store.PlayersFor(context.Background(), "uA")
	s.Require().NoError(err)
	s.Equal([]identity.PlayerID{1}, ids)
}

func (s *BridgeSuite) TestDeadPlayerGetsNoMarker() {
	s.talk(voicelink.User{ClientID: 6, UniqueID: "uB", Nickname: "Bob"}, true)
	s.True(s.host.isSpeaking(2))
	s.False(s.markers.isRunning(102))
}

func (s *BridgeSuite) TestStopWaitsForDelay() {
	alice := voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}
	s.talk(alice, true)
	s.talk(alice, false)

	s.True(s.host.isSpeaking(1), "indicator must survive until the delay passes")
	s.Eventually(func() bool { return !s.host.isSpeaking(1) }, time.Second, 5*time.Millisecond)
	s.False(s.markers.isRunning(101))
	s.Nil(s.bridge.Speaking(5))
}

func (s *BridgeSuite) TestRestartInsideDelayCancelsStop() {
	s.settings.General.SpeakStopDelay = 0.1
	alice := voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}
	s.talk(alice, true)
	s.talk(alice, false)
	s.talk(alice, true)

	time.Sleep(200 * time.Millisecond)
	s.True(s.host.isSpeaking(1))
	s.True(s.markers.isRunning(101))
}

func (s *BridgeSuite) TestLeaveClearsImmediately() {
	alice := voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}
	s.talk(alice, true)
	s.bridge.OnVoiceChange(context.Background(), voicelink.Change{Kind: voicelink.ChangeLeft, User: alice})
	s.False(s.host.isSpeaking(1))
	s.False(s.markers.isRunning(101))
}

func (s *BridgeSuite) TestSelfNotificationsAreGated() {
	s.settings.VoiceChatNotifications.SelfEnabled = false
	s.settings.MinimapNotifications.SelfEnabled = false
	s.talk(voicelink.User{ClientID: 1, UniqueID: "uMe", Nickname: "Me", IsMe: true}, true)
	s.False(s.host.isSpeaking(9))
	s.False(s.markers.isRunning(109))
}

func (s *BridgeSuite) TestDisabledNotificationsShowNothing() {
	s.settings.VoiceChatNotifications.Enabled = false
	s.settings.MinimapNotifications.Enabled = false
	s.talk(voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}, true)
	s.False(s.host.isSpeaking(1))
	s.False(s.markers.isRunning(101))
}

func (s *BridgeSuite) TestCachedPairingWins() {
	ctx := context.Background()
	s.Require().NoError(s.store.AddPairing(ctx, usercache.Pairing{UniqueID: "uX", Nickname: "Alice", PlayerID: 3, PlayerName: "Carol"}))
	s.talk(voicelink.User{ClientID: 7, UniqueID: "uX", Nickname: "Alice"}, true)
	s.True(s.host.isSpeaking(3))
	s.False(s.host.isSpeaking(1))
}

func (s *BridgeSuite) TestReplayDoesNotUpdateCache() {
	s.bridge.OnReplayStarted()
	s.talk(voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}, true)
	s.True(s.host.isSpeaking(1))
	ids, _ := s.store.PlayersFor(context.Background(), "uA")
	s.Empty(ids)

	s.bridge.OnBattleStarted()
	s.settings.General.UpdateCacheInReplays = true
	s.bridge.OnReplayStarted()
	s.talk(voicelink.User{ClientID: 6, UniqueID: "uB", Nickname: "Bob"}, true)
	ids, _ = s.store.PlayersFor(context.Background(), "uB")
	s.Equal([]identity.PlayerID{2}, ids)
}

func (s *BridgeSuite) TestRosterChangeReResolves() {
	ctx := context.Background()
	r := s.bridge.Roster
	r.Reset(voicelink.User{ClientID: 1, Nickname: "Me"}, []voicelink.User{{ClientID: 8, Nickname: "Dave"}})
	dave, _ := r.Get(8)
	dave.Talking = true
	r.Apply(mustEnvelope(voicelink.EventTalkStatus, map[string]any{"client_id": 8, "talking": true}))
	s.bridge.StartSpeaking(ctx, dave)
	s.Nil(s.bridge.Speaking(8))

	s.battle = append(s.battle, identity.Player{ID: 4, Name: "Dave", Battle: &identity.BattleState{VehicleID: 104, Alive: true}})
	s.bridge.OnRosterChanged(ctx)
	s.Equal([]identity.PlayerID{4}, s.bridge.Speaking(8))
	s.True(s.markers.isRunning(104))
}

func (s *BridgeSuite) TestSettingsSwap() {
	kaz := voicelink.User{ClientID: 5, Nickname: "Kaz"}
	s.talk(kaz, true)
	s.Nil(s.bridge.Speaking(5))

	next := config.DefaultSettings()
	next.NameMappings = map[string]string{"kaz": "Carol"}
	s.bridge.ApplySettings(next)
	s.talk(kaz, true)
	s.Equal([]identity.PlayerID{3}, s.bridge.Speaking(5))
}

func (s *BridgeSuite) TestConnectedPublishesMetadata() {
	s.host.me = gamehost.Me{ID: 9, Name: "Me"}
	s.bridge.Roster.Reset(voicelink.User{ClientID: 1, UniqueID: "uMe", Nickname: "someone"}, nil)
	s.bridge.OnVoiceChange(context.Background(), voicelink.Change{Kind: voicelink.ChangeConnected})
	s.Equal([]string{"Me"}, s.voice.metadata)

	ids, _ := s.store.PlayersFor(context.Background(), "uMe")
	s.Equal([]identity.PlayerID{9}, ids)

	s.bridge.OnNicknameChanged(context.Background(), "  ")
	s.bridge.OnNicknameChanged(context.Background(), "Renamed")
	s.Equal([]string{"Me", "Renamed"}, s.voice.metadata)
}

func (s *BridgeSuite) TestAdvertisementShownOnce() {
	ctx := context.Background()
	s.bridge.OnLobbyEntered(ctx)
	s.bridge.OnLobbyEntered(ctx)
	s.Require().Len(s.sink.pushed, 1)
	n := s.sink.pushed[0]
	s.Equal(notify.TypeCustom, n.Type)
	s.Contains(n.Message, "version 1")

	s.True(s.bridge.HandleHostAction(ctx, gamehost.NotificationAction{TypeID: n.Type, EntityID: n.ID, Action: ActionInstall}))
	s.Equal([]string{s.plugin.InstallerPath}, s.installer.installed)

	s.True(s.bridge.HandleHostAction(ctx, gamehost.NotificationAction{TypeID: n.Type, EntityID: n.ID, Action: ActionMoreInfo}))
	s.Equal([]string{s.plugin.SupportURL}, s.installer.opened)

	s.True(s.bridge.HandleHostAction(ctx, gamehost.NotificationAction{TypeID: n.Type, EntityID: n.ID, Action: ActionIgnore}))
	s.Equal(1, s.state.Get().IgnoredPluginVersion)
	s.Require().Len(s.sink.updated, 1)
	s.Equal(n.ID, s.sink.updated[0].ID)
	s.Equal(true, s.sink.updated[0].Item["ignored"])
	s.NotContains(s.sink.updated[0].Item, "buttons")

	s.False(s.bridge.HandleHostAction(ctx, gamehost.NotificationAction{TypeID: n.Type, EntityID: n.ID, Action: "other"}))
}

func (s *BridgeSuite) TestAdvertisementSuppressed() {
	ctx := context.Background()

	s.voice.info = voicelink.PluginInfo{Installed: true, Version: 1}
	s.bridge.OnLobbyEntered(ctx)
	s.Empty(s.sink.pushed, "plugin already installed")

	s.voice.info = voicelink.PluginInfo{}
	s.Require().NoError(s.state.Update(func(st *config.State) { st.IgnoredPluginVersion = 1 }))
	s.bridge.OnLobbyEntered(ctx)
	s.Empty(s.sink.pushed, "version ignored")

	s.Require().NoError(s.state.Update(func(st *config.State) { st.IgnoredPluginVersion = 0 }))
	s.Require().NoError(os.Remove(s.plugin.InstallerPath))
	s.bridge.OnLobbyEntered(ctx)
	s.Empty(s.sink.pushed, "installer missing")
}

func (s *BridgeSuite) TestBattleEndStopsMarkers() {
	s.talk(voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}, true)
	s.bridge.OnBattleEnded()
	s.False(s.markers.isRunning(101))
}

func (s *BridgeSuite) TestReconnectDropsSpeakersMissingFromSnapshot() {
	ctx := context.Background()
	r := s.bridge.Roster
	alice := voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}
	bob := voicelink.User{ClientID: 6, UniqueID: "uB", Nickname: "Bob"}
	r.Reset(voicelink.User{ClientID: 1, Nickname: "Me"}, []voicelink.User{alice, bob})
	s.talk(alice, true)
	s.talk(bob, true)
	s.Require().True(s.host.isSpeaking(1))
	s.Require().True(s.markers.isRunning(101))

	// Alice is gone after the reconnect and Bob is still talking.
	ch := r.Apply(mustEnvelope(voicelink.EventConnected, map[string]any{
		"me":      map[string]any{"client_id": 1, "nickname": "Me"},
		"clients": []map[string]any{{"client_id": 6, "unique_id": "uB", "nickname": "Bob", "talking": true}},
	}))
	s.Require().Equal(voicelink.ChangeConnected, ch.Kind)
	s.bridge.OnVoiceChange(ctx, ch)

	s.Nil(s.bridge.Speaking(5))
	s.False(s.host.isSpeaking(1))
	s.False(s.markers.isRunning(101))
	s.Equal([]identity.PlayerID{2}, s.bridge.Speaking(6))
}

func (s *BridgeSuite) TestVoiceDisconnectClearsEverySpeaker() {
	s.talk(voicelink.User{ClientID: 5, UniqueID: "uA", Nickname: "Alice"}, true)
	s.Require().True(s.markers.isRunning(101))

	s.bridge.OnVoiceDisconnected(context.Background())
	s.Nil(s.bridge.Speaking(5))
	s.False(s.host.isSpeaking(1))
	s.False(s.markers.isRunning(101))
}

func (s *BridgeSuite) TestNotificationsOnlyInLobby() {
	ctx := context.Background()
	s.bridge.OnBattleStarted()
	s.False(s.notes.Enabled())
	s.Require().NoError(s.notes.ShowInfo(ctx, "hidden"))
	s.Empty(s.sink.pushed)

	s.bridge.OnLobbyEntered(ctx)
	s.True(s.notes.Enabled())
	s.Len(s.sink.pushed, 1, "advertisement goes out once back in the lobby")

	s.bridge.OnReplayStarted()
	s.False(s.notes.Enabled())
}

func mustEnvelope(typ string, v any) wsfeed.Envelope {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return wsfeed.Envelope{Type: typ, Data: raw}
}
