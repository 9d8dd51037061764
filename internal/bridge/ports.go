package bridge

import (
	"context"
	"time"

	"github.com/park285/tessu-bridge/internal/gamehost"
	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/notify"
	"github.com/park285/tessu-bridge/internal/usercache"
	"github.com/park285/tessu-bridge/internal/voicelink"
)

// Voice is the part of the voice link the bridge drives.
type Voice interface {
	PluginInfo(ctx context.Context) (voicelink.PluginInfo, error)
	SetMetadata(ctx context.Context, gameNick string) error
}

// Host is the part of the game host the bridge drives.
type Host interface {
	Me(ctx context.Context) (gamehost.Me, error)
	SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error
}

type Markers interface {
	Start(vehicleID int64, action string, interval time.Duration)
	Stop(vehicleID int64)
	StopAll()
}

type Notifier interface {
	SetEnabled(enabled bool)
	ShowInfo(ctx context.Context, text string) error
	ShowError(ctx context.Context, text string) error
	ShowCustom(ctx context.Context, m notify.Custom) (string, error)
	UpdateCustom(ctx context.Context, typeID, entityID string, item map[string]any) error
	AddActionHandler(action string, fn notify.ActionHandler)
	HandleAction(ctx context.Context, typeID, entityID, action string) bool
}

type Pairings interface {
	PlayersFor(ctx context.Context, uid string) ([]identity.PlayerID, error)
	AddPairing(ctx context.Context, p usercache.Pairing) error
}

// Installer launches the plugin installer and opens links.
type Installer interface {
	Install(path string) error
	Open(url string) error
}
