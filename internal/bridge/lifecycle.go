package bridge

import (
	"context"
	"os"
	"strings"

	"github.com/park285/tessu-bridge/internal/config"
	"github.com/park285/tessu-bridge/internal/gamehost"
	"github.com/park285/tessu-bridge/internal/icon"
	"github.com/park285/tessu-bridge/internal/notify"
	"go.uber.org/zap"
)

// Button actions of the plugin advertisement.
const (
	ActionInstall  = "TessuModTSPluginInstall"
	ActionMoreInfo = "TessuModTSPluginMoreInfo"
	ActionIgnore   = "TessuModTSPluginIgnore"
)

// PublishMetadata writes our game nickname into voice metadata and pairs
// our own voice identity with our player.
func (b *Bridge) PublishMetadata(ctx context.Context) {
	me, err := b.Host.Me(ctx)
	if err != nil {
		b.Logger.Debug("game_identity_unavailable", zap.Error(err))
		return
	}
	b.publishNickname(ctx, me.Name)
	if self, ok := b.Roster.Me(); ok && me.ID != 0 {
		b.remember(ctx, self, gamehost.PlayerRecord{ID: me.ID, Name: me.Name}.Player())
	}
}

// OnNicknameChanged republishes metadata after the host reported a new
// own nickname.
func (b *Bridge) OnNicknameChanged(ctx context.Context, name string) {
	b.publishNickname(ctx, name)
}

func (b *Bridge) publishNickname(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if err := b.Voice.SetMetadata(ctx, name); err != nil {
		b.Logger.Warn("voice_metadata_failed", zap.String("nick", name), zap.Error(err))
		return
	}
	b.Logger.Info("voice_metadata_published", zap.String("nick", name))
}

// HandleHostAction forwards a notification button click. It reports
// whether the bridge consumed it.
func (b *Bridge) HandleHostAction(ctx context.Context, a gamehost.NotificationAction) bool {
	return b.Notes.HandleAction(ctx, a.TypeID, a.EntityID, a.Action)
}

// OnLobbyEntered re-enables notifications and advertises the voice client
// plugin once per session.
func (b *Bridge) OnLobbyEntered(ctx context.Context) {
	b.setNotifications(true)
	if !b.shouldAdvertise(ctx) || !b.advertised.CompareAndSwap(false, true) {
		return
	}
	data := map[string]any{"Version": b.plugin.Version}
	_, err := b.Notes.ShowCustom(ctx, notify.Custom{
		Icon:    icon.Speaker(),
		Message: b.Catalog.Text("advertisement.message", data),
		Buttons: []notify.Button{
			{Label: b.Catalog.Text("advertisement.install", nil), Action: ActionInstall, Type: "submit"},
			{Label: b.Catalog.Text("advertisement.more_info", nil), Action: ActionMoreInfo, Type: "submit"},
			{Label: b.Catalog.Text("advertisement.ignore", nil), Action: ActionIgnore, Type: "cancel"},
		},
		Item: map[string]any{"version": b.plugin.Version},
	})
	if err != nil {
		b.advertised.Store(false)
		b.Logger.Warn("plugin_advertisement_failed", zap.Error(err))
	}
}

func (b *Bridge) shouldAdvertise(ctx context.Context) bool {
	if b.plugin.Version <= 0 || strings.TrimSpace(b.plugin.InstallerPath) == "" {
		return false
	}
	if _, err := os.Stat(b.plugin.InstallerPath); err != nil {
		b.Logger.Debug("plugin_installer_missing", zap.String("path", b.plugin.InstallerPath))
		return false
	}
	if b.State != nil && b.State.Get().IgnoredPluginVersion >= b.plugin.Version {
		return false
	}
	info, err := b.Voice.PluginInfo(ctx)
	if err != nil {
		// Voice client not reachable; the user may still want the plugin.
		b.Logger.Debug("plugin_info_unavailable", zap.Error(err))
		return true
	}
	return !info.Installed || info.Version < b.plugin.Version
}

func (b *Bridge) registerActions() {
	if b.Notes == nil {
		return
	}
	b.Notes.AddActionHandler(ActionInstall, func(ctx context.Context, _, _ string, _ map[string]any) {
		if err := b.Installer.Install(b.plugin.InstallerPath); err != nil {
			b.Logger.Error("plugin_install_failed", zap.String("path", b.plugin.InstallerPath), zap.Error(err))
			_ = b.Notes.ShowError(ctx, b.Catalog.Text("advertisement.installer_failed", nil))
		}
	})
	b.Notes.AddActionHandler(ActionMoreInfo, func(context.Context, string, string, map[string]any) {
		if err := b.Installer.Open(b.plugin.SupportURL); err != nil {
			b.Logger.Warn("support_url_open_failed", zap.String("url", b.plugin.SupportURL), zap.Error(err))
		}
	})
	b.Notes.AddActionHandler(ActionIgnore, func(ctx context.Context, typeID, entityID string, item map[string]any) {
		version := b.plugin.Version
		if v, ok := item["version"].(int); ok {
			version = v
		}
		if b.State != nil {
			if err := b.State.Update(func(s *config.State) { s.IgnoredPluginVersion = version }); err != nil {
				b.Logger.Warn("state_save_failed", zap.Error(err))
			}
		}
		// Replacing the item without buttons retires the advertisement.
		if err := b.Notes.UpdateCustom(ctx, typeID, entityID, map[string]any{"version": version, "ignored": true}); err != nil {
			b.Logger.Debug("plugin_advertisement_update_failed", zap.Error(err))
		}
		_ = b.Notes.ShowInfo(ctx, b.Catalog.Text("advertisement.ignored", map[string]any{"Version": version}))
	})
}
