package voicelink

import "github.com/park285/tessu-bridge/internal/identity"

// User is one client connected to the voice server.
type User struct {
	ClientID     int    `json:"client_id"`
	UniqueID     string `json:"unique_id"`
	Nickname     string `json:"nickname"`
	GameNickname string `json:"game_nickname,omitempty"`
	Talking      bool   `json:"talking"`
	IsMe         bool   `json:"is_me"`
}

func (u User) Identity() identity.VoiceIdentity {
	return identity.VoiceIdentity{Nickname: u.Nickname, GameNickname: u.GameNickname}
}

// PluginInfo describes the companion plugin inside the voice client.
// Version is zero when the plugin is not installed.
type PluginInfo struct {
	Installed bool `json:"installed"`
	Version   int  `json:"version"`
}

const (
	EventClientJoined  = "client_joined"
	EventClientLeft    = "client_left"
	EventClientUpdated = "client_updated"
	EventTalkStatus    = "talk_status"
	EventConnected     = "connected"
)

type clientRef struct {
	ClientID int `json:"client_id"`
}

type talkStatus struct {
	ClientID int  `json:"client_id"`
	Talking  bool `json:"talking"`
}

type connectedEvent struct {
	Me      User   `json:"me"`
	Clients []User `json:"clients"`
}

type metadataRequest struct {
	GameNickname string `json:"game_nickname"`
}
