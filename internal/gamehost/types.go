package gamehost

import (
	"errors"

	"github.com/park285/tessu-bridge/internal/identity"
)

// ErrNotReady is returned when the host cannot accept UI pushes yet,
// e.g. while the client is still loading.
var ErrNotReady = errors.New("game host not ready")

// PlayerRecord is a player as reported by the host.
type PlayerRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	VehicleID int64  `json:"vehicle_id,omitempty"`
	Alive     bool   `json:"is_alive,omitempty"`
}

// Player converts the record. Battle state is attached only when the
// record carries a vehicle.
func (r PlayerRecord) Player() identity.Player {
	p := identity.Player{ID: identity.PlayerID(r.ID), Name: r.Name}
	if r.VehicleID != 0 {
		p.Battle = &identity.BattleState{VehicleID: r.VehicleID, Alive: r.Alive}
	}
	return p
}

// Me is the local player's session state.
type Me struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	InBattle bool   `json:"in_battle"`
	InReplay bool   `json:"in_replay"`
}

type markerRequest struct {
	VehicleID int64  `json:"vehicle_id"`
	Action    string `json:"action"`
}

type speakingRequest struct {
	PlayerID int64 `json:"player_id"`
	Speaking bool  `json:"speaking"`
}

// Notification is one push to the host notification list.
type Notification struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Severity string         `json:"severity,omitempty"`
	Message  string         `json:"message,omitempty"`
	Icon     string         `json:"icon,omitempty"`
	Item     map[string]any `json:"item,omitempty"`
}

const (
	EventNotificationAction = "notification_action"
	EventRosterChanged      = "roster_changed"
	EventLobbyEntered       = "lobby_entered"
	EventBattleStarted      = "battle_started"
	EventBattleEnded        = "battle_ended"
	EventReplayStarted      = "replay_started"
	EventNicknameChanged    = "nickname_changed"
)

// NotificationAction is sent when the user clicks a notification button.
type NotificationAction struct {
	TypeID   string `json:"type_id"`
	EntityID string `json:"entity_id"`
	Action   string `json:"action"`
}
