package gamehost

import (
	"github.com/park285/tessu-bridge/internal/wsfeed"
	"go.uber.org/zap"
)

// Handlers receives host events. Nil fields are skipped.
type Handlers struct {
	NotificationAction func(NotificationAction)
	RosterChanged      func()
	LobbyEntered       func()
	BattleStarted      func()
	BattleEnded        func()
	ReplayStarted      func()
	NicknameChanged    func(name string)
}

type nicknameEvent struct {
	Name string `json:"name"`
}

// Bind registers h on feed and returns the handler ids.
func Bind(feed *wsfeed.Feed, h Handlers, logger *zap.Logger) []int {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ids []int
	simple := func(typ string, fn func()) {
		if fn == nil {
			return
		}
		ids = append(ids, feed.Handle(typ, func(wsfeed.Envelope) { fn() }))
	}
	simple(EventRosterChanged, h.RosterChanged)
	simple(EventLobbyEntered, h.LobbyEntered)
	simple(EventBattleStarted, h.BattleStarted)
	simple(EventBattleEnded, h.BattleEnded)
	simple(EventReplayStarted, h.ReplayStarted)

	if h.NotificationAction != nil {
		ids = append(ids, feed.Handle(EventNotificationAction, func(e wsfeed.Envelope) {
			var a NotificationAction
			if err := e.Decode(&a); err != nil {
				logger.Warn("host_event_malformed", zap.String("type", e.Type), zap.Error(err))
				return
			}
			h.NotificationAction(a)
		}))
	}
	if h.NicknameChanged != nil {
		ids = append(ids, feed.Handle(EventNicknameChanged, func(e wsfeed.Envelope) {
			var ev nicknameEvent
			if err := e.Decode(&ev); err != nil {
				logger.Warn("host_event_malformed", zap.String("type", e.Type), zap.Error(err))
				return
			}
			h.NicknameChanged(ev.Name)
		}))
	}
	return ids
}
