package bridge

import (
	"context"
	"slices"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/usercache"
	"github.com/park285/tessu-bridge/internal/voicelink"
	"go.uber.org/zap"
)

// StartSpeaking shows u as speaking on every matched player. Calling it
// again for a user already speaking re-resolves and cancels a pending
// stop.
func (b *Bridge) StartSpeaking(ctx context.Context, u voicelink.User) {
	if err := u.Identity().Validate(); err != nil {
		b.Logger.Debug("voice_user_skipped", zap.Int("client_id", u.ClientID), zap.Error(err))
		return
	}
	players := b.matchPlayers(ctx, u)
	s := b.Settings()
	self := u.IsMe

	var shown []identity.PlayerID
	var markers []int64
	for _, p := range players {
		if s.VoiceChatNotifications.Enabled && (!self || s.VoiceChatNotifications.SelfEnabled) {
			shown = append(shown, p.ID)
		}
		if s.MinimapNotifications.Enabled && (!self || s.MinimapNotifications.SelfEnabled) &&
			p.Battle != nil && p.Battle.Alive {
			markers = append(markers, p.Battle.VehicleID)
		}
	}

	b.mu.Lock()
	sp, ok := b.speakers[u.ClientID]
	if !ok {
		sp = &speaker{}
		b.speakers[u.ClientID] = sp
	}
	if sp.stop != nil {
		sp.stop.Stop()
		sp.stop = nil
		sp.stopGen++
	}
	gone := &speaker{
		shown:   without(sp.shown, shown),
		markers: without(sp.markers, markers),
	}
	sp.user = u
	sp.shown = shown
	sp.markers = markers
	b.mu.Unlock()

	b.clear(ctx, gone)
	for _, id := range shown {
		if err := b.Host.SetSpeaking(ctx, id, true); err != nil {
			b.Logger.Debug("speaking_indicator_failed", zap.Int64("player_id", int64(id)), zap.Error(err))
		}
	}
	for _, vid := range markers {
		b.Markers.Start(vid, s.MinimapNotifications.Action, s.MarkerRepeatInterval())
	}
}

// StopSpeaking clears u's indicators after the configured delay. A new
// StartSpeaking inside the delay keeps them.
func (b *Bridge) StopSpeaking(clientID int) {
	delay := b.Settings().SpeakStopDelay()
	b.mu.Lock()
	defer b.mu.Unlock()
	sp, ok := b.speakers[clientID]
	if !ok || sp.stop != nil {
		return
	}
	gen := sp.stopGen
	sp.stop = time.AfterFunc(delay, func() { b.finishStop(clientID, sp, gen) })
}

func (b *Bridge) finishStop(clientID int, sp *speaker, gen int) {
	b.mu.Lock()
	if b.speakers[clientID] != sp || sp.stopGen != gen || sp.stop == nil {
		b.mu.Unlock()
		return
	}
	delete(b.speakers, clientID)
	b.mu.Unlock()
	b.clear(b.ctx, sp)
}

func (b *Bridge) stopNow(ctx context.Context, clientID int) {
	b.mu.Lock()
	sp, ok := b.speakers[clientID]
	if ok {
		delete(b.speakers, clientID)
		if sp.stop != nil {
			sp.stop.Stop()
		}
	}
	b.mu.Unlock()
	if ok {
		b.clear(ctx, sp)
	}
}

func (b *Bridge) clear(ctx context.Context, sp *speaker) {
	for _, id := range sp.shown {
		if err := b.Host.SetSpeaking(ctx, id, false); err != nil {
			b.Logger.Debug("speaking_indicator_failed", zap.Int64("player_id", int64(id)), zap.Error(err))
		}
	}
	for _, vid := range sp.markers {
		b.Markers.Stop(vid)
	}
}

// Speaking reports the players currently shown as speaking for a voice
// client.
func (b *Bridge) Speaking(clientID int) []identity.PlayerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sp, ok := b.speakers[clientID]; ok {
		return slices.Clone(sp.shown)
	}
	return nil
}

// matchPlayers prefers cached pairings and falls back to the resolver.
func (b *Bridge) matchPlayers(ctx context.Context, u voicelink.User) []identity.Player {
	flags := b.Settings().PoolFlags()

	if b.Pairings != nil && u.UniqueID != "" {
		ids, err := b.Pairings.PlayersFor(ctx, u.UniqueID)
		if err != nil {
			b.Logger.Warn("pairing_lookup_failed", zap.String("unique_id", u.UniqueID), zap.Error(err))
		}
		if len(ids) > 0 {
			out := make([]identity.Player, 0, len(ids))
			for _, id := range ids {
				p, ok := b.Pool.FindByID(ctx, flags, id)
				if !ok {
					p = identity.Player{ID: id}
				}
				out = append(out, p)
			}
			return out
		}
	}

	res := b.Resolver.Resolve(u.Identity(), b.Pool.Players(ctx, flags))
	if !res.Matched() {
		return nil
	}
	b.remember(ctx, u, *res.Player)
	return []identity.Player{*res.Player}
}

func (b *Bridge) remember(ctx context.Context, u voicelink.User, p identity.Player) {
	if b.Pairings == nil || u.UniqueID == "" {
		return
	}
	if b.replay.Load() && !b.Settings().General.UpdateCacheInReplays {
		return
	}
	err := b.Pairings.AddPairing(ctx, usercache.Pairing{
		UniqueID:   u.UniqueID,
		Nickname:   u.Nickname,
		PlayerID:   p.ID,
		PlayerName: p.Name,
	})
	if err != nil {
		b.Logger.Warn("pairing_store_failed", zap.String("unique_id", u.UniqueID), zap.Error(err))
	}
}

func without[T comparable](prev, next []T) []T {
	var out []T
	for _, v := range prev {
		if !slices.Contains(next, v) {
			out = append(out, v)
		}
	}
	return out
}
