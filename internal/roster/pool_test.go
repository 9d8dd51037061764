package roster

import (
	"context"
	"slices"
	"testing"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls   int
	players []identity.Player
}

func (c *countingSource) Players(context.Context) []identity.Player {
	c.calls++
	return c.players
}

func names(seq func(func(identity.Player) bool)) []string {
	var out []string
	for p := range seq {
		out = append(out, p.Name)
	}
	return out
}

func TestPoolOrderAndFlags(t *testing.T) {
	p := &Pool{
		Battle:    Static(identity.Player{ID: 1, Name: "battle"}),
		PreBattle: Concat(Static(identity.Player{ID: 2, Name: "unit"}), Static(identity.Player{ID: 3, Name: "room"})),
		Clan:      Static(identity.Player{ID: 4, Name: "clan"}),
		Friends:   Static(identity.Player{ID: 5, Name: "friend"}, identity.Player{ID: 1, Name: "battle"}),
	}
	ctx := context.Background()

	assert.Equal(t, []string{"battle", "unit", "room", "clan", "friend", "battle"}, names(p.Players(ctx, AllFlags())))
	assert.Equal(t, []string{"unit", "room", "friend", "battle"}, names(p.Players(ctx, Flags{PreBattle: true, Friends: true})))
	assert.Empty(t, names(p.Players(ctx, Flags{})))
}

func TestPoolIsLazy(t *testing.T) {
	battle := &countingSource{players: []identity.Player{{ID: 1, Name: "a"}}}
	clan := &countingSource{players: []identity.Player{{ID: 2, Name: "b"}}}
	p := &Pool{Battle: battle, Clan: clan}

	for range p.Players(context.Background(), AllFlags()) {
		break
	}
	assert.Equal(t, 1, battle.calls)
	assert.Equal(t, 0, clan.calls)
}

func TestPoolMissingSourcesYieldNothing(t *testing.T) {
	var nilPool *Pool
	assert.Empty(t, slices.Collect(nilPool.Players(context.Background(), AllFlags())))

	p := &Pool{Battle: SourceFunc(nil)}
	assert.Empty(t, slices.Collect(p.Players(context.Background(), AllFlags())))
}

func TestFindByIDPrefersEarlierSource(t *testing.T) {
	state := &identity.BattleState{VehicleID: 77, Alive: true}
	p := &Pool{
		Battle:  Static(identity.Player{ID: 9, Name: "Tanker", Battle: state}),
		Friends: Static(identity.Player{ID: 9, Name: "Tanker"}),
	}
	pl, ok := p.FindByID(context.Background(), AllFlags(), 9)
	require.True(t, ok)
	require.NotNil(t, pl.Battle)
	assert.Equal(t, int64(77), pl.Battle.VehicleID)

	_, ok = p.FindByID(context.Background(), AllFlags(), 10)
	assert.False(t, ok)
}

func TestPoolFeedsResolver(t *testing.T) {
	p := &Pool{
		Clan:    Static(identity.Player{ID: 4, Name: "Dave"}),
		Friends: Static(identity.Player{ID: 5, Name: "Dave"}),
	}
	res := identity.Resolve(
		identity.VoiceIdentity{Nickname: "dave_the_great"},
		p.Players(context.Background(), AllFlags()),
		nil, nil,
		identity.Options{UseNickSearch: true},
	)
	require.True(t, res.Matched())
	assert.Equal(t, identity.PlayerID(4), res.Player.ID)
}
