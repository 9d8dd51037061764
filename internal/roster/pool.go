package roster

import (
	"context"
	"iter"

	"github.com/park285/tessu-bridge/internal/identity"
)

// Source produces players from one part of the game client. A source
// returns an empty slice when its state is unavailable; it never fails.
type Source interface {
	Players(ctx context.Context) []identity.Player
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) []identity.Player

func (f SourceFunc) Players(ctx context.Context) []identity.Player {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Static is a fixed source, mostly for tests and the CLI.
func Static(players ...identity.Player) Source {
	list := append([]identity.Player(nil), players...)
	return SourceFunc(func(context.Context) []identity.Player { return list })
}

// Concat chains sources in order, e.g. team-battle units then training rooms.
func Concat(sources ...Source) Source {
	return SourceFunc(func(ctx context.Context) []identity.Player {
		var out []identity.Player
		for _, s := range sources {
			if s == nil {
				continue
			}
			out = append(out, s.Players(ctx)...)
		}
		return out
	})
}

// Flags selects which sources contribute to a pool.
type Flags struct {
	Battle    bool
	PreBattle bool
	Clan      bool
	Friends   bool
}

// AllFlags enables every source.
func AllFlags() Flags { return Flags{Battle: true, PreBattle: true, Clan: true, Friends: true} }

// Pool is the union of the player sources known to the application.
type Pool struct {
	Battle    Source
	PreBattle Source
	Clan      Source
	Friends   Source
}

// Players yields the enabled sources in the order battle, pre-battle, clan,
// friends. A source is only queried once iteration reaches it; duplicates
// are passed through.
func (p *Pool) Players(ctx context.Context, flags Flags) iter.Seq[identity.Player] {
	return func(yield func(identity.Player) bool) {
		if p == nil {
			return
		}
		steps := []struct {
			on  bool
			src Source
		}{
			{flags.Battle, p.Battle},
			{flags.PreBattle, p.PreBattle},
			{flags.Clan, p.Clan},
			{flags.Friends, p.Friends},
		}
		for _, st := range steps {
			if !st.on || st.src == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			for _, pl := range st.src.Players(ctx) {
				if !yield(pl) {
					return
				}
			}
		}
	}
}

// FindByID returns the first record with the given id, preferring live
// battle records by source order.
func (p *Pool) FindByID(ctx context.Context, flags Flags, id identity.PlayerID) (identity.Player, bool) {
	for pl := range p.Players(ctx, flags) {
		if pl.ID == id {
			return pl, true
		}
	}
	return identity.Player{}, false
}
