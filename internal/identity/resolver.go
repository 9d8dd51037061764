package identity

import (
	"iter"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Resolve works out which player in pool the voice identity refers to.
//
// Strategies are tried in order and the first hit wins: metadata nickname,
// extraction patterns (direct name, then alias of the capture), alias of the
// raw nickname, and finally substring search or exact name comparison
// depending on opts.UseNickSearch. pool is drained exactly once.
func Resolve(id VoiceIdentity, pool iter.Seq[Player], patterns *PatternSet, aliases *AliasTable, opts Options) MatchResult {
	c := materialize(pool)

	if opts.UseMetadata && id.GameNickname != "" {
		if p := c.byName(id.GameNickname); p != nil {
			return MatchResult{Player: p, Strategy: StrategyMetadata, Key: id.GameNickname}
		}
	}

	for _, pattern := range patterns.Patterns() {
		extracted, ok := pattern.Extract(id.Nickname)
		if !ok {
			continue
		}
		if p := c.byName(extracted); p != nil {
			return MatchResult{Player: p, Strategy: StrategyPatternDirect, Pattern: pattern.String(), Key: extracted}
		}
		if mapped, ok := aliases.Lookup(extracted); ok {
			if p := c.byName(mapped); p != nil {
				return MatchResult{Player: p, Strategy: StrategyPatternAlias, Pattern: pattern.String(), Key: mapped}
			}
		}
	}

	if mapped, ok := aliases.Lookup(id.Nickname); ok {
		if p := c.byName(mapped); p != nil {
			return MatchResult{Player: p, Strategy: StrategyAlias, Key: mapped}
		}
	}

	if opts.UseNickSearch {
		if p := c.containedIn(id.Nickname); p != nil {
			return MatchResult{Player: p, Strategy: StrategySubstring, Key: p.Name}
		}
	} else if p := c.byName(id.Nickname); p != nil {
		return MatchResult{Player: p, Strategy: StrategyExact, Key: id.Nickname}
	}

	return MatchResult{Strategy: StrategyUnmatched}
}

// candidates is the pool frozen for one Resolve call.
type candidates struct {
	players []Player
	lower   []string
}

func materialize(pool iter.Seq[Player]) *candidates {
	c := &candidates{}
	if pool == nil {
		return c
	}
	for p := range pool {
		c.players = append(c.players, p)
		c.lower = append(c.lower, strings.ToLower(p.Name))
	}
	return c
}

func (c *candidates) byName(name string) *Player {
	if name == "" {
		return nil
	}
	want := strings.ToLower(name)
	for i, n := range c.lower {
		if n == want {
			p := c.players[i]
			return &p
		}
	}
	return nil
}

// containedIn finds the first player whose name occurs inside nickname.
func (c *candidates) containedIn(nickname string) *Player {
	hay := strings.ToLower(nickname)
	for i, n := range c.lower {
		if n != "" && strings.Contains(hay, n) {
			p := c.players[i]
			return &p
		}
	}
	return nil
}

// Config is the session configuration a Resolver applies. It is never
// mutated after construction.
type Config struct {
	Patterns *PatternSet
	Aliases  *AliasTable
	Options  Options
}

// Resolver binds a swappable Config and a logger around Resolve.
type Resolver struct {
	cfg    atomic.Pointer[Config]
	logger *zap.Logger
}

func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{logger: logger}
	r.cfg.Store(&cfg)
	for _, err := range cfg.Patterns.Problems() {
		logger.Warn("extract_pattern_ignored", zap.Error(err))
	}
	return r
}

// Swap installs a new configuration. Calls already running keep the old one.
func (r *Resolver) Swap(cfg Config) {
	for _, err := range cfg.Patterns.Problems() {
		r.logger.Warn("extract_pattern_ignored", zap.Error(err))
	}
	r.cfg.Store(&cfg)
}

func (r *Resolver) Config() Config { return *r.cfg.Load() }

func (r *Resolver) Resolve(id VoiceIdentity, pool iter.Seq[Player]) MatchResult {
	cfg := r.cfg.Load()
	res := Resolve(id, pool, cfg.Patterns, cfg.Aliases, cfg.Options)
	if res.Matched() {
		r.logger.Debug("voice_user_matched",
			zap.String("nick", id.Nickname),
			zap.String("game_nick", id.GameNickname),
			zap.String("strategy", string(res.Strategy)),
			zap.String("pattern", res.Pattern),
			zap.String("player", res.Player.Name),
			zap.Int64("player_id", int64(res.Player.ID)),
		)
	} else {
		r.logger.Debug("voice_user_unmatched",
			zap.String("nick", id.Nickname),
			zap.String("game_nick", id.GameNickname),
		)
	}
	return res
}
