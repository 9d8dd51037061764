package identity

import (
	"errors"
	"strings"
)

// PlayerID is the game's stable account identifier.
type PlayerID int64

// BattleState is transient per-battle context carried alongside a player.
// Matching never looks at it.
type BattleState struct {
	VehicleID int64
	Alive     bool
}

// Player is a known in-game player.
type Player struct {
	ID     PlayerID
	Name   string
	Battle *BattleState
}

// InBattle reports whether the record came from a live battle roster.
func (p Player) InBattle() bool { return p.Battle != nil }

// VoiceIdentity is a voice-chat user as seen by the resolver.
type VoiceIdentity struct {
	// Nickname is the name shown in voice chat.
	Nickname string
	// GameNickname is carried in voice metadata when the remote user runs the
	// companion plugin. Usually empty.
	GameNickname string
}

var ErrEmptyNickname = errors.New("voice nickname is empty")

// Validate enforces the input boundary contract: a well-formed voice roster
// entry always has a nickname.
func (v VoiceIdentity) Validate() error {
	if strings.TrimSpace(v.Nickname) == "" {
		return ErrEmptyNickname
	}
	return nil
}

// Strategy tags the step of the fallback chain that produced a match.
type Strategy string

const (
	StrategyMetadata      Strategy = "metadata"
	StrategyPatternDirect Strategy = "pattern-direct"
	StrategyPatternAlias  Strategy = "pattern-alias"
	StrategyAlias         Strategy = "alias"
	StrategySubstring     Strategy = "substring"
	StrategyExact         Strategy = "exact"
	StrategyUnmatched     Strategy = "unmatched"
)

// MatchResult is the outcome of one resolution attempt.
type MatchResult struct {
	Player   *Player
	Strategy Strategy
	// Pattern is the source text of the extraction pattern that matched, if any.
	Pattern string
	// Key is the name that was finally looked up in the pool.
	Key string
}

func (r MatchResult) Matched() bool { return r.Player != nil }

// Options toggles the optional steps of the chain.
type Options struct {
	UseMetadata   bool
	UseNickSearch bool
}

// DefaultOptions trusts voice metadata and uses exact-name fallback.
func DefaultOptions() Options {
	return Options{UseMetadata: true}
}
