package identity

import (
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pool(players ...Player) iter.Seq[Player] { return slices.Values(players) }

func noAliases() *AliasTable { return NewAliasTable(nil) }

func TestResolveScenarios(t *testing.T) {
	cases := []struct {
		name     string
		pool     []Player
		id       VoiceIdentity
		patterns []string
		aliases  map[string]string
		opts     Options
		wantID   PlayerID
		want     Strategy
	}{
		{
			name:     "clan tag stripped by pattern",
			pool:     []Player{{ID: 1, Name: "Alice"}},
			id:       VoiceIdentity{Nickname: "[TS] Alice"},
			patterns: []string{`^\[TS\]\s*(.+)$`},
			opts:     Options{UseMetadata: true},
			wantID:   1,
			want:     StrategyPatternDirect,
		},
		{
			name:    "alias on raw nickname",
			pool:    []Player{{ID: 2, Name: "Bob"}},
			id:      VoiceIdentity{Nickname: "xXx_bobby_xXx"},
			aliases: map[string]string{"xxx_bobby_xxx": "Bob"},
			opts:    Options{UseMetadata: true},
			wantID:  2,
			want:    StrategyAlias,
		},
		{
			name:   "metadata nickname",
			pool:   []Player{{ID: 3, Name: "Carol"}},
			id:     VoiceIdentity{Nickname: "RandomNick", GameNickname: "Carol"},
			opts:   Options{UseMetadata: true},
			wantID: 3,
			want:   StrategyMetadata,
		},
		{
			name:   "substring search",
			pool:   []Player{{ID: 4, Name: "Dave"}},
			id:     VoiceIdentity{Nickname: "dave_the_great"},
			opts:   Options{UseNickSearch: true},
			wantID: 4,
			want:   StrategySubstring,
		},
		{
			name:   "exact name ignoring case",
			pool:   []Player{{ID: 5, Name: "Eve"}},
			id:     VoiceIdentity{Nickname: "eve"},
			opts:   Options{},
			wantID: 5,
			want:   StrategyExact,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(tc.id, pool(tc.pool...), CompilePatterns(tc.patterns), NewAliasTable(tc.aliases), tc.opts)
			require.True(t, res.Matched(), "expected a match, got %s", res.Strategy)
			assert.Equal(t, tc.wantID, res.Player.ID)
			assert.Equal(t, tc.want, res.Strategy)
		})
	}
}

func TestResolveEmptyPoolIsUnmatched(t *testing.T) {
	res := Resolve(VoiceIdentity{Nickname: "Nobody"}, pool(), CompilePatterns(nil), noAliases(), DefaultOptions())
	assert.False(t, res.Matched())
	assert.Equal(t, StrategyUnmatched, res.Strategy)

	res = Resolve(VoiceIdentity{Nickname: "Nobody"}, nil, nil, nil, Options{UseNickSearch: true})
	assert.False(t, res.Matched())
	assert.Equal(t, StrategyUnmatched, res.Strategy)
}

func TestMetadataWinsOverEverythingElse(t *testing.T) {
	players := []Player{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Carol"}}
	res := Resolve(
		VoiceIdentity{Nickname: "[TS] Alice", GameNickname: "CAROL"},
		pool(players...),
		CompilePatterns([]string{`\[TS\]\s*(.+)`}),
		NewAliasTable(map[string]string{"[ts] alice": "Alice"}),
		Options{UseMetadata: true},
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(2), res.Player.ID)
	assert.Equal(t, StrategyMetadata, res.Strategy)
}

func TestMetadataMissFallsThrough(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Alice", GameNickname: "SomeoneElse"},
		pool(Player{ID: 1, Name: "Alice"}),
		nil, nil,
		Options{UseMetadata: true},
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyExact, res.Strategy)
}

func TestMetadataIgnoredWhenDisabled(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Alice", GameNickname: "Carol"},
		pool(Player{ID: 1, Name: "Alice"}, Player{ID: 2, Name: "Carol"}),
		nil, nil,
		Options{},
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(1), res.Player.ID)
	assert.Equal(t, StrategyExact, res.Strategy)
}

func TestPatternDirectBeatsLaterPatternAlias(t *testing.T) {
	players := []Player{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}
	res := Resolve(
		VoiceIdentity{Nickname: "[CLAN] Alice | bobby"},
		pool(players...),
		CompilePatterns([]string{`\[\w+\]\s*(\w+)`, `.*\|\s*(\w+)`}),
		NewAliasTable(map[string]string{"bobby": "Bob"}),
		DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(1), res.Player.ID)
	assert.Equal(t, StrategyPatternDirect, res.Strategy)
	assert.Equal(t, `\[\w+\]\s*(\w+)`, res.Pattern)
}

func TestPatternAlias(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "[CLAN] bobby"},
		pool(Player{ID: 2, Name: "Bob"}),
		CompilePatterns([]string{`\[\w+\]\s*(\w+)`}),
		NewAliasTable(map[string]string{"BOBBY": "bob"}),
		DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(2), res.Player.ID)
	assert.Equal(t, StrategyPatternAlias, res.Strategy)
}

func TestPatternLoopContinuesAfterMiss(t *testing.T) {
	// first pattern captures a name nobody has, the second one hits
	res := Resolve(
		VoiceIdentity{Nickname: "ghost (Alice)"},
		pool(Player{ID: 1, Name: "Alice"}),
		CompilePatterns([]string{`(\w+)`, `.*\((\w+)\)`}),
		noAliases(),
		DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyPatternDirect, res.Strategy)
	assert.Equal(t, `.*\((\w+)\)`, res.Pattern)
}

func TestPatternCaptureIsTrimmed(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Alice   | tag"},
		pool(Player{ID: 1, Name: "alice"}),
		CompilePatterns([]string{`([^|]+)\|`}),
		noAliases(),
		DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, "Alice", res.Key)
	assert.Equal(t, StrategyPatternDirect, res.Strategy)
}

func TestBlankCaptureSkipsPattern(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Eve"},
		pool(Player{ID: 5, Name: "Eve"}),
		CompilePatterns([]string{`(\s*)Eve`}),
		noAliases(),
		DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyExact, res.Strategy)
}

func TestMalformedPatternsNeverMatch(t *testing.T) {
	set := CompilePatterns([]string{`([unclosed`, `no groups here`, `zzz)|(.+`, `\[TS\]\s*(.+)`})
	require.Equal(t, 4, set.Len())
	assert.Len(t, set.Problems(), 3)

	_, ok := set.Patterns()[2].Extract("Mallory")
	assert.False(t, ok, "unbalanced parens must not escape the prefix anchor")
	res := Resolve(
		VoiceIdentity{Nickname: "Mallory"},
		pool(Player{ID: 2, Name: "Mallory"}),
		set, noAliases(), Options{},
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyExact, res.Strategy)

	res = Resolve(
		VoiceIdentity{Nickname: "[TS] Alice"},
		pool(Player{ID: 1, Name: "Alice"}),
		set, noAliases(), DefaultOptions(),
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyPatternDirect, res.Strategy)
}

func TestExactFallbackIsNotSubstring(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "dave_the_great"},
		pool(Player{ID: 4, Name: "Dave"}),
		nil, nil, Options{},
	)
	assert.False(t, res.Matched())
	assert.Equal(t, StrategyUnmatched, res.Strategy)
}

func TestSubstringDirectionIsNameInsideNickname(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Dav"},
		pool(Player{ID: 4, Name: "Dave"}),
		nil, nil, Options{UseNickSearch: true},
	)
	assert.False(t, res.Matched())
}

func TestSubstringFirstInPoolOrderWins(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "AnnaBella"},
		pool(Player{ID: 7, Name: "bella"}, Player{ID: 8, Name: "anna"}),
		nil, nil, Options{UseNickSearch: true},
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(7), res.Player.ID)
}

func TestDuplicateNamesFirstWins(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Eve"},
		pool(Player{ID: 5, Name: "EVE"}, Player{ID: 6, Name: "eve"}),
		nil, nil, Options{},
	)
	require.True(t, res.Matched())
	assert.Equal(t, PlayerID(5), res.Player.ID)
}

func TestAliasMissingFromPoolFallsThrough(t *testing.T) {
	res := Resolve(
		VoiceIdentity{Nickname: "Eve"},
		pool(Player{ID: 5, Name: "Eve"}),
		nil,
		NewAliasTable(map[string]string{"eve": "NotHere"}),
		Options{},
	)
	require.True(t, res.Matched())
	assert.Equal(t, StrategyExact, res.Strategy)
}

func TestPoolIsDrainedOnce(t *testing.T) {
	calls := 0
	seq := func(yield func(Player) bool) {
		calls++
		for _, p := range []Player{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}} {
			if !yield(p) {
				return
			}
		}
	}
	res := Resolve(
		VoiceIdentity{Nickname: "[x] zz", GameNickname: "nobody"},
		seq,
		CompilePatterns([]string{`\[(\w)\]`, `.*(z)`}),
		NewAliasTable(map[string]string{"z": "nope"}),
		Options{UseMetadata: true},
	)
	assert.False(t, res.Matched())
	assert.Equal(t, 1, calls)
}

func TestBattleStatePassesThrough(t *testing.T) {
	state := &BattleState{VehicleID: 42, Alive: true}
	res := Resolve(VoiceIdentity{Nickname: "Tanker"}, pool(Player{ID: 9, Name: "Tanker", Battle: state}), nil, nil, Options{})
	require.True(t, res.Matched())
	require.True(t, res.Player.InBattle())
	assert.Equal(t, int64(42), res.Player.Battle.VehicleID)
}

func TestResolverSwapAndConcurrentUse(t *testing.T) {
	r := NewResolver(Config{
		Patterns: CompilePatterns([]string{`\[TS\]\s*(.+)`}),
		Aliases:  noAliases(),
		Options:  DefaultOptions(),
	}, zap.NewNop())

	players := []Player{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Resolve(VoiceIdentity{Nickname: "[TS] Alice"}, pool(players...))
			assert.Equal(t, StrategyPatternDirect, res.Strategy)
		}()
	}
	wg.Wait()

	r.Swap(Config{Aliases: NewAliasTable(map[string]string{"[ts] alice": "Bob"}), Options: DefaultOptions()})
	res := r.Resolve(VoiceIdentity{Nickname: "[TS] Alice"}, pool(players...))
	require.True(t, res.Matched())
	assert.Equal(t, StrategyAlias, res.Strategy)
	assert.Equal(t, PlayerID(2), res.Player.ID)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, VoiceIdentity{Nickname: "  "}.Validate(), ErrEmptyNickname)
	assert.NoError(t, VoiceIdentity{Nickname: "x"}.Validate())
}
