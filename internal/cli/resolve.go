package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/roster"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"
)

type rosterEntry struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	VehicleID int64  `yaml:"vehicle_id"`
	Alive     bool   `yaml:"alive"`
}

// rosterFile is an offline snapshot of the four player sources.
type rosterFile struct {
	Battle    []rosterEntry `yaml:"battle"`
	PreBattle []rosterEntry `yaml:"prebattle"`
	Clan      []rosterEntry `yaml:"clan"`
	Friends   []rosterEntry `yaml:"friends"`
}

func toSource(entries []rosterEntry) roster.Source {
	players := make([]identity.Player, 0, len(entries))
	for _, e := range entries {
		p := identity.Player{ID: identity.PlayerID(e.ID), Name: e.Name}
		if e.VehicleID != 0 {
			p.Battle = &identity.BattleState{VehicleID: e.VehicleID, Alive: e.Alive}
		}
		players = append(players, p)
	}
	return roster.Static(players...)
}

func loadRoster(path string) (*roster.Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var rf rosterFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return &roster.Pool{
		Battle:    toSource(rf.Battle),
		PreBattle: toSource(rf.PreBattle),
		Clan:      toSource(rf.Clan),
		Friends:   toSource(rf.Friends),
	}, nil
}

type resolveResult struct {
	Nickname string `json:"nickname"`
	Matched  bool   `json:"matched"`
	Strategy string `json:"strategy"`
	Pattern  string `json:"pattern,omitempty"`
	Key      string `json:"key,omitempty"`
	PlayerID int64  `json:"player_id,omitempty"`
	Player   string `json:"player,omitempty"`
}

func newResolveCmd(opts *options) *cobra.Command {
	var rosterPath, gameNick string

	cmd := &cobra.Command{
		Use:   "resolve NICKNAME",
		Short: "Dry-run nickname matching against a roster file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			pool, err := loadRoster(rosterPath)
			if err != nil {
				return err
			}
			id := identity.VoiceIdentity{Nickname: args[0], GameNickname: gameNick}
			if err := id.Validate(); err != nil {
				return err
			}
			cfg := s.ResolverConfig()
			res := identity.Resolve(id, pool.Players(context.Background(), s.PoolFlags()), cfg.Patterns, cfg.Aliases, cfg.Options)

			out := resolveResult{
				Nickname: id.Nickname,
				Matched:  res.Matched(),
				Strategy: string(res.Strategy),
				Pattern:  res.Pattern,
				Key:      res.Key,
			}
			if res.Player != nil {
				out.PlayerID = int64(res.Player.ID)
				out.Player = res.Player.Name
			}
			return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				if !out.Matched {
					fmt.Fprintf(w, "%q: no match\n", out.Nickname)
					return
				}
				fmt.Fprintf(w, "%q -> %s (#%d) via %s", out.Nickname, out.Player, out.PlayerID, out.Strategy)
				if out.Pattern != "" {
					fmt.Fprintf(w, " pattern=%q", out.Pattern)
				}
				if out.Key != "" {
					fmt.Fprintf(w, " key=%q", out.Key)
				}
				fmt.Fprintln(w)
			})
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "Roster YAML file (required)")
	cmd.Flags().StringVar(&gameNick, "game-nick", "", "Game nickname published in voice metadata")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}
