package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/park285/tessu-bridge/internal/usercache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type cacheEntry struct {
	UniqueID string   `json:"unique_id"`
	Nickname string   `json:"nickname"`
	Players  []string `json:"players"`
}

func newCacheCmd(opts *options) *cobra.Command {
	redisURL := envDefault("REDIS_URL", "redis://localhost:6379/0")
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the pairing cache",
	}
	cmd.PersistentFlags().StringVar(&redisURL, "redis", redisURL, "Redis URL (env: REDIS_URL)")

	open := func() (*usercache.Store, func(), error) {
		o, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(o)
		return usercache.NewStore(rdb, nil), func() { _ = rdb.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show UNIQUE_ID",
		Short: "Show the players paired with a voice user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			nick, err := store.UserNick(ctx, args[0])
			if err != nil {
				return err
			}
			ids, err := store.PlayersFor(ctx, args[0])
			if err != nil {
				return err
			}
			entry := cacheEntry{UniqueID: args[0], Nickname: nick}
			for _, id := range ids {
				name, _ := store.PlayerName(ctx, id)
				entry.Players = append(entry.Players, fmt.Sprintf("%s (#%d)", name, id))
			}
			return opts.print(cmd.OutOrStdout(), entry, func(w io.Writer) {
				fmt.Fprintf(w, "%s %q\n", entry.UniqueID, entry.Nickname)
				if len(entry.Players) == 0 {
					fmt.Fprintln(w, "  no pairings")
				}
				for _, p := range entry.Players {
					fmt.Fprintf(w, "  %s\n", p)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget UNIQUE_ID",
		Short: "Drop every pairing of a voice user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := store.Forget(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	})
	return cmd
}
