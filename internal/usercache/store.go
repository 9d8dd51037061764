package usercache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ttlEntry = 30 * 24 * time.Hour

// Pairing links one voice user to one game player.
type Pairing struct {
	UniqueID   string
	Nickname   string
	PlayerID   identity.PlayerID
	PlayerName string
}

func (p Pairing) valid() bool {
	return strings.TrimSpace(p.UniqueID) != "" && p.PlayerID != 0
}

// Store keeps pairings in Redis. Every key expires after 30 days without
// a refresh. A Repository may be attached to mirror pairings durably.
type Store struct {
	rdb    *redis.Client
	repo   *Repository
	logger *zap.Logger
	prefix string
}

func NewStore(rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, logger: logger, prefix: "tessu:"}
}

// AttachRepository mirrors future writes into repo.
func (s *Store) AttachRepository(repo *Repository) { s.repo = repo }

func (s *Store) keyUser(uid string) string    { return s.prefix + "user:" + strings.TrimSpace(uid) }
func (s *Store) keyPair(uid string) string    { return s.prefix + "pair:" + strings.TrimSpace(uid) }
func (s *Store) keyPlayer(id identity.PlayerID) string {
	return s.prefix + "player:" + strconv.FormatInt(int64(id), 10)
}

func (s *Store) RememberUser(ctx context.Context, uid, nick string) error {
	if strings.TrimSpace(uid) == "" {
		return nil
	}
	return s.rdb.Set(ctx, s.keyUser(uid), nick, ttlEntry).Err()
}

func (s *Store) RememberPlayer(ctx context.Context, id identity.PlayerID, name string) error {
	if id == 0 {
		return nil
	}
	return s.rdb.Set(ctx, s.keyPlayer(id), name, ttlEntry).Err()
}

// UserNick returns the last known nickname of a voice user, or "" when
// unknown.
func (s *Store) UserNick(ctx context.Context, uid string) (string, error) {
	v, err := s.rdb.Get(ctx, s.keyUser(uid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Store) PlayerName(ctx context.Context, id identity.PlayerID) (string, error) {
	v, err := s.rdb.Get(ctx, s.keyPlayer(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// AddPairing stores p and refreshes the TTL of every key involved.
func (s *Store) AddPairing(ctx context.Context, p Pairing) error {
	if !p.valid() {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyUser(p.UniqueID), p.Nickname, ttlEntry)
	pipe.Set(ctx, s.keyPlayer(p.PlayerID), p.PlayerName, ttlEntry)
	pipe.SAdd(ctx, s.keyPair(p.UniqueID), int64(p.PlayerID))
	pipe.Expire(ctx, s.keyPair(p.UniqueID), ttlEntry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add pairing: %w", err)
	}
	if s.repo != nil {
		if err := s.repo.UpsertPairing(ctx, p); err != nil {
			s.logger.Warn("pairing_persist_failed", zap.String("unique_id", p.UniqueID), zap.Error(err))
		}
	}
	return nil
}

// PlayersFor returns the paired player ids in ascending order. An unknown
// user yields an empty slice.
func (s *Store) PlayersFor(ctx context.Context, uid string) ([]identity.PlayerID, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, nil
	}
	raw, err := s.rdb.SMembers(ctx, s.keyPair(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("players for %s: %w", uid, err)
	}
	out := make([]identity.PlayerID, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, identity.PlayerID(n))
	}
	slices.Sort(out)
	return out, nil
}

// Forget drops every pairing of a voice user.
func (s *Store) Forget(ctx context.Context, uid string) error {
	if strings.TrimSpace(uid) == "" {
		return nil
	}
	return s.rdb.Del(ctx, s.keyUser(uid), s.keyPair(uid)).Err()
}

// Warm loads durable pairings into Redis.
func (s *Store) Warm(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	pairs, err := s.repo.LoadPairings(ctx, time.Now().Add(-ttlEntry))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pairs {
		pipe := s.rdb.TxPipeline()
		pipe.Set(ctx, s.keyUser(p.UniqueID), p.Nickname, ttlEntry)
		pipe.Set(ctx, s.keyPlayer(p.PlayerID), p.PlayerName, ttlEntry)
		pipe.SAdd(ctx, s.keyPair(p.UniqueID), int64(p.PlayerID))
		pipe.Expire(ctx, s.keyPair(p.UniqueID), ttlEntry)
		if _, err := pipe.Exec(ctx); err != nil {
			return n, fmt.Errorf("warm pairing: %w", err)
		}
		n++
	}
	return n, nil
}
