package usercache

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"

	_ "github.com/lib/pq"
)

var ErrNoDatabaseURL = errors.New("DATABASE_URL is required")

const schema = `CREATE TABLE IF NOT EXISTS voice_pairings (
    unique_id   TEXT        NOT NULL,
    player_id   BIGINT      NOT NULL,
    nickname    TEXT        NOT NULL DEFAULT '',
    player_name TEXT        NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (unique_id, player_id)
)`

// Repository mirrors pairings into Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, ErrNoDatabaseURL
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) UpsertPairing(ctx context.Context, p Pairing) error {
	if r == nil || r.db == nil {
		return nil
	}
	const q = `INSERT INTO voice_pairings (unique_id, player_id, nickname, player_name, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (unique_id, player_id) DO UPDATE SET
            nickname=EXCLUDED.nickname,
            player_name=EXCLUDED.player_name,
            updated_at=EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, q, p.UniqueID, int64(p.PlayerID), p.Nickname, p.PlayerName)
	return err
}

// LoadPairings returns pairings refreshed after since.
func (r *Repository) LoadPairings(ctx context.Context, since time.Time) ([]Pairing, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT unique_id, player_id, nickname, player_name FROM voice_pairings
         WHERE updated_at >= $1 ORDER BY unique_id, player_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Pairing
	for rows.Next() {
		var p Pairing
		var id int64
		if err := rows.Scan(&p.UniqueID, &id, &p.Nickname, &p.PlayerName); err != nil {
			return nil, err
		}
		p.PlayerID = identity.PlayerID(id)
		out = append(out, p)
	}
	return out, rows.Err()
}
