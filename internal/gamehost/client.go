package gamehost

import (
	"context"
	"fmt"
	"net/url"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/restclient"
	"github.com/park285/tessu-bridge/internal/roster"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Client is the REST side of the in-game shim.
type Client struct {
	rc     *restclient.Client
	logger *zap.Logger
}

func NewClient(rc *restclient.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rc: rc, logger: logger}
}

func (c *Client) players(ctx context.Context, path string) ([]identity.Player, error) {
	var recs []PlayerRecord
	if err := c.rc.Get(ctx, path, &recs); err != nil {
		return nil, err
	}
	out := make([]identity.Player, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Player())
	}
	return out, nil
}

func (c *Client) BattlePlayers(ctx context.Context) ([]identity.Player, error) {
	return c.players(ctx, "/players/battle")
}

// PreBattlePlayers lists team-battle units followed by training rooms.
func (c *Client) PreBattlePlayers(ctx context.Context) ([]identity.Player, error) {
	units, err := c.players(ctx, "/players/prebattle/units")
	if err != nil {
		return nil, err
	}
	rooms, err := c.players(ctx, "/players/prebattle/rosters")
	if err != nil {
		return nil, err
	}
	return append(units, rooms...), nil
}

func (c *Client) ClanMembers(ctx context.Context) ([]identity.Player, error) {
	return c.players(ctx, "/players/clan")
}

func (c *Client) Friends(ctx context.Context) ([]identity.Player, error) {
	return c.players(ctx, "/players/friends")
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	if err := c.rc.Get(ctx, "/me", &me); err != nil {
		return Me{}, fmt.Errorf("get me: %w", err)
	}
	return me, nil
}

// ShowActionMarker flashes a marker over a vehicle on the minimap.
func (c *Client) ShowActionMarker(ctx context.Context, vehicleID int64, action string) error {
	return c.rc.Post(ctx, "/minimap/marker", markerRequest{VehicleID: vehicleID, Action: action}, nil)
}

// SetSpeaking toggles the speaking indicator next to a player's name.
func (c *Client) SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error {
	return c.rc.Post(ctx, "/voice/speaking", speakingRequest{PlayerID: int64(id), Speaking: speaking}, nil)
}

// PushNotification adds n to the notification list. A 503 from the host
// maps to ErrNotReady.
func (c *Client) PushNotification(ctx context.Context, n Notification) error {
	return mapNotReady(c.rc.Post(ctx, "/notifications", n, nil))
}

// UpdateNotification replaces the item data of an existing notification.
func (c *Client) UpdateNotification(ctx context.Context, n Notification) error {
	path := "/notifications/" + url.PathEscape(n.Type) + "/" + url.PathEscape(n.ID)
	return mapNotReady(c.rc.Put(ctx, path, n, nil))
}

func mapNotReady(err error) error {
	if restclient.IsStatus(err, fasthttp.StatusServiceUnavailable) {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return err
}

// Pool exposes the host rosters as player sources. A source that fails is
// logged and contributes nothing.
func (c *Client) Pool() *roster.Pool {
	return &roster.Pool{
		Battle:    c.source("battle", c.BattlePlayers),
		PreBattle: c.source("prebattle", c.PreBattlePlayers),
		Clan:      c.source("clan", c.ClanMembers),
		Friends:   c.source("friends", c.Friends),
	}
}

func (c *Client) source(name string, fetch func(context.Context) ([]identity.Player, error)) roster.Source {
	return roster.SourceFunc(func(ctx context.Context) []identity.Player {
		players, err := fetch(ctx)
		if err != nil {
			c.logger.Debug("roster_source_unavailable", zap.String("source", name), zap.Error(err))
			return nil
		}
		return players
	})
}
