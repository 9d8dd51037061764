package voicelink

import (
	"context"
	"fmt"

	"github.com/park285/tessu-bridge/internal/restclient"
)

// Client talks to the REST side of the voice companion service.
type Client struct {
	rc *restclient.Client
}

func NewClient(rc *restclient.Client) *Client { return &Client{rc: rc} }

func (c *Client) Clients(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.rc.Get(ctx, "/clients", &out); err != nil {
		return nil, fmt.Errorf("list voice clients: %w", err)
	}
	return out, nil
}

func (c *Client) PluginInfo(ctx context.Context) (PluginInfo, error) {
	var out PluginInfo
	if err := c.rc.Get(ctx, "/plugin", &out); err != nil {
		return PluginInfo{}, fmt.Errorf("plugin info: %w", err)
	}
	return out, nil
}

// SetMetadata publishes our game nickname so other clients can pair us
// without guessing.
func (c *Client) SetMetadata(ctx context.Context, gameNick string) error {
	if err := c.rc.Put(ctx, "/me/metadata", metadataRequest{GameNickname: gameNick}, nil); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}
