package gamehost

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/wsfeed"
	"go.uber.org/zap"
)

// Egress carries the high-frequency host commands: minimap markers and
// speaking indicators.
type Egress interface {
	ShowActionMarker(ctx context.Context, vehicleID int64, action string) error
	SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error
}

// Command frame types written on the host feed.
const (
	CommandMarker   = "minimap_marker"
	CommandSpeaking = "voice_speaking"
)

type commandFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// NewEgress picks the command transport. "ws" writes frames on feed only;
// "auto" prefers feed while it is connected and falls back to REST once
// per command; anything else, or a nil feed, uses REST.
func NewEgress(mode string, c *Client, feed *wsfeed.Feed, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &httpEgress{c: c}
	if feed == nil {
		return h
	}
	w := &wsEgress{feed: feed}
	switch transportMode(strings.ToLower(strings.TrimSpace(mode))) {
	case transportWS:
		return w
	case transportAuto:
		return &autoEgress{ws: w, http: h, logger: logger}
	default:
		return h
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) ShowActionMarker(ctx context.Context, vehicleID int64, action string) error {
	if h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.ShowActionMarker(ctx, vehicleID, action)
}

func (h *httpEgress) SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error {
	if h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SetSpeaking(ctx, id, speaking)
}

type wsEgress struct{ feed *wsfeed.Feed }

func (w *wsEgress) ShowActionMarker(ctx context.Context, vehicleID int64, action string) error {
	return w.write(ctx, commandFrame{Type: CommandMarker, Data: markerRequest{VehicleID: vehicleID, Action: action}})
}

func (w *wsEgress) SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error {
	return w.write(ctx, commandFrame{Type: CommandSpeaking, Data: speakingRequest{PlayerID: int64(id), Speaking: speaking}})
}

func (w *wsEgress) connected() bool { return w.feed.State() == wsfeed.StateConnected }

func (w *wsEgress) write(ctx context.Context, f commandFrame) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return w.feed.Send(ctx, f)
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) ShowActionMarker(ctx context.Context, vehicleID int64, action string) error {
	if a.ws.connected() {
		err := a.ws.ShowActionMarker(ctx, vehicleID, action)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("type", CommandMarker), zap.Error(err))
	}
	return a.http.ShowActionMarker(ctx, vehicleID, action)
}

func (a *autoEgress) SetSpeaking(ctx context.Context, id identity.PlayerID, speaking bool) error {
	if a.ws.connected() {
		err := a.ws.SetSpeaking(ctx, id, speaking)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("type", CommandSpeaking), zap.Error(err))
	}
	return a.http.SetSpeaking(ctx, id, speaking)
}
