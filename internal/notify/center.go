package notify

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/tessu-bridge/internal/gamehost"
	"go.uber.org/zap"
)

const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeCustom  = "custom"
)

// Sink delivers notifications to the game UI.
type Sink interface {
	PushNotification(ctx context.Context, n gamehost.Notification) error
	UpdateNotification(ctx context.Context, n gamehost.Notification) error
}

type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
}

// Custom is a notification with buttons. Item travels with the message
// and is handed back to action handlers.
type Custom struct {
	Icon    string
	Message string
	Buttons []Button
	Item    map[string]any
}

// ActionHandler runs when the user clicks a button whose action it was
// registered for.
type ActionHandler func(ctx context.Context, typeID, entityID string, item map[string]any)

type handlerEntry struct {
	action string
	fn     ActionHandler
}

type itemKey struct{ typeID, entityID string }

// Center pushes notifications and dispatches their button actions.
type Center struct {
	sink   Sink
	logger *zap.Logger
	retry  time.Duration

	mu       sync.RWMutex
	enabled  bool
	handlers []handlerEntry
	items    map[itemKey]map[string]any
}

type Option func(*Center)

// WithRetryInterval sets the wait between pushes while the host is not
// ready. Default one second.
func WithRetryInterval(d time.Duration) Option { return func(c *Center) { c.retry = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Center) { c.logger = l } }

func NewCenter(sink Sink, opts ...Option) *Center {
	c := &Center{
		sink:    sink,
		logger:  zap.NewNop(),
		retry:   time.Second,
		enabled: true,
		items:   make(map[itemKey]map[string]any),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Center) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

func (c *Center) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Center) AddActionHandler(action string, fn ActionHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handlerEntry{action: action, fn: fn})
	c.mu.Unlock()
}

// HandleAction dispatches a button click. It reports false when no
// handler is registered for action, leaving the click to the host.
func (c *Center) HandleAction(ctx context.Context, typeID, entityID, action string) bool {
	c.mu.RLock()
	var matched []ActionHandler
	for _, h := range c.handlers {
		if h.action == action {
			matched = append(matched, h.fn)
		}
	}
	item, found := c.items[itemKey{typeID, entityID}]
	item = maps.Clone(item)
	c.mu.RUnlock()

	if len(matched) == 0 {
		return false
	}
	if !found {
		c.logger.Debug("notification_action_orphaned", zap.String("entity_id", entityID), zap.String("action", action))
		return true
	}
	for _, fn := range matched {
		fn(ctx, typeID, entityID, item)
	}
	return true
}

func (c *Center) ShowInfo(ctx context.Context, text string) error {
	return c.showSystem(ctx, TypeInfo, text)
}

func (c *Center) ShowWarning(ctx context.Context, text string) error {
	return c.showSystem(ctx, TypeWarning, text)
}

func (c *Center) ShowError(ctx context.Context, text string) error {
	return c.showSystem(ctx, TypeError, text)
}

func (c *Center) showSystem(ctx context.Context, severity, text string) error {
	return c.push(ctx, gamehost.Notification{
		ID:       uuid.NewString(),
		Type:     severity,
		Severity: severity,
		Message:  text,
	})
}

// ShowCustom pushes m and returns its entity id.
func (c *Center) ShowCustom(ctx context.Context, m Custom) (string, error) {
	id := uuid.NewString()
	item := maps.Clone(m.Item)
	if item == nil {
		item = map[string]any{}
	}
	n := gamehost.Notification{
		ID:      id,
		Type:    TypeCustom,
		Message: m.Message,
		Icon:    m.Icon,
		Item:    withButtons(item, m.Buttons),
	}
	c.mu.Lock()
	c.items[itemKey{TypeCustom, id}] = item
	c.mu.Unlock()
	if err := c.push(ctx, n); err != nil {
		c.mu.Lock()
		delete(c.items, itemKey{TypeCustom, id})
		c.mu.Unlock()
		return "", err
	}
	return id, nil
}

// UpdateCustom replaces the item data of a shown custom message.
func (c *Center) UpdateCustom(ctx context.Context, typeID, entityID string, item map[string]any) error {
	item = maps.Clone(item)
	c.mu.Lock()
	if _, ok := c.items[itemKey{typeID, entityID}]; ok {
		c.items[itemKey{typeID, entityID}] = item
	}
	c.mu.Unlock()
	return c.sink.UpdateNotification(ctx, gamehost.Notification{ID: entityID, Type: typeID, Item: item})
}

func withButtons(item map[string]any, buttons []Button) map[string]any {
	if len(buttons) == 0 {
		return item
	}
	out := maps.Clone(item)
	out["buttons"] = buttons
	return out
}

// push retries while the host is not ready. A disabled centre drops the
// message.
func (c *Center) push(ctx context.Context, n gamehost.Notification) error {
	for {
		if !c.Enabled() {
			return nil
		}
		err := c.sink.PushNotification(ctx, n)
		if !errors.Is(err, gamehost.ErrNotReady) {
			return err
		}
		c.logger.Debug("notification_deferred", zap.String("id", n.ID))
		t := time.NewTimer(c.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
