package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Envelope is one event frame: {"type": "...", "data": {...}}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals Data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.New("empty event data")
	}
	return json.Unmarshal(e.Data, v)
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type HeaderProvider func() map[string]string

type handlerEntry struct {
	id    int
	typ   string // empty matches every event
	fn    func(Envelope)
	state func(State)
}

var ErrNotConnected = errors.New("websocket not connected")

// Feed is a reconnecting JSON event stream.
type Feed struct {
	url    string
	logger *zap.Logger

	connM sync.Mutex
	conn  *websocket.Conn

	state  State
	stateM sync.RWMutex

	handlers []handlerEntry
	nextID   int
	hM       sync.RWMutex

	maxReconnectAttempts int
	backoffBase          time.Duration
	backoffMax           time.Duration
	reconnecting         atomic.Bool
	pingInterval         time.Duration
	headers              HeaderProvider

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*Feed)

func WithLogger(l *zap.Logger) Option { return func(f *Feed) { f.logger = l } }

func WithPingInterval(d time.Duration) Option { return func(f *Feed) { f.pingInterval = d } }

func WithHeaderProvider(h HeaderProvider) Option { return func(f *Feed) { f.headers = h } }

// WithReconnect sets how many failed dials are tolerated before the feed
// reports StateFailed. Dialing goes on at the backoff cap until Close.
// Zero disables reconnecting.
func WithReconnect(max int) Option { return func(f *Feed) { f.maxReconnectAttempts = max } }

// WithBackoff sets the first reconnect delay and the cap it doubles up to.
func WithBackoff(base, max time.Duration) Option {
	return func(f *Feed) {
		if base > 0 {
			f.backoffBase = base
		}
		if max >= f.backoffBase {
			f.backoffMax = max
		}
	}
}

func New(url string, opts ...Option) *Feed {
	f := &Feed{
		url:                  url,
		logger:               zap.NewNop(),
		maxReconnectAttempts: 5,
		backoffBase:          200 * time.Millisecond,
		backoffMax:           10 * time.Second,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	return f
}

// Handle registers fn for events of the given type.
func (f *Feed) Handle(eventType string, fn func(Envelope)) int {
	return f.add(handlerEntry{typ: eventType, fn: fn})
}

// OnMessage registers fn for every event.
func (f *Feed) OnMessage(fn func(Envelope)) int {
	return f.add(handlerEntry{fn: fn})
}

func (f *Feed) OnStateChange(fn func(State)) int {
	return f.add(handlerEntry{state: fn})
}

func (f *Feed) Remove(id int) {
	f.hM.Lock()
	defer f.hM.Unlock()
	for i, h := range f.handlers {
		if h.id == id {
			f.handlers = append(f.handlers[:i], f.handlers[i+1:]...)
			return
		}
	}
}

func (f *Feed) add(h handlerEntry) int {
	f.hM.Lock()
	defer f.hM.Unlock()
	f.nextID++
	h.id = f.nextID
	f.handlers = append(f.handlers, h)
	return h.id
}

func (f *Feed) snapshot() []handlerEntry {
	f.hM.RLock()
	defer f.hM.RUnlock()
	return append([]handlerEntry(nil), f.handlers...)
}

func (f *Feed) URL() string { return f.url }

func (f *Feed) State() State {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

// Connect dials once. On failure a background reconnect is scheduled and
// the dial error is returned.
func (f *Feed) Connect(ctx context.Context) error {
	if s := f.State(); s == StateConnected || s == StateConnecting {
		return nil
	}
	f.setState(StateConnecting)
	if err := f.dial(ctx); err != nil {
		f.setState(StateFailed)
		f.scheduleReconnect()
		return err
	}
	return nil
}

func (f *Feed) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	if err != nil {
		return err
	}
	f.connM.Lock()
	f.conn = conn
	f.connM.Unlock()
	f.setState(StateConnected)

	f.wg.Add(2)
	go f.listen(conn)
	go f.pingLoop(conn)
	return nil
}

// Send writes v as one JSON frame.
func (f *Feed) Send(ctx context.Context, v any) error {
	f.connM.Lock()
	conn := f.conn
	f.connM.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, v)
}

func (f *Feed) listen(conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		var env Envelope
		if err := wsjson.Read(f.rootCtx, conn, &env); err != nil {
			if f.isStopping() {
				return
			}
			f.logger.Warn("ws_read_failed", zap.String("url", f.url), zap.Error(err))
			f.drop(conn, "reconnect")
			return
		}
		for _, h := range f.snapshot() {
			if h.fn == nil || (h.typ != "" && h.typ != env.Type) {
				continue
			}
			h.fn(env)
		}
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn) {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-f.rootCtx.Done():
			return
		case <-t.C:
			if f.currentConn() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if f.isStopping() {
					return
				}
				f.logger.Warn("ws_ping_failed", zap.String("url", f.url), zap.Error(err))
				f.drop(conn, "ping failure")
				return
			}
		}
	}
}

func (f *Feed) currentConn() *websocket.Conn {
	f.connM.Lock()
	defer f.connM.Unlock()
	return f.conn
}

// drop closes conn if it is still current and schedules a reconnect.
func (f *Feed) drop(conn *websocket.Conn, reason string) {
	f.connM.Lock()
	if f.conn != conn {
		f.connM.Unlock()
		return
	}
	f.conn = nil
	f.connM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	f.setState(StateDisconnected)
	f.scheduleReconnect()
}

// scheduleReconnect starts the single reconnect loop. It runs until a dial
// succeeds or the feed is closed.
func (f *Feed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 || f.isStopping() {
		return
	}
	if !f.reconnecting.CompareAndSwap(false, true) {
		return
	}
	f.setState(StateReconnecting)
	go func() {
		for attempt := 1; ; attempt++ {
			select {
			case <-f.stopCh:
				f.reconnecting.Store(false)
				return
			case <-time.After(f.backoff(attempt)):
			}
			if err := f.dial(f.rootCtx); err != nil {
				f.logger.Debug("ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				if attempt == f.maxReconnectAttempts {
					f.logger.Warn("ws_reconnect_exhausted", zap.String("url", f.url), zap.Int("attempts", attempt))
					f.setState(StateFailed)
				}
				continue
			}
			f.logger.Info("ws_reconnected", zap.String("url", f.url), zap.Int("attempt", attempt))
			f.reconnecting.Store(false)
			// A drop racing the flag reset found the loop still marked busy.
			if f.currentConn() == nil && !f.isStopping() {
				f.scheduleReconnect()
			}
			return
		}
	}()
}

func (f *Feed) setState(s State) {
	f.stateM.Lock()
	f.state = s
	f.stateM.Unlock()
	for _, h := range f.snapshot() {
		if h.state != nil {
			h.state(s)
		}
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.connM.Lock()
	conn := f.conn
	f.conn = nil
	f.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headers == nil {
		return hdr
	}
	for k, v := range f.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

func (f *Feed) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := f.backoffBase
	for i := 1; i < attempt && d < f.backoffMax; i++ {
		d *= 2
	}
	return min(d, f.backoffMax)
}
