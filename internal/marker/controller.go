package marker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Drawer shows one marker flash over a vehicle on the minimap.
type Drawer interface {
	ShowActionMarker(ctx context.Context, vehicleID int64, action string) error
}

type animation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller repeats minimap markers over speaking players' vehicles.
type Controller struct {
	drawer Drawer
	logger *zap.Logger

	mu      sync.Mutex
	running map[int64]*animation
	closed  bool
	wg      sync.WaitGroup
}

func NewController(drawer Drawer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{drawer: drawer, logger: logger, running: make(map[int64]*animation)}
}

// Start flashes action over vehicleID immediately and then every
// interval until Stop. Starting a running vehicle does nothing.
func (c *Controller) Start(vehicleID int64, action string, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.running[vehicleID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &animation{cancel: cancel, done: make(chan struct{})}
	c.running[vehicleID] = a
	c.wg.Add(1)
	go c.loop(ctx, a, vehicleID, action, interval)
}

func (c *Controller) loop(ctx context.Context, a *animation, vehicleID int64, action string, interval time.Duration) {
	defer c.wg.Done()
	defer close(a.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := c.drawer.ShowActionMarker(ctx, vehicleID, action); err != nil && ctx.Err() == nil {
			c.logger.Debug("marker_draw_failed", zap.Int64("vehicle_id", vehicleID), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (c *Controller) Stop(vehicleID int64) {
	c.mu.Lock()
	a, ok := c.running[vehicleID]
	delete(c.running, vehicleID)
	c.mu.Unlock()
	if ok {
		a.cancel()
	}
}

func (c *Controller) StopAll() {
	c.mu.Lock()
	all := c.running
	c.running = make(map[int64]*animation)
	c.mu.Unlock()
	for _, a := range all {
		a.cancel()
	}
}

func (c *Controller) Running(vehicleID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[vehicleID]
	return ok
}

// Close stops every animation and waits for their goroutines.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.StopAll()
	c.wg.Wait()
}
