// Package market keeps a warm cache of on-chain market state for the
// statically configured markets, refreshed on a fixed interval so read
// endpoints do not hit the RPC node on every request.
package market

import (
	"context"
	"sync"
	"time"

	"github.com/MorphGate/morphgate/internal/ledger"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
)

type cachedState struct {
	config    model.MarketConfig
	state     *model.MarketState
	fetchedAt time.Time
}

type Cache struct {
	reader   ledger.Ledger
	interval time.Duration

	mu     sync.RWMutex
	states map[model.MarketID]*cachedState

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCache(reader ledger.Ledger, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		reader:   reader,
		interval: interval,
		states:   make(map[model.MarketID]*cachedState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track adds a market to the refresh set.
func (c *Cache) Track(cfg model.MarketConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := cfg.ID()
	if _, ok := c.states[id]; !ok {
		c.states[id] = &cachedState{config: cfg}
	}
}

// Start launches the refresh loop in a background goroutine.
func (c *Cache) Start() {
	go c.runLoop()
}

func (c *Cache) Stop() {
	c.cancel()
}

// Get returns the cached state and its fetch time. The bool is false
// when the market is untracked or not yet fetched.
func (c *Cache) Get(id model.MarketID) (*model.MarketState, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.states[id]
	if !ok || entry.state == nil {
		return nil, time.Time{}, false
	}
	return entry.state, entry.fetchedAt, true
}

// Tracked lists the configs currently in the refresh set.
func (c *Cache) Tracked() []model.MarketConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	configs := make([]model.MarketConfig, 0, len(c.states))
	for _, entry := range c.states {
		configs = append(configs, entry.config)
	}
	return configs
}

func (c *Cache) runLoop() {
	c.refreshAll()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll()
		}
	}
}

func (c *Cache) refreshAll() {
	for _, cfg := range c.Tracked() {
		id := cfg.ID()
		ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		state, err := c.reader.Market(ctx, id)
		cancel()
		if err != nil {
			logger.Warn("market refresh failed", "market", id.Hex(), "error", err.Error())
			continue
		}
		c.mu.Lock()
		if entry, ok := c.states[id]; ok {
			entry.state = state
			entry.fetchedAt = time.Now()
		}
		c.mu.Unlock()
	}
}
