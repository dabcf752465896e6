package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/metrics"
	"gocoax-monitor/internal/sensor"

	"github.com/rs/zerolog/log"
)

// ErrUpdateFailed wraps every failed refresh.
var ErrUpdateFailed = errors.New("error updating GoCoax data")

// Fetcher is the part of gocoax.Client a coordinator needs.
type Fetcher interface {
	FetchDeviceInfo(ctx context.Context) (*gocoax.RawInfo, error)
	FetchPhyRates(ctx context.Context, raw *gocoax.RawInfo) (*gocoax.PhyRates, error)
}

// Data is one successful poll.
type Data struct {
	Info      *gocoax.DeviceInfo
	Phy       *gocoax.PhyRates
	UpdatedAt time.Time
}

// Coordinator owns the last fetched snapshot of one device. A failed refresh
// keeps the previous data but marks the device unavailable.
type Coordinator struct {
	name    string
	host    string
	fetcher Fetcher

	mu                sync.RWMutex
	data              *Data
	lastUpdateSuccess bool
	lastErr           error
	lastAttempt       time.Time
}

func NewCoordinator(host string, f Fetcher) *Coordinator {
	return &Coordinator{
		name:    fmt.Sprintf("GoCoax(%s)", host),
		host:    host,
		fetcher: f,
	}
}

func (c *Coordinator) Name() string { return c.name }

// Refresh polls the device once.
func (c *Coordinator) Refresh(ctx context.Context) error {
	start := time.Now()
	data, err := c.fetch(ctx)
	metrics.ObservePoll(c.host, start, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAttempt = start
	if err != nil {
		c.lastUpdateSuccess = false
		c.lastErr = err
		return err
	}
	c.data = data
	c.lastUpdateSuccess = true
	c.lastErr = nil
	return nil
}

func (c *Coordinator) fetch(ctx context.Context) (*Data, error) {
	raw, err := c.fetcher.FetchDeviceInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	info, err := gocoax.Decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("host", c.host).Msg("malformed device response, skipping poll")
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	phy, err := c.fetcher.FetchPhyRates(ctx, raw)
	if err != nil {
		log.Warn().Err(err).Str("host", c.host).Msg("phy rates unavailable this cycle")
		phy = nil
	}

	return &Data{Info: info, Phy: phy, UpdatedAt: time.Now()}, nil
}

// Data returns the last successful poll, nil before the first one.
func (c *Coordinator) Data() *Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateSuccess
}

func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Coordinator) LastAttempt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAttempt
}

// Snapshot is what the entities render from.
func (c *Coordinator) Snapshot() sensor.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := sensor.Snapshot{Available: c.lastUpdateSuccess && c.data != nil}
	if c.data != nil {
		s.Info = c.data.Info
		s.Phy = c.data.Phy
	}
	return s
}
