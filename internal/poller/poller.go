package poller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gocoax-monitor/internal/db"
	"gocoax-monitor/internal/gocoax"
	"gocoax-monitor/internal/metrics"
	"gocoax-monitor/internal/models"
	"gocoax-monitor/internal/notify"
	"gocoax-monitor/internal/sensor"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ClientFactory builds the device client for a config entry.
type ClientFactory func(entry models.Device) (Fetcher, error)

// NewClientFactory returns a factory producing gocoax clients.
func NewClientFactory(timeout time.Duration, insecure bool) ClientFactory {
	return func(entry models.Device) (Fetcher, error) {
		auth, err := gocoax.ParseAuthMode(entry.AuthMode)
		if err != nil {
			return nil, err
		}
		creds := gocoax.Credentials{Username: entry.Username, Password: entry.Password, Auth: auth}
		return gocoax.NewClient(entry.Host, creds,
			gocoax.WithTimeout(timeout),
			gocoax.WithInsecureSkipVerify(insecure))
	}
}

// Runtime is a set-up config entry.
type Runtime struct {
	Entry       models.Device
	Coordinator *Coordinator
	Entities    []sensor.Entity
}

func (r *Runtime) States() []sensor.State {
	snap := r.Coordinator.Snapshot()
	states := make([]sensor.State, 0, len(r.Entities))
	for _, e := range r.Entities {
		states = append(states, e.State(snap))
	}
	return states
}

// Poller holds every set-up entry and polls them from one loop.
type Poller struct {
	gdb        *gorm.DB
	newFetcher ClientFactory
	notifier   notify.Notifier

	mu       sync.RWMutex
	runtimes map[uint]*Runtime

	pollMu sync.Mutex
}

// New creates a poller. notifier may be nil.
func New(gdb *gorm.DB, factory ClientFactory, notifier notify.Notifier) *Poller {
	return &Poller{
		gdb:        gdb,
		newFetcher: factory,
		notifier:   notifier,
		runtimes:   map[uint]*Runtime{},
	}
}

// SetupEntry does the first refresh and registers the entry's entities. A
// failed first refresh is only a warning: the main sensors are still created
// and stay unavailable until a poll succeeds. It waits for a running poll
// cycle so an adapter is never polled twice at once.
func (p *Poller) SetupEntry(ctx context.Context, entry models.Device) (*Runtime, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	return p.setupEntry(ctx, entry)
}

func (p *Poller) setupEntry(ctx context.Context, entry models.Device) (*Runtime, error) {
	f, err := p.newFetcher(entry)
	if err != nil {
		return nil, fmt.Errorf("setup %s: %w", entry.Host, err)
	}

	coord := NewCoordinator(entry.Host, f)
	if err := coord.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("host", entry.Host).Msg("initial connection to GoCoax failed; check credentials/logs")
	} else {
		p.trackLink(entry, coord)
	}

	rt := &Runtime{
		Entry:       entry,
		Coordinator: coord,
		Entities:    sensor.BuildEntities(entry.Host, coord.Snapshot()),
	}

	p.mu.Lock()
	taken := map[string]bool{}
	for id, other := range p.runtimes {
		if id == entry.ID {
			continue
		}
		for _, e := range other.Entities {
			taken[e.EntityID] = true
		}
	}
	sensor.ClaimEntityIDs(rt.Entities, taken)
	p.runtimes[entry.ID] = rt
	p.mu.Unlock()

	log.Info().
		Str("host", entry.Host).
		Str("entry_id", entry.EntryID).
		Int("entities", len(rt.Entities)).
		Msg("config entry set up")
	return rt, nil
}

// UnloadEntry drops the runtime of an entry; false if it was not set up.
// An in-flight poll of the entry finishes first.
func (p *Poller) UnloadEntry(id uint) bool {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	return p.unloadEntry(id)
}

func (p *Poller) unloadEntry(id uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.runtimes[id]; !ok {
		return false
	}
	delete(p.runtimes, id)
	return true
}

// ReloadEntry sets an entry up again, rediscovering its MoCA nodes.
func (p *Poller) ReloadEntry(ctx context.Context, id uint) (*Runtime, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	entry, err := db.GetDevice(p.gdb, id)
	if err != nil {
		return nil, fmt.Errorf("load entry %d: %w", id, err)
	}
	p.unloadEntry(id)
	return p.setupEntry(ctx, entry)
}

// SetupAll sets up every stored entry.
func (p *Poller) SetupAll(ctx context.Context) error {
	entries, err := db.ListDevices(p.gdb)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	for _, e := range entries {
		if _, err := p.SetupEntry(ctx, e); err != nil {
			log.Error().Err(err).Str("host", e.Host).Msg("config entry setup failed")
		}
	}
	return nil
}

func (p *Poller) Runtime(id uint) (*Runtime, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rt, ok := p.runtimes[id]
	return rt, ok
}

// Runtimes lists the set-up entries ordered by id.
func (p *Poller) Runtimes() []*Runtime {
	p.mu.RLock()
	out := make([]*Runtime, 0, len(p.runtimes))
	for _, rt := range p.runtimes {
		out = append(out, rt)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Entry.ID < out[j].Entry.ID })
	return out
}

// PollOnce refreshes every entry in turn.
func (p *Poller) PollOnce(ctx context.Context) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	for _, rt := range p.Runtimes() {
		if ctx.Err() != nil {
			return
		}
		if err := rt.Coordinator.Refresh(ctx); err != nil {
			log.Error().Err(err).Str("host", rt.Entry.Host).Msg("poll failed")
			continue
		}
		p.trackLink(rt.Entry, rt.Coordinator)
	}
}

// Run polls every interval until ctx is done.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("poller started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poller stopping")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
			log.Debug().Msg("polling cycle complete")
		}
	}
}

func (p *Poller) trackLink(entry models.Device, coord *Coordinator) {
	data := coord.Data()
	if data == nil || data.Info == nil {
		return
	}
	status := data.Info.LinkStatus

	prev, changed, err := db.RecordLinkStatus(p.gdb, entry.ID, status)
	if err != nil {
		log.Error().Err(err).Str("host", entry.Host).Msg("failed to record link status")
		return
	}
	if !changed {
		return
	}

	metrics.LinkTransitions.WithLabelValues(entry.Host, status).Inc()
	log.Warn().Str("host", entry.Host).Str("from", prev).Str("to", status).Msg("coax link status changed")
	if p.notifier == nil {
		return
	}
	if err := p.notifier.LinkChanged(entry.Host, prev, status); err != nil {
		log.Error().Err(err).Str("host", entry.Host).Msg("link change notification failed")
	}
}

// Samples feeds the metrics collector.
func (p *Poller) Samples() []metrics.DeviceSample {
	rts := p.Runtimes()
	out := make([]metrics.DeviceSample, 0, len(rts))
	for _, rt := range rts {
		snap := rt.Coordinator.Snapshot()
		out = append(out, metrics.DeviceSample{
			Host:      rt.Entry.Host,
			Available: snap.Available,
			Info:      snap.Info,
			Phy:       snap.Phy,
		})
	}
	return out
}
