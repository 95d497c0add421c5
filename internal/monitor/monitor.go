// Package monitor runs the polling loop and the state, rate and volume
// detectors over the shared instrument and alarm registries.
package monitor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/marketwatch/internal/alarm"
	"github.com/rewired-gh/marketwatch/internal/logger"
	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

type Config struct {
	PollInterval   time.Duration
	StateInterval  time.Duration
	RateInterval   time.Duration
	VolumeInterval time.Duration

	Timezone  string
	OpenHour  int
	CloseHour int

	MinDepth     int
	MaxRollbacks int
	RequestDelay time.Duration
	ErrorPenalty int
	ErrorBackoff time.Duration

	RateRange float64

	VolumeMinDelta       float64
	VolumeMultiplier     float64
	VolumeBaselineWindow int
	VolumeCooldown       time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:         3 * time.Second,
		StateInterval:        3 * time.Second,
		RateInterval:         3 * time.Second,
		VolumeInterval:       3 * time.Second,
		Timezone:             "Asia/Seoul",
		OpenHour:             8,
		CloseHour:            17,
		MinDepth:             120,
		MaxRollbacks:         10,
		RequestDelay:         200 * time.Millisecond,
		ErrorPenalty:         6,
		ErrorBackoff:         time.Second,
		RateRange:            1.0,
		VolumeMinDelta:       10000,
		VolumeMultiplier:     5,
		VolumeBaselineWindow: 20,
		VolumeCooldown:       10 * time.Minute,
	}
}

// Source supplies snapshots and intraday history.
type Source interface {
	Snapshot(ctx context.Context, inst models.Instrument) (models.Snapshot, error)
	HistoryPage(ctx context.Context, inst models.Instrument, cutoff time.Time, page int) (models.HistoryPage, error)
}

// Monitor owns the poller and the three detectors.
type Monitor struct {
	config Config
	poller *Poller
	state  *StateNotifier
	rate   *RateNotifier
	volume *VolumeNotifier
}

func New(m *market.Market, alarms *alarm.Registry, source Source, sink notify.Sink, config Config) *Monitor {
	return &Monitor{
		config: config,
		poller: NewPoller(m, alarms, source, sink, config),
		state:  NewStateNotifier(m, sink),
		rate:   NewRateNotifier(m, sink, config.RateRange),
		volume: NewVolumeNotifier(m, sink, config),
	}
}

// Run starts every loop and blocks until ctx is cancelled and all loops
// have finished their current iteration.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return every(ctx, "poller", m.config.PollInterval, m.poller.Cycle) })
	g.Go(func() error { return every(ctx, "state", m.config.StateInterval, m.state.Cycle) })
	g.Go(func() error { return every(ctx, "rate", m.config.RateInterval, m.rate.Cycle) })
	g.Go(func() error { return every(ctx, "volume", m.config.VolumeInterval, m.volume.Cycle) })
	return g.Wait()
}

// every runs fn, then sleeps interval, until ctx is cancelled. Cancellation is
// observed only between iterations; fn runs with a context that is never cancelled
// so in-flight requests complete.
func every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) error {
	logger.Info("Starting %s loop (interval %v)", name, interval)
	defer logger.Info("Stopped %s loop", name)

	work := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		fn(work)
		cycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// Seed fetches and registers every instrument not already present.
// Any failure is an initialization error.
func Seed(ctx context.Context, m *market.Market, source Source, insts []models.Instrument) error {
	for _, inst := range insts {
		if m.Contains(inst.Code) {
			continue
		}
		snap, err := source.Snapshot(ctx, inst)
		if err != nil {
			return fmt.Errorf("%w: %s %s: %w", models.ErrInitialization, inst.Kind, inst.Code, err)
		}
		m.AddOrUpdate(inst, snap)
		logger.Info("Loaded %s %s (%s)", inst.Kind, inst.Code, snap.Name)
	}
	watchedInstruments.Set(float64(m.Len()))
	return nil
}

// guard runs fn, recovering and logging a panic so one instrument cannot stop a loop.
func guard(loop, code string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			recoveredPanics.WithLabelValues(loop).Inc()
			logger.Error("Recovered panic in %s loop for %s: %v", loop, code, r)
		}
	}()
	fn()
}

// deliver hands n to the sink. Failures are logged and counted, never retried here.
func deliver(ctx context.Context, sink notify.Sink, n notify.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	notificationsTotal.WithLabelValues(string(n.Kind)).Inc()
	if err := sink.Notify(ctx, n); err != nil {
		deliveryErrors.Inc()
		logger.Error("Failed to deliver %s notification for %s: %v", n.Kind, n.Code, err)
	}
}
