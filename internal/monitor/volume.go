package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

type notifiedRecord struct {
	TickTime  time.Time
	Magnitude float64
	SentAt    time.Time
}

// VolumeNotifier reports per-minute volume far above its recent baseline.
type VolumeNotifier struct {
	market     *market.Market
	sink       notify.Sink
	minDelta   float64
	multiplier float64
	window     int
	cooldown   time.Duration
	notified   map[string]notifiedRecord
	now        func() time.Time
}

func NewVolumeNotifier(m *market.Market, sink notify.Sink, config Config) *VolumeNotifier {
	return &VolumeNotifier{
		market:     m,
		sink:       sink,
		minDelta:   config.VolumeMinDelta,
		multiplier: config.VolumeMultiplier,
		window:     config.VolumeBaselineWindow,
		cooldown:   config.VolumeCooldown,
		notified:   make(map[string]notifiedRecord),
		now:        time.Now,
	}
}

func (v *VolumeNotifier) Cycle(ctx context.Context) {
	seen := make(map[string]bool)

	for _, inst := range v.market.CodesWithKind() {
		if inst.Kind != models.KindStock {
			continue
		}
		seen[inst.Code] = true
		guard("volume", inst.Code, func() { v.check(ctx, inst.Code) })
	}

	for code := range v.notified {
		if !seen[code] {
			delete(v.notified, code)
		}
	}
}

func (v *VolumeNotifier) check(ctx context.Context, code string) {
	share, ok := v.market.Get(code)
	if !ok || share.State != models.StateOpen {
		return
	}

	var (
		current, baseline float64
		latest            time.Time
		ready             bool
	)
	v.market.ReadGraph(code, func(g *market.Graph) {
		var okCur, okBase, okTime bool
		current, okCur = g.AverageVolumeDelta(0, 1)
		baseline, okBase = g.AverageVolumeDelta(1, v.window)
		latest, okTime = g.LatestTime()
		ready = okCur && okBase && okTime
	})
	if !ready || current <= v.minDelta || current <= baseline*v.multiplier {
		return
	}

	magnitude := current / math.Max(baseline, 1)
	now := v.now()
	if rec, ok := v.notified[code]; ok {
		if rec.TickTime.Equal(latest) {
			return
		}
		if magnitude <= rec.Magnitude && now.Sub(rec.SentAt) < v.cooldown {
			return
		}
	}
	v.notified[code] = notifiedRecord{TickTime: latest, Magnitude: magnitude, SentAt: now}

	deliver(ctx, v.sink, notify.Notification{
		Kind:  notify.KindVolume,
		Code:  code,
		Title: "Volume spike",
		Lines: []string{
			notify.SummaryLine(share.Kind, share.Snapshot),
			fmt.Sprintf("x%.1f　%s vs avg %s at %s",
				magnitude,
				notify.FormatValue(int64(current), 0),
				notify.FormatValue(int64(math.Round(baseline)), 0),
				latest.Format("15:04")),
		},
		Color: notify.ColorOf(share.ChangeValue),
	})
}
