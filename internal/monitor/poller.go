package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/marketwatch/internal/alarm"
	"github.com/rewired-gh/marketwatch/internal/logger"
	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

// Poller refreshes snapshots, fires price alarms and backfills history.
type Poller struct {
	market *market.Market
	alarms *alarm.Registry
	source Source
	sink   notify.Sink
	hours  Hours
	config Config

	now   func() time.Time
	sleep func(time.Duration)

	wasOpen bool
}

func NewPoller(m *market.Market, alarms *alarm.Registry, source Source, sink notify.Sink, config Config) *Poller {
	return &Poller{
		market: m,
		alarms: alarms,
		source: source,
		sink:   sink,
		hours:  NewHours(config.Timezone, config.OpenHour, config.CloseHour),
		config: config,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Cycle runs one polling pass over every registered instrument.
func (p *Poller) Cycle(ctx context.Context) {
	now := p.now()
	open := p.hours.Open(now)
	if open != p.wasOpen {
		if open {
			logger.Info("Market hours started, tracking %d instruments", p.market.Len())
		} else {
			logger.Info("Market hours ended")
		}
		p.wasOpen = open
	}
	if !open {
		return
	}

	insts := p.market.CodesWithKind()
	watchedInstruments.Set(float64(len(insts)))
	for _, inst := range insts {
		guard("poller", inst.Code, func() {
			if p.refresh(ctx, inst) {
				p.backfill(ctx, inst, now)
			}
		})
	}
}

// refresh fetches a snapshot and applies it. Returns false when the fetch
// failed or the instrument was removed while the request was in flight.
func (p *Poller) refresh(ctx context.Context, inst models.Instrument) bool {
	snap, err := p.source.Snapshot(ctx, inst)
	if err != nil {
		fetchErrors.WithLabelValues("snapshot").Inc()
		logger.Warn("Failed to fetch snapshot for %s: %v", inst.Code, err)
		return false
	}

	prev, ok := p.market.UpdateIfPresent(inst.Code, snap)
	if !ok {
		logger.Debug("Dropped snapshot for %s: removed during fetch", inst.Code)
		return false
	}

	if inst.Kind == models.KindStock {
		if fired := p.alarms.Fire(inst.Code, prev.Value, snap.Value); len(fired) > 0 {
			alarmsFired.Add(float64(len(fired)))
			deliver(ctx, p.sink, alarmNotification(inst, prev, snap, fired))
		}
	}
	return true
}

func alarmNotification(inst models.Instrument, prev, snap models.Snapshot, fired []int64) notify.Notification {
	radix := inst.Kind.Radix()
	move := snap.Value - prev.Value

	lines := []string{notify.SummaryLine(inst.Kind, snap)}
	for _, target := range fired {
		lines = append(lines, fmt.Sprintf("%s %s", notify.ChangeSymbol(move), notify.FormatValue(target, radix)))
	}

	return notify.Notification{
		Kind:   notify.KindAlarm,
		Code:   inst.Code,
		Title:  "Price alarm",
		Lines:  lines,
		Color:  notify.ColorOf(move),
		Footer: fmt.Sprintf("%s → %s", notify.FormatValue(prev.Value, radix), notify.FormatValue(snap.Value, radix)),
	}
}

// backfill loads history pages, newest first, until the graph is deep enough
// or the day rollback budget is spent. The newest page is always fetched so
// the graph keeps up with the current session.
func (p *Poller) backfill(ctx context.Context, inst models.Instrument, now time.Time) {
	local := now.In(p.hours.Location())
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, p.hours.Location())

	depth, page, rollbacks := 0, 1, 0
	for first := true; depth < p.config.MinDepth && rollbacks <= p.config.MaxRollbacks; first = false {
		if !first {
			p.sleep(p.config.RequestDelay)
		}

		hp, err := p.source.HistoryPage(ctx, inst, cutoff, page)
		if err != nil {
			fetchErrors.WithLabelValues("history").Inc()
			logger.Warn("Failed to fetch history page %d of %s at %s: %v", page, inst.Code, cutoff.Format("2006-01-02"), err)
			depth += p.config.ErrorPenalty
			p.sleep(p.config.ErrorBackoff)
			continue
		}

		n, ok := p.market.UpsertTicks(inst.Code, hp.Ticks)
		if !ok {
			return
		}
		depth = n

		if hp.IsLastPage {
			cutoff = cutoff.AddDate(0, 0, -1)
			page = 1
			rollbacks++
		} else {
			page++
		}
	}
	logger.Debug("Backfilled %s to %d ticks", inst.Code, depth)
}
