package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

var seoul = time.FixedZone("KST", 9*60*60)

// wednesday10 is inside default market hours.
var wednesday10 = time.Date(2020, 11, 4, 10, 0, 0, 0, seoul)

type historyKey struct {
	code string
	date string
	page int
}

type fakeSource struct {
	mu        sync.Mutex
	snapshots map[string]models.Snapshot
	pages     map[historyKey]models.HistoryPage
	historyOK bool
	onFetch   func(code string)

	snapshotCalls []string
	historyCalls  []historyKey
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshots: make(map[string]models.Snapshot),
		pages:     make(map[historyKey]models.HistoryPage),
		historyOK: true,
	}
}

func (f *fakeSource) set(code string, s models.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[code] = s
}

func (f *fakeSource) Snapshot(_ context.Context, inst models.Instrument) (models.Snapshot, error) {
	if f.onFetch != nil {
		f.onFetch(inst.Code)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls = append(f.snapshotCalls, inst.Code)
	s, ok := f.snapshots[inst.Code]
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", models.ErrFetch, inst.Code)
	}
	return s, nil
}

// HistoryPage returns the registered page, or an empty last page.
func (f *fakeSource) HistoryPage(_ context.Context, inst models.Instrument, cutoff time.Time, page int) (models.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := historyKey{code: inst.Code, date: cutoff.Format("2006-01-02"), page: page}
	f.historyCalls = append(f.historyCalls, key)
	if !f.historyOK {
		return models.HistoryPage{}, fmt.Errorf("%w: history", models.ErrFetch)
	}
	if hp, ok := f.pages[key]; ok {
		return hp, nil
	}
	return models.HistoryPage{IsLastPage: true}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	items []notify.Notification
	err   error
}

func (r *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return r.err
}

func (r *recordingSink) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

func stock(code string) models.Instrument {
	return models.Instrument{Code: code, Kind: models.KindStock}
}

func index(code string) models.Instrument {
	return models.Instrument{Code: code, Kind: models.KindIndex}
}

func snapshot(name string, state models.State, value int64, rate float64) models.Snapshot {
	return models.Snapshot{Name: name, State: state, Value: value, ChangeValue: value / 100, ChangeRate: rate}
}

// ticksAt builds one tick per minute starting at start with the given volume deltas.
func ticksAt(start time.Time, deltas ...int64) []models.Tick {
	ticks := make([]models.Tick, len(deltas))
	for i, d := range deltas {
		ticks[i] = models.Tick{Time: start.Add(time.Duration(i) * time.Minute), Value: 100, VolumeDelta: d}
	}
	return ticks
}
