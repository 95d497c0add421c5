package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/marketwatch/internal/alarm"
	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
	"github.com/rewired-gh/marketwatch/internal/storage"
)

type fakeSource struct {
	snapshots map[string]models.Snapshot
	search    map[string][]models.SearchResult
}

func (f *fakeSource) Snapshot(_ context.Context, inst models.Instrument) (models.Snapshot, error) {
	s, ok := f.snapshots[inst.Kind.String()+":"+inst.Code]
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", models.ErrFetch, inst.Code)
	}
	return s, nil
}

func (f *fakeSource) Search(_ context.Context, keyword string) ([]models.SearchResult, error) {
	r, ok := f.search[keyword]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, keyword)
	}
	return r, nil
}

type fakeHistory []storage.Record

func (f fakeHistory) Recent(_ context.Context, _ string, k int) ([]storage.Record, error) {
	if k < len(f) {
		return f[:k], nil
	}
	return f, nil
}

func newTestHandler() (*Handler, *market.Market, *alarm.Registry) {
	src := &fakeSource{
		snapshots: map[string]models.Snapshot{
			"index:KOSPI": {Name: "KOSPI", State: models.StateOpen, Value: 234526, ChangeValue: 1442, ChangeRate: 0.62},
			"stock:005930": {Name: "삼성전자", State: models.StateOpen, Value: 58500, ChangeValue: -300, ChangeRate: -0.51,
				TradingVolume: 21316295, HighValue: 59000, LowValue: 57800},
		},
		search: map[string][]models.SearchResult{
			"삼성전자": {{Code: "005930", Name: "삼성전자"}, {Code: "005935", Name: "삼성전자우"}},
		},
	}
	m := market.New()
	a := alarm.New()
	history := fakeHistory{
		{ID: "1", Notification: notify.Notification{Kind: notify.KindAlarm, Code: "005930", Title: "Alarm", CreatedAt: time.Date(2020, 11, 2, 10, 5, 0, 0, time.UTC)}},
	}
	return NewHandler(m, a, src, history), m, a
}

func TestShowIndex_DefaultsToKOSPI(t *testing.T) {
	h, _, _ := newTestHandler()

	n, err := h.ShowIndex(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "KOSPI", n.Title)
	assert.Equal(t, "2,345.26　▲14.42　+0.62%", n.Lines[0])
	assert.Equal(t, notify.Positive, n.Color)
	assert.Equal(t, "OPEN", n.Footer)
}

func TestShowStock_ResolvesName(t *testing.T) {
	h, _, _ := newTestHandler()

	n, err := h.ShowStock(context.Background(), "삼성전자")
	require.NoError(t, err)
	assert.Equal(t, "005930", n.Code)
	assert.Equal(t, "58,500　▼300　-0.51%", n.Lines[0])
	assert.Contains(t, n.Lines, "High: 59,000")
	assert.Equal(t, notify.Negative, n.Color)
}

func TestShowStock_UnknownName(t *testing.T) {
	h, _, _ := newTestHandler()

	_, err := h.ShowStock(context.Background(), "없는종목")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWatchAndUnwatch(t *testing.T) {
	h, m, _ := newTestHandler()
	ctx := context.Background()

	_, err := h.Watch(ctx, "kospi")
	require.NoError(t, err)
	_, err = h.Watch(ctx, "삼성전자")
	require.NoError(t, err)

	assert.Equal(t, []models.Instrument{
		{Code: "005930", Kind: models.KindStock},
		{Code: "KOSPI", Kind: models.KindIndex},
	}, m.CodesWithKind())

	stocks := h.List(models.KindStock)
	assert.Equal(t, []string{"삼성전자　58,500　▼300　-0.51%"}, stocks.Lines)
	indices := h.List(models.KindIndex)
	assert.Equal(t, []string{"KOSPI　2,345.26　▲14.42　+0.62%"}, indices.Lines)

	n, err := h.Unwatch(ctx, "KOSPI")
	require.NoError(t, err)
	assert.Equal(t, []string{"KOSPI"}, n.Lines)
	assert.False(t, m.Contains("KOSPI"))

	_, err = h.Unwatch(ctx, "KOSPI")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestList_Empty(t *testing.T) {
	h, _, _ := newTestHandler()
	assert.Equal(t, []string{"Nothing watched"}, h.List(models.KindIndex).Lines)
}

func TestAlarms(t *testing.T) {
	h, _, a := newTestHandler()
	ctx := context.Background()

	_, err := h.SetAlarm(ctx, "005930", "60000")
	assert.ErrorIs(t, err, models.ErrNotFound, "alarms require a watched instrument")

	_, err = h.Watch(ctx, "005930")
	require.NoError(t, err)
	_, err = h.Watch(ctx, "KOSPI")
	require.NoError(t, err)

	_, err = h.SetAlarm(ctx, "삼성전자", "60,000")
	require.NoError(t, err)
	_, err = h.SetAlarm(ctx, "005930", "58000")
	require.NoError(t, err)
	_, err = h.SetAlarm(ctx, "kospi", "2,400.5")
	assert.ErrorIs(t, err, models.ErrNotFound, "index alarms are never checked")

	_, ok := a.Get("KOSPI")
	assert.False(t, ok)

	all, err := h.ListAlarms(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"삼성전자 : 58,000 | 60,000"}, all.Lines)

	one, err := h.ListAlarms(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, []string{"58,000 | 60,000"}, one.Lines)

	_, err = h.RemoveAlarm(ctx, "005930", "58000")
	require.NoError(t, err)
	_, err = h.RemoveAlarm(ctx, "005930", "58000")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.SetAlarm(ctx, "005930", "abc")
	assert.Error(t, err)
}

func TestListAlarms_None(t *testing.T) {
	h, _, _ := newTestHandler()
	_, err := h.ListAlarms(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecent(t *testing.T) {
	h, _, _ := newTestHandler()

	n, err := h.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"11-02 10:05 [alarm] Alarm 005930"}, n.Lines)

	noHistory := NewHandler(market.New(), alarm.New(), &fakeSource{}, nil)
	_, err = noHistory.Recent(context.Background(), 5)
	assert.Error(t, err)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in    string
		radix int
		want  int64
	}{
		{"58000", 0, 58000},
		{"58,000", 0, 58000},
		{"2400.5", 2, 240050},
		{"2,345.26", 2, 234526},
		{"100", 2, 10000},
	}
	for _, tt := range tests {
		got, err := parsePrice(tt.in, tt.radix)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
