package market

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kospi = models.Instrument{Code: "KOSPI", Kind: models.KindIndex}

func TestMarket_AddOrUpdatePreservesGraph(t *testing.T) {
	m := New()
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI", State: models.StatePreOpen, Value: 100})

	n, ok := m.UpsertTicks("KOSPI", []models.Tick{tickAt(1, 1), tickAt(2, 2)})
	require.True(t, ok)
	require.Equal(t, 2, n)

	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI", State: models.StateOpen, Value: 120})

	share, ok := m.Get("KOSPI")
	require.True(t, ok)
	assert.Equal(t, models.StateOpen, share.State)
	assert.Equal(t, int64(120), share.Value)
	assert.Equal(t, 2, share.GraphLen)
	assert.Equal(t, models.KindIndex, share.Kind)
}

func TestMarket_SnapshotOverwrittenWholesale(t *testing.T) {
	m := New()
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI", Value: 100, HighValue: 130, TradingVolume: 9})
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI", Value: 110})

	share, _ := m.Get("KOSPI")
	assert.Equal(t, int64(0), share.HighValue)
	assert.Equal(t, int64(0), share.TradingVolume)
}

func TestMarket_UpdateIfPresentDoesNotResurrect(t *testing.T) {
	m := New()
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI", Value: 100})

	prev, ok := m.UpdateIfPresent("KOSPI", models.Snapshot{Name: "KOSPI", Value: 105})
	require.True(t, ok)
	assert.Equal(t, int64(100), prev.Value)

	require.True(t, m.Remove("KOSPI"))
	assert.False(t, m.Remove("KOSPI"))

	_, ok = m.UpdateIfPresent("KOSPI", models.Snapshot{Name: "KOSPI", Value: 110})
	assert.False(t, ok)
	_, ok = m.UpsertTicks("KOSPI", []models.Tick{tickAt(1, 1)})
	assert.False(t, ok)
	assert.False(t, m.Contains("KOSPI"))
}

func TestMarket_CodesSorted(t *testing.T) {
	m := New()
	m.AddOrUpdate(models.Instrument{Code: "005930", Kind: models.KindStock}, models.Snapshot{Name: "Samsung"})
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI"})
	m.AddOrUpdate(models.Instrument{Code: "KOSDAQ", Kind: models.KindIndex}, models.Snapshot{Name: "KOSDAQ"})

	assert.Equal(t, []string{"005930", "KOSDAQ", "KOSPI"}, m.Codes())

	insts := m.CodesWithKind()
	require.Len(t, insts, 3)
	assert.Equal(t, models.KindStock, insts[0].Kind)
	assert.Equal(t, 3, m.Len())
}

func TestMarket_ReadGraph(t *testing.T) {
	m := New()
	m.AddOrUpdate(kospi, models.Snapshot{Name: "KOSPI"})
	m.UpsertTicks("KOSPI", []models.Tick{tickAt(3, 30), tickAt(4, 40)})

	var avg float64
	var ok bool
	found := m.ReadGraph("KOSPI", func(g *Graph) {
		avg, ok = g.AverageVolumeDelta(0, 2)
	})
	require.True(t, found)
	require.True(t, ok)
	assert.InDelta(t, 35.0, avg, 1e-9)

	assert.False(t, m.ReadGraph("NOPE", func(*Graph) {}))
}

func TestMarket_ConcurrentAccess(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			inst := models.Instrument{Code: fmt.Sprintf("C%d", w%4), Kind: models.KindStock}
			for i := 0; i < 200; i++ {
				m.AddOrUpdate(inst, models.Snapshot{Name: inst.Code, Value: int64(i)})
				m.UpsertTicks(inst.Code, []models.Tick{tickAt(i, int64(i))})
				m.Get(inst.Code)
				m.Codes()
				if i%50 == 0 {
					m.Remove(inst.Code)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Len(), 4)
}
