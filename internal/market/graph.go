package market

import (
	"sort"
	"time"

	"github.com/rewired-gh/marketwatch/internal/models"
)

// GraphCapacity is the maximum number of ticks kept per instrument.
const GraphCapacity = 1024

// Graph is a bounded tick history kept in strictly ascending time order.
// It is not safe for concurrent use; Market guards it.
type Graph struct {
	ticks    []models.Tick
	capacity int
}

// NewGraph returns an empty graph holding at most capacity ticks.
func NewGraph(capacity int) *Graph {
	if capacity <= 0 {
		capacity = GraphCapacity
	}
	return &Graph{capacity: capacity}
}

// Upsert replaces the tick with the same time or inserts it at its sorted
// position. The oldest tick is evicted once the capacity is exceeded.
func (g *Graph) Upsert(tick models.Tick) {
	i := sort.Search(len(g.ticks), func(i int) bool {
		return !g.ticks[i].Time.Before(tick.Time)
	})
	if i < len(g.ticks) && g.ticks[i].Time.Equal(tick.Time) {
		g.ticks[i] = tick
		return
	}

	g.ticks = append(g.ticks, models.Tick{})
	copy(g.ticks[i+1:], g.ticks[i:])
	g.ticks[i] = tick

	if len(g.ticks) > g.capacity {
		g.ticks = append(g.ticks[:0], g.ticks[1:]...)
	}
}

func (g *Graph) Len() int {
	return len(g.ticks)
}

// LatestTime returns the newest tick time.
func (g *Graph) LatestTime() (time.Time, bool) {
	if len(g.ticks) == 0 {
		return time.Time{}, false
	}
	return g.ticks[len(g.ticks)-1].Time, true
}

// AverageVolumeDelta returns the mean VolumeDelta of count ticks starting
// offset positions back from the newest tick (offset 0 is the newest).
func (g *Graph) AverageVolumeDelta(offset, count int) (float64, bool) {
	if count <= 0 || offset < 0 || len(g.ticks) < offset+count {
		return 0, false
	}
	end := len(g.ticks) - offset
	var sum int64
	for _, t := range g.ticks[end-count : end] {
		sum += t.VolumeDelta
	}
	return float64(sum) / float64(count), true
}

// Ticks returns a copy of the stored ticks, oldest first.
func (g *Graph) Ticks() []models.Tick {
	out := make([]models.Tick, len(g.ticks))
	copy(out, g.ticks)
	return out
}
