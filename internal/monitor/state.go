package monitor

import (
	"context"

	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

// StateNotifier reports market state transitions, batched per cycle.
type StateNotifier struct {
	market *market.Market
	sink   notify.Sink
	last   map[string]models.State
}

func NewStateNotifier(m *market.Market, sink notify.Sink) *StateNotifier {
	return &StateNotifier{market: m, sink: sink, last: make(map[string]models.State)}
}

// Cycle compares each instrument's state with the previous cycle. The first
// observation is recorded silently. The batch title is the state of the
// transitioned instrument with the smallest code.
func (s *StateNotifier) Cycle(ctx context.Context) {
	var (
		lines []string
		rep   *market.Share
	)
	seen := make(map[string]bool)

	for _, code := range s.market.Codes() {
		guard("state", code, func() {
			share, ok := s.market.Get(code)
			if !ok {
				return
			}
			seen[code] = true

			prev, known := s.last[code]
			s.last[code] = share.State
			if !known || prev == share.State {
				return
			}

			lines = append(lines, notify.SummaryLine(share.Kind, share.Snapshot))
			if rep == nil {
				rep = &share
			}
		})
	}

	for code := range s.last {
		if !seen[code] {
			delete(s.last, code)
		}
	}

	if rep == nil {
		return
	}
	deliver(ctx, s.sink, notify.Notification{
		Kind:  notify.KindState,
		Code:  rep.Code,
		Title: string(rep.State),
		Lines: lines,
		Color: notify.ColorOf(rep.ChangeValue),
	})
}
