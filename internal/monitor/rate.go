package monitor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

// RateNotifier reports change rates leaving a band of width 2*r around the
// last reference level. Bands exist only while the instrument is open.
type RateNotifier struct {
	market *market.Market
	sink   notify.Sink
	width  decimal.Decimal
	upper  map[string]decimal.Decimal
}

func NewRateNotifier(m *market.Market, sink notify.Sink, width float64) *RateNotifier {
	return &RateNotifier{
		market: m,
		sink:   sink,
		width:  decimal.NewFromFloat(width),
		upper:  make(map[string]decimal.Decimal),
	}
}

// initialUpper centers a fresh band on the nearest multiple of the width.
func (r *RateNotifier) initialUpper(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(r.width).Round(0).Mul(r.width).Add(r.width)
}

// recenteredUpper places rate strictly inside the new band.
func (r *RateNotifier) recenteredUpper(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(r.width).Floor().Mul(r.width).Add(r.width)
}

// upperBound returns the current upper bound for code, if a band exists.
func (r *RateNotifier) upperBound(code string) (float64, bool) {
	u, ok := r.upper[code]
	if !ok {
		return 0, false
	}
	return u.InexactFloat64(), true
}

func (r *RateNotifier) Cycle(ctx context.Context) {
	seen := make(map[string]bool)

	for _, code := range r.market.Codes() {
		guard("rate", code, func() {
			share, ok := r.market.Get(code)
			if !ok {
				return
			}
			seen[code] = true

			if share.State != models.StateOpen {
				delete(r.upper, code)
				return
			}

			rate := decimal.NewFromFloat(share.ChangeRate)
			upper, ok := r.upper[code]
			if !ok {
				r.upper[code] = r.initialUpper(rate)
				return
			}

			lower := upper.Sub(r.width.Mul(decimal.NewFromInt(2)))
			if rate.LessThan(upper) && rate.GreaterThan(lower) {
				return
			}

			direction := rate.Cmp(upper.Sub(r.width))
			next := r.recenteredUpper(rate)
			r.upper[code] = next

			color := notify.Neutral
			switch {
			case direction > 0:
				color = notify.Positive
			case direction < 0:
				color = notify.Negative
			}
			deliver(ctx, r.sink, notify.Notification{
				Kind:   notify.KindRate,
				Code:   code,
				Title:  "Change rate breakout",
				Lines:  []string{notify.SummaryLine(share.Kind, share.Snapshot)},
				Color:  color,
				Footer: fmt.Sprintf("band %s%% ~ %s%%", next.Sub(r.width.Mul(decimal.NewFromInt(2))).StringFixed(2), next.StringFixed(2)),
			})
		})
	}

	for code := range r.upper {
		if !seen[code] {
			delete(r.upper, code)
		}
	}
}
