package naver

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/marketwatch/internal/models"
)

// nextPageMarker is the class of the "last page" link, present only when
// older pages remain.
const nextPageMarker = "pgRR"

var hundred = decimal.NewFromInt(100)

// parseHistoryPage extracts ticks from a sise time table. Rows are
// "HH:MM | value | ... | cumulative volume | volume delta"; separator and
// header rows are skipped. Ticks are dated with the cutoff's calendar day.
func parseHistoryPage(body []byte, kind models.Kind, cutoff time.Time) (models.HistoryPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.HistoryPage{}, fmt.Errorf("%w: failed to parse HTML: %w", models.ErrFetch, err)
	}

	var ticks []models.Tick
	doc.Find("table.type_1 tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		clock, err := time.Parse("15:04", cellText(cells.Eq(0)))
		if err != nil {
			return
		}

		value, err := parseNumber(cellText(cells.Eq(1)))
		if err != nil {
			return
		}
		if kind == models.KindIndex {
			value = value.Mul(hundred)
		}

		volume, err := parseNumber(cellText(cells.Eq(cells.Length() - 2)))
		if err != nil {
			return
		}
		delta, err := parseNumber(cellText(cells.Eq(cells.Length() - 1)))
		if err != nil {
			return
		}

		ticks = append(ticks, models.Tick{
			Time: time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(),
				clock.Hour(), clock.Minute(), 0, 0, cutoff.Location()),
			Value:         value.Round(0).IntPart(),
			TradingVolume: volume.IntPart(),
			VolumeDelta:   delta.IntPart(),
		})
	})

	return models.HistoryPage{
		Ticks:      ticks,
		IsLastPage: !bytes.Contains(body, []byte(nextPageMarker)),
	}, nil
}

func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// parseNumber accepts comma-grouped decimals like "2,345.26".
func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}
