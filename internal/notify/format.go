package notify

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/marketwatch/internal/models"
)

// FormatValue renders a fixed-point value with radix decimals and thousands
// separators, e.g. FormatValue(123456, 2) == "1,234.56".
func FormatValue(v int64, radix int) string {
	var b strings.Builder
	u := uint64(v)
	if v < 0 {
		b.WriteByte('-')
		u = -u
	}

	scale := uint64(1)
	for i := 0; i < radix; i++ {
		scale *= 10
	}

	b.WriteString(humanize.BigComma(new(big.Int).SetUint64(u / scale)))
	if radix > 0 {
		fmt.Fprintf(&b, ".%0*d", radix, u%scale)
	}
	return b.String()
}

// ChangeSymbol returns the arrow used in front of a change value.
func ChangeSymbol(v int64) string {
	switch {
	case v > 0:
		return "▲"
	case v < 0:
		return "▼"
	default:
		return "="
	}
}

// ColorOf classifies a signed change.
func ColorOf(v int64) Color {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	default:
		return Neutral
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// SummaryLine renders "name　value　▲change　+0.00%" for one instrument.
func SummaryLine(kind models.Kind, s models.Snapshot) string {
	radix := kind.Radix()
	return fmt.Sprintf("%s　%s　%s%s　%+.2f%%",
		s.Name,
		FormatValue(s.Value, radix),
		ChangeSymbol(s.ChangeValue),
		FormatValue(abs(s.ChangeValue), radix),
		s.ChangeRate,
	)
}
