package monitor

import (
	"time"

	"github.com/rewired-gh/marketwatch/internal/logger"
)

// kst is used when tzdata for the configured zone is unavailable.
var kst = time.FixedZone("KST", 9*60*60)

// Hours is the daily trading window in which the poller fetches.
type Hours struct {
	loc       *time.Location
	openHour  int
	closeHour int
}

// NewHours builds a window of [openHour, closeHour) on weekdays in timezone.
func NewHours(timezone string, openHour, closeHour int) Hours {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("Failed to load timezone %q, falling back to UTC+9: %v", timezone, err)
		loc = kst
	}
	return Hours{loc: loc, openHour: openHour, closeHour: closeHour}
}

// Location returns the exchange timezone.
func (h Hours) Location() *time.Location {
	return h.loc
}

// Open reports whether t falls inside the window.
func (h Hours) Open(t time.Time) bool {
	local := t.In(h.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return local.Hour() >= h.openHour && local.Hour() < h.closeHour
}
