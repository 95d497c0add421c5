// Package command implements the chat commands: quote cards, watchlist
// edits, alarm management and notification history.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/marketwatch/internal/alarm"
	"github.com/rewired-gh/marketwatch/internal/market"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
	"github.com/rewired-gh/marketwatch/internal/storage"
)

// DefaultIndex is shown when no index name is given.
const DefaultIndex = "KOSPI"

// Source is the subset of the quote source used by commands.
type Source interface {
	Snapshot(ctx context.Context, inst models.Instrument) (models.Snapshot, error)
	Search(ctx context.Context, keyword string) ([]models.SearchResult, error)
}

// History returns recorded notifications.
type History interface {
	Recent(ctx context.Context, code string, k int) ([]storage.Record, error)
}

// Handler executes commands against the shared registries.
type Handler struct {
	market  *market.Market
	alarms  *alarm.Registry
	source  Source
	history History
}

// NewHandler creates a command handler. history may be nil.
func NewHandler(m *market.Market, alarms *alarm.Registry, source Source, history History) *Handler {
	return &Handler{market: m, alarms: alarms, source: source, history: history}
}

func reply(title string, lines ...string) notify.Notification {
	return notify.Notification{Kind: notify.KindReply, Title: title, Lines: lines, CreatedAt: time.Now()}
}

// ShowIndex fetches and renders an index card.
func (h *Handler) ShowIndex(ctx context.Context, name string) (notify.Notification, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		name = DefaultIndex
	}
	inst := models.Instrument{Code: name, Kind: models.KindIndex}
	snap, err := h.source.Snapshot(ctx, inst)
	if err != nil {
		return notify.Notification{}, err
	}
	return card(inst, snap), nil
}

// ShowStock fetches and renders a stock card. Non-numeric input is resolved by search.
func (h *Handler) ShowStock(ctx context.Context, codeOrName string) (notify.Notification, error) {
	code, err := h.resolveStock(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	inst := models.Instrument{Code: code, Kind: models.KindStock}
	snap, err := h.source.Snapshot(ctx, inst)
	if err != nil {
		return notify.Notification{}, err
	}
	return card(inst, snap), nil
}

func card(inst models.Instrument, s models.Snapshot) notify.Notification {
	radix := inst.Kind.Radix()
	n := reply(s.Name,
		fmt.Sprintf("%s　%s%s　%+.2f%%",
			notify.FormatValue(s.Value, radix),
			notify.ChangeSymbol(s.ChangeValue),
			notify.FormatValue(absInt(s.ChangeValue), radix),
			s.ChangeRate),
		"Volume: "+notify.FormatValue(s.TradingVolume, 0),
		"Trading value: "+notify.FormatValue(s.TradingValue, 0),
		"High: "+notify.FormatValue(s.HighValue, radix),
		"Low: "+notify.FormatValue(s.LowValue, radix),
	)
	n.Code = inst.Code
	n.Color = notify.ColorOf(s.ChangeValue)
	n.Footer = string(s.State)
	return n
}

// Watch adds an instrument to the registry. Numeric codes are stocks; other
// input is tried as an index name first, then searched as a stock name.
func (h *Handler) Watch(ctx context.Context, codeOrName string) (notify.Notification, error) {
	inst, snap, err := h.resolveInstrument(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	h.market.AddOrUpdate(inst, snap)
	n := reply("Watching", notify.SummaryLine(inst.Kind, snap))
	n.Code = inst.Code
	return n, nil
}

// Unwatch removes an instrument from the registry.
func (h *Handler) Unwatch(ctx context.Context, codeOrName string) (notify.Notification, error) {
	code, err := h.resolveWatched(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	share, _ := h.market.Get(code)
	if !h.market.Remove(code) {
		return notify.Notification{}, fmt.Errorf("%w: %s is not watched", models.ErrNotFound, code)
	}
	n := reply("Unwatched", share.Name)
	n.Code = code
	return n, nil
}

// List renders summary lines for every watched instrument of kind.
func (h *Handler) List(kind models.Kind) notify.Notification {
	title := "Watched indices"
	if kind == models.KindStock {
		title = "Watched stocks"
	}

	n := reply(title)
	for _, inst := range h.market.CodesWithKind() {
		if inst.Kind != kind {
			continue
		}
		if share, ok := h.market.Get(inst.Code); ok {
			n.Lines = append(n.Lines, notify.SummaryLine(kind, share.Snapshot))
			n.Footer = string(share.State)
		}
	}
	if len(n.Lines) == 0 {
		n.Lines = []string{"Nothing watched"}
	}
	return n
}

// SetAlarm registers a price alarm for a watched stock. price is given in
// display units, e.g. "60,000".
func (h *Handler) SetAlarm(ctx context.Context, codeOrName, price string) (notify.Notification, error) {
	code, err := h.resolveWatched(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	share, ok := h.market.Get(code)
	if !ok {
		return notify.Notification{}, fmt.Errorf("%w: only watched instruments can have alarms", models.ErrNotFound)
	}
	if share.Kind != models.KindStock {
		return notify.Notification{}, fmt.Errorf("%w: alarms are only available for stocks", models.ErrNotFound)
	}
	target, err := parsePrice(price, share.Kind.Radix())
	if err != nil {
		return notify.Notification{}, err
	}

	h.alarms.Set(code, target)
	n := reply("Alarm set", fmt.Sprintf("%s　%s", share.Name, notify.FormatValue(target, share.Kind.Radix())))
	n.Code = code
	return n, nil
}

// RemoveAlarm deletes one price alarm.
func (h *Handler) RemoveAlarm(ctx context.Context, codeOrName, price string) (notify.Notification, error) {
	code, err := h.resolveWatched(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	name, radix := h.describe(code)
	target, err := parsePrice(price, radix)
	if err != nil {
		return notify.Notification{}, err
	}

	if !h.alarms.Remove(code, target) {
		return notify.Notification{}, fmt.Errorf("%w: no %s alarm on %s", models.ErrNotFound, notify.FormatValue(target, radix), name)
	}
	n := reply("Alarm removed", fmt.Sprintf("%s　%s", name, notify.FormatValue(target, radix)))
	n.Code = code
	return n, nil
}

// ListAlarms lists alarms of one instrument, or of all when codeOrName is empty.
func (h *Handler) ListAlarms(ctx context.Context, codeOrName string) (notify.Notification, error) {
	if strings.TrimSpace(codeOrName) == "" {
		n := reply("Alarms")
		for _, code := range h.alarms.Codes() {
			targets, _ := h.alarms.Get(code)
			name, radix := h.describe(code)
			n.Lines = append(n.Lines, fmt.Sprintf("%s : %s", name, joinTargets(targets, radix)))
		}
		if len(n.Lines) == 0 {
			return notify.Notification{}, fmt.Errorf("%w: no alarms set", models.ErrNotFound)
		}
		return n, nil
	}

	code, err := h.resolveWatched(ctx, codeOrName)
	if err != nil {
		return notify.Notification{}, err
	}
	name, radix := h.describe(code)
	targets, ok := h.alarms.Get(code)
	if !ok {
		return notify.Notification{}, fmt.Errorf("%w: no alarms on %s", models.ErrNotFound, name)
	}
	n := reply("Alarms - "+name, joinTargets(targets, radix))
	n.Code = code
	return n, nil
}

// Recent lists the last k recorded notifications.
func (h *Handler) Recent(ctx context.Context, k int) (notify.Notification, error) {
	if h.history == nil {
		return notify.Notification{}, errors.New("notification history is disabled")
	}
	if k <= 0 {
		k = 10
	}
	records, err := h.history.Recent(ctx, "", k)
	if err != nil {
		return notify.Notification{}, err
	}
	n := reply("Recent notifications")
	for _, r := range records {
		n.Lines = append(n.Lines, fmt.Sprintf("%s [%s] %s %s",
			r.CreatedAt.Format("01-02 15:04"), r.Kind, r.Title, r.Code))
	}
	if len(n.Lines) == 0 {
		n.Lines = []string{"No notifications yet"}
	}
	return n, nil
}

func (h *Handler) describe(code string) (string, int) {
	if share, ok := h.market.Get(code); ok {
		return share.Name, share.Kind.Radix()
	}
	return code, models.KindStock.Radix()
}

func joinTargets(targets []int64, radix int) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = notify.FormatValue(t, radix)
	}
	return strings.Join(parts, " | ")
}

// resolveInstrument finds and fetches the instrument named by input.
func (h *Handler) resolveInstrument(ctx context.Context, input string) (models.Instrument, models.Snapshot, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Instrument{}, models.Snapshot{}, fmt.Errorf("%w: empty code", models.ErrNotFound)
	}

	if !isNumeric(input) {
		inst := models.Instrument{Code: strings.ToUpper(input), Kind: models.KindIndex}
		if snap, err := h.source.Snapshot(ctx, inst); err == nil {
			return inst, snap, nil
		}
	}

	code, err := h.resolveStock(ctx, input)
	if err != nil {
		return models.Instrument{}, models.Snapshot{}, err
	}
	inst := models.Instrument{Code: code, Kind: models.KindStock}
	snap, err := h.source.Snapshot(ctx, inst)
	if err != nil {
		return models.Instrument{}, models.Snapshot{}, err
	}
	return inst, snap, nil
}

// resolveWatched maps input to a code, preferring codes already in the registry.
func (h *Handler) resolveWatched(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	for _, c := range []string{input, strings.ToUpper(input)} {
		if h.market.Contains(c) {
			return c, nil
		}
	}
	return h.resolveStock(ctx, input)
}

// resolveStock returns input when it is a numeric code, otherwise the first search hit.
func (h *Handler) resolveStock(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty code", models.ErrNotFound)
	}
	if isNumeric(input) {
		return input, nil
	}
	results, err := h.source.Search(ctx, input)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: no match for %q", models.ErrNotFound, input)
	}
	return results[0].Code, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// parsePrice converts display units to fixed point with radix decimals.
func parsePrice(s string, radix int) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return d.Shift(int32(radix)).Round(0).IntPart(), nil
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
