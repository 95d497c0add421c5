// Package naver fetches realtime snapshots, intraday history pages and
// keyword search results from Naver Finance.
package naver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/korean"

	"github.com/rewired-gh/marketwatch/internal/models"
)

// Client provides access to the Naver Finance endpoints
type Client struct {
	pollingURL string
	financeURL string
	mobileURL  string
	http       *resty.Client
}

// NewClient creates a new Naver Finance client
func NewClient(pollingURL, financeURL, mobileURL, userAgent string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)

	return &Client{
		pollingURL: strings.TrimRight(pollingURL, "/"),
		financeURL: strings.TrimRight(financeURL, "/"),
		mobileURL:  strings.TrimRight(mobileURL, "/"),
		http:       client,
	}
}

// envelope is the common wrapper of the polling and mobile JSON APIs.
type envelope struct {
	ResultCode string          `json:"resultCode"`
	Result     json.RawMessage `json:"result"`
}

type pollingResult struct {
	Areas []struct {
		Name  string            `json:"name"`
		Datas []json.RawMessage `json:"datas"`
	} `json:"areas"`
}

type snapshotWire struct {
	Name          string       `json:"nm"`
	State         models.State `json:"ms"`
	Value         int64        `json:"nv"`
	ChangeValue   int64        `json:"cv"`
	ChangeRate    float64      `json:"cr"`
	ChangeType    string       `json:"rf"`
	HighValue     int64        `json:"hv"`
	LowValue      int64        `json:"lv"`
	TradingVolume int64        `json:"aq"`
	TradingValue  int64        `json:"aa"`
}

// Snapshot fetches the realtime summary of an index or stock.
func (c *Client) Snapshot(ctx context.Context, inst models.Instrument) (models.Snapshot, error) {
	service := "SERVICE_INDEX"
	if inst.Kind == models.KindStock {
		service = "SERVICE_ITEM"
	}

	body, err := c.get(ctx, c.pollingURL+"/api/realtime", map[string]string{
		"query": service + ":" + inst.Code,
	})
	if err != nil {
		return models.Snapshot{}, err
	}

	return parseSnapshot(body, inst)
}

// Search looks up stocks by name or code fragment.
// Returns models.ErrNotFound when nothing matches.
func (c *Client) Search(ctx context.Context, keyword string) ([]models.SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: empty keyword", models.ErrNotFound)
	}

	body, err := c.get(ctx, c.mobileURL+"/api/json/search/searchListJson.nhn", map[string]string{
		"keyword": keyword,
	})
	if err != nil {
		return nil, err
	}

	return parseSearch(body, keyword)
}

// HistoryPage fetches one page of intraday ticks at or before cutoff.
// Page numbers start at 1 with the newest ticks.
func (c *Client) HistoryPage(ctx context.Context, inst models.Instrument, cutoff time.Time, page int) (models.HistoryPage, error) {
	path := "/sise/sise_index_time.nhn"
	if inst.Kind == models.KindStock {
		path = "/item/sise_time.nhn"
	}

	body, err := c.get(ctx, c.financeURL+path, map[string]string{
		"code":     inst.Code,
		"thistime": cutoff.Format("20060102150405"),
		"page":     fmt.Sprintf("%d", page),
	})
	if err != nil {
		return models.HistoryPage{}, err
	}

	return parseHistoryPage(body, inst.Kind, cutoff)
}

// get performs a GET request and returns the body as UTF-8.
func (c *Client) get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetch, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d from %s", models.ErrFetch, resp.StatusCode(), url)
	}

	body, err := toUTF8(resp.Body(), resp.Header().Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode body: %w", models.ErrFetch, err)
	}
	return body, nil
}

// toUTF8 converts EUC-KR payloads. Bodies that are already valid UTF-8
// and not labelled EUC-KR are returned unchanged.
func toUTF8(body []byte, contentType string) ([]byte, error) {
	labelled := strings.Contains(strings.ToLower(contentType), "euc-kr")
	if !labelled && utf8.Valid(body) {
		return body, nil
	}
	return korean.EUCKR.NewDecoder().Bytes(body)
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", models.ErrFetch, err)
	}
	if env.ResultCode != "success" {
		return nil, fmt.Errorf("%w: result code %q", models.ErrFetch, env.ResultCode)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, fmt.Errorf("%w: missing result", models.ErrFetch)
	}
	return env.Result, nil
}

func parseSnapshot(body []byte, inst models.Instrument) (models.Snapshot, error) {
	raw, err := decodeEnvelope(body)
	if err != nil {
		return models.Snapshot{}, err
	}

	var result pollingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: failed to decode result: %w", models.ErrFetch, err)
	}
	if len(result.Areas) == 0 || len(result.Areas[0].Datas) == 0 || string(result.Areas[0].Datas[0]) == "null" {
		return models.Snapshot{}, fmt.Errorf("%w: no data for %s", models.ErrFetch, inst.Code)
	}

	var w snapshotWire
	if err := json.Unmarshal(result.Areas[0].Datas[0], &w); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: failed to decode snapshot: %w", models.ErrFetch, err)
	}

	snap := models.Snapshot{
		Name:          w.Name,
		State:         w.State,
		Value:         w.Value,
		ChangeValue:   w.ChangeValue,
		ChangeRate:    w.ChangeRate,
		TradingVolume: w.TradingVolume,
		HighValue:     w.HighValue,
		LowValue:      w.LowValue,
		TradingValue:  w.TradingValue,
	}
	if inst.Kind == models.KindIndex || snap.Name == "" {
		snap.Name = inst.Code
	}
	// Stock change magnitudes are unsigned; rf 4 (lower limit) and 5 (fall) mark a decline.
	if inst.Kind == models.KindStock && (w.ChangeType == "4" || w.ChangeType == "5") {
		snap.ChangeValue = -abs(snap.ChangeValue)
		if snap.ChangeRate > 0 {
			snap.ChangeRate = -snap.ChangeRate
		}
	}

	if err := snap.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: invalid snapshot for %s: %w", models.ErrFetch, inst.Code, err)
	}
	return snap, nil
}

func parseSearch(body []byte, keyword string) ([]models.SearchResult, error) {
	raw, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	var result struct {
		D *[]models.SearchResult `json:"d"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode search result: %w", models.ErrFetch, err)
	}
	if result.D == nil {
		return nil, fmt.Errorf("%w: missing search data", models.ErrFetch)
	}
	if len(*result.D) == 0 {
		return nil, fmt.Errorf("%w: no match for %q", models.ErrNotFound, keyword)
	}
	return *result.D, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
