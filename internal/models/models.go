// Package models defines the core domain entities: instruments, snapshots, ticks and search results.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes market indices from listed equities.
type Kind int

const (
	KindIndex Kind = iota
	KindStock
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindStock:
		return "stock"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Radix is the number of fixed-point decimals used by values of this kind.
// Index values are reported in hundredths, stock prices in whole won.
func (k Kind) Radix() int {
	if k == KindIndex {
		return 2
	}
	return 0
}

// Instrument identifies a tracked index or equity. Immutable after creation.
type Instrument struct {
	Code string `json:"code"`
	Kind Kind   `json:"kind"`
}

// State is the market session state reported for an instrument.
type State string

const (
	StatePreOpen State = "PREOPEN"
	StateOpen    State = "OPEN"
	StateClose   State = "CLOSE"
)

// ParseState converts the wire representation into a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePreOpen, StateOpen, StateClose:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown market state %q", s)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Snapshot is the latest known summary for an instrument.
// It is replaced wholesale on every successful refresh.
type Snapshot struct {
	Name          string  `json:"name"`
	State         State   `json:"state"`
	Value         int64   `json:"value"`
	ChangeValue   int64   `json:"change_value"`
	ChangeRate    float64 `json:"change_rate"`
	TradingVolume int64   `json:"trading_volume"`
	HighValue     int64   `json:"high_value"`
	LowValue      int64   `json:"low_value"`
	TradingValue  int64   `json:"trading_value"`
}

// Validate checks snapshot field constraints.
func (s *Snapshot) Validate() error {
	if s.Name == "" {
		return errors.New("snapshot name must not be empty")
	}
	if _, err := ParseState(string(s.State)); err != nil {
		return err
	}
	if s.Value < 0 {
		return errors.New("value must not be negative")
	}
	if s.TradingVolume < 0 {
		return errors.New("trading volume must not be negative")
	}
	return nil
}

// Tick is one timestamped historical sample. Time has minute resolution.
type Tick struct {
	Time          time.Time `json:"time"`
	Value         int64     `json:"value"`
	TradingVolume int64     `json:"trading_volume"`
	VolumeDelta   int64     `json:"volume_delta"`
}

// HistoryPage is one page of historical ticks returned by a quote source.
type HistoryPage struct {
	Ticks      []Tick
	IsLastPage bool
}

// SearchResult is a single keyword search hit.
type SearchResult struct {
	Code string `json:"cd"`
	Name string `json:"nm"`
}
