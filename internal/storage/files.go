package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rewired-gh/marketwatch/internal/logger"
)

const (
	indexWatchlist = "indices.txt"
	stockWatchlist = "stocks.txt"
	alarmExt       = ".txt"
)

// Watchlist is the persisted set of tracked codes.
type Watchlist struct {
	Indices []string
	Stocks  []string
}

// LoadWatchlist reads indices.txt and stocks.txt from dir.
// Missing files yield empty lists.
func LoadWatchlist(dir string) (Watchlist, error) {
	indices, err := readLines(filepath.Join(dir, indexWatchlist))
	if err != nil {
		return Watchlist{}, err
	}
	stocks, err := readLines(filepath.Join(dir, stockWatchlist))
	if err != nil {
		return Watchlist{}, err
	}
	return Watchlist{Indices: indices, Stocks: stocks}, nil
}

// SaveWatchlist overwrites indices.txt and stocks.txt in dir.
func SaveWatchlist(dir string, w Watchlist) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watchlist directory: %w", err)
	}
	if err := writeLines(filepath.Join(dir, indexWatchlist), w.Indices); err != nil {
		return err
	}
	return writeLines(filepath.Join(dir, stockWatchlist), w.Stocks)
}

// LoadAlarms reads every <code>.txt in dir. Lines that are not integers are skipped.
// A missing directory is created and yields no alarms.
func LoadAlarms(dir string) (map[string][]int64, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create alarm directory: %w", err)
		}
		return map[string][]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read alarm directory: %w", err)
	}

	alarms := make(map[string][]int64)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != alarmExt {
			continue
		}
		code := strings.TrimSuffix(e.Name(), alarmExt)
		lines, err := readLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			v, err := strconv.ParseInt(line, 10, 64)
			if err != nil {
				logger.Warn("Skipping malformed alarm %q for %s", line, code)
				continue
			}
			alarms[code] = append(alarms[code], v)
		}
	}
	return alarms, nil
}

// SaveAlarms writes one file per code and deletes files of codes no longer present.
func SaveAlarms(dir string, alarms map[string][]int64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create alarm directory: %w", err)
	}

	for code, targets := range alarms {
		lines := make([]string, len(targets))
		for i, t := range targets {
			lines[i] = strconv.FormatInt(t, 10)
		}
		if err := writeLines(filepath.Join(dir, code+alarmExt), lines); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read alarm directory: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != alarmExt {
			continue
		}
		if _, ok := alarms[strings.TrimSuffix(e.Name(), alarmExt)]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove stale alarm file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}

// writeLines replaces path atomically via a temp file rename.
func writeLines(path string, lines []string) error {
	tmp := path + ".tmp"
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
