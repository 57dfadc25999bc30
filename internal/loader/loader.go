// Package loader streams newline-delimited keys into a string map.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/homier/keymap"
	"github.com/rs/zerolog"
	"github.com/sugawarayuuta/sonnet"
)

// ErrMapFull is returned when the map could not grow to hold another key.
var ErrMapFull = errors.New("the map could not grow")

// Report summarizes a load.
type Report struct {
	Keys       int     `json:"keys"`
	Duplicates int     `json:"duplicates"`
	Removed    int     `json:"removed"`
	Elements   int     `json:"elements"`
	Capacity   int     `json:"capacity"`
	Tombstones int     `json:"tombstones"`
	TableBytes uintptr `json:"table_bytes"`
	KeyBytes   uintptr `json:"key_bytes"`
	MemUsage   uintptr `json:"mem_usage"`
}

// JSON encodes the report
func (report Report) JSON() ([]byte, error) {
	return sonnet.Marshal(report)
}

// Loader fills a map with keys, remembering the line each key was first seen on
type Loader struct {
	Map    *keymap.StringMap[int]
	Logger zerolog.Logger

	keys       int
	duplicates int
	removed    int
}

// New creates a new loader filling the given map
func New(m *keymap.StringMap[int], logger zerolog.Logger) *Loader {
	return &Loader{
		Map:    m,
		Logger: logger,
	}
}

// Load inserts every non-empty line of r. Keys seen before keep the line number of their first occurrence.
// Lines longer than MaxKeyLength fail with bufio.ErrTooLong.
func (loader *Loader) Load(r io.Reader) error {
	return scanKeys(r, func(line int, key string) error {
		loader.keys++

		ins := loader.Map.FindForAdd(key)
		if ins.Found() {
			loader.duplicates++
			loader.Logger.Debug().Str("key", key).Int("line", line).Int("first", *ins.Value()).Msg("duplicate key")
			return nil
		}

		*ins.Value() = line
		if !loader.Map.Add(&ins) {
			return fmt.Errorf("line %d: %w", line, ErrMapFull)
		}
		return nil
	})
}

// Remove deletes every key listed in r from the map
func (loader *Loader) Remove(r io.Reader) error {
	return scanKeys(r, func(line int, key string) error {
		res := loader.Map.Find(key)
		if !res.Found() {
			loader.Logger.Debug().Str("key", key).Int("line", line).Msg("key to remove is not present")
			return nil
		}
		loader.Map.RemoveResult(res)
		loader.removed++
		return nil
	})
}

// Report builds the report of everything loaded so far
func (loader *Loader) Report() Report {
	stats := loader.Map.Stats()
	return Report{
		Keys:       loader.keys,
		Duplicates: loader.duplicates,
		Removed:    loader.removed,
		Elements:   stats.Elements,
		Capacity:   stats.Capacity,
		Tombstones: stats.Tombstones,
		TableBytes: stats.TableBytes,
		KeyBytes:   stats.KeyBytes,
		MemUsage:   stats.MemUsage,
	}
}

// MaxKeyLength is the longest line Load and Remove accept as a key.
const MaxKeyLength = 16 << 20

func scanKeys(r io.Reader, fn func(line int, key string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), MaxKeyLength)
	for line := 1; scanner.Scan(); line++ {
		key := scanner.Text()
		if key == "" {
			continue
		}
		if err := fn(line, key); err != nil {
			return err
		}
	}
	return scanner.Err()
}
