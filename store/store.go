// Package store persists the bot's three durable documents (guild config,
// notification state, tickets) as flat JSON files. Each document is owned by a
// single store object: mutations are serialized by a per-document mutex and
// flushed with a write-to-temp-then-rename so a crash mid-write never leaves a
// truncated file behind. A malformed document on load is reset to empty and
// logged; it never prevents startup.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// FormatID renders a Discord snowflake for API calls.
func FormatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseID parses a Discord snowflake string. Returns 0 on garbage input.
func ParseID(s string) uint64 {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// loadJSON reads path into v. A missing file leaves v untouched. A file that
// fails to decode is treated as corruption: v is left untouched (the caller
// starts empty) and the event is logged.
func loadJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		slog.Error("store document corrupt, resetting to empty", slog.String("path", path), slog.Any("err", err))
		return nil
	}
	return nil
}

// saveJSON writes v to path atomically.
func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// clone deep-copies src into dst via JSON. Used to hand out snapshots that
// callers can hold across suspension points without racing mutations.
func clone(src, dst any) {
	b, err := json.Marshal(src)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, dst)
}
