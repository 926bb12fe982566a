// Copyright (C) 2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LevelFatal is used for the single entry written when the process is
// about to stop because of an unrecoverable error.
const LevelFatal = slog.Level(12)

// CategoryKey is the attribute that names the component a logger belongs
// to. Per-category minimum levels are keyed on it.
const CategoryKey = "category"

// lowestLevel lets the override handler be the only level gate in front of
// the sinks.
const lowestLevel = slog.LevelDebug - 4

// BootstrapOverrides raises the minimum level of chatty library categories
// while the bootstrap logger is active.
var BootstrapOverrides = map[string]slog.Level{
	"net/http":            slog.LevelWarn,
	"go.opentelemetry.io": slog.LevelWarn,
}

// Category returns a logger tagged with the given category.
func Category(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String(CategoryKey, name))
}

// ParseLevel accepts debug, info, warn, error and fatal, case-insensitively.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "information":
		return slog.LevelInfo, nil
	case "debug", "verbose":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func parseOverrides(raw map[string]string) (map[string]slog.Level, error) {
	overrides := make(map[string]slog.Level, len(raw))
	for category, s := range raw {
		level, err := ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("override for category %q: %w", category, err)
		}
		overrides[category] = level
	}
	return overrides, nil
}

// replaceLevelNames renders LevelFatal as FATAL instead of ERROR+4.
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelFatal {
			a.Value = slog.StringValue("FATAL")
		}
	}
	return a
}

// levelOverrideHandler applies a minimum level chosen from the logger's
// category. Only a category bound with Logger.With (before any group) is
// considered; Enabled runs before per-call attributes exist.
type levelOverrideHandler struct {
	next         slog.Handler
	defaultLevel slog.Level
	overrides    map[string]slog.Level
	level        slog.Level
	grouped      bool
}

var _ slog.Handler = (*levelOverrideHandler)(nil)

func newLevelOverrideHandler(next slog.Handler, defaultLevel slog.Level, overrides map[string]slog.Level) *levelOverrideHandler {
	return &levelOverrideHandler{
		next:         next,
		defaultLevel: defaultLevel,
		overrides:    overrides,
		level:        defaultLevel,
	}
}

func (h *levelOverrideHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.next.Enabled(ctx, level)
}

func (h *levelOverrideHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelOverrideHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	if !h.grouped {
		for _, a := range attrs {
			if a.Key == CategoryKey {
				clone.level = h.levelFor(a.Value.String())
			}
		}
	}
	return &clone
}

func (h *levelOverrideHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.grouped = true
	return &clone
}

// levelFor returns the level of the longest override matching category. An
// override matches the category itself and anything below it, separated by
// '.' or '/'.
func (h *levelOverrideHandler) levelFor(category string) slog.Level {
	best := -1
	level := h.defaultLevel
	for prefix, l := range h.overrides {
		if !categoryMatches(category, prefix) {
			continue
		}
		if len(prefix) > best {
			best = len(prefix)
			level = l
		}
	}
	return level
}

func categoryMatches(category, prefix string) bool {
	if !strings.HasPrefix(category, prefix) {
		return false
	}
	if len(category) == len(prefix) {
		return true
	}
	switch category[len(prefix)] {
	case '.', '/':
		return true
	}
	return false
}
