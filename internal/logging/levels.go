// Package logging implements the log capture pipeline: a slog.Handler that
// taps every record, per-component level control, an in-memory ring of recent
// entries, and an asynchronous batch writer feeding the rotating session log
// file plus the dashboard log stream.
package logging

import (
	"log/slog"
	"sort"
	"sync"
)

// Levels holds one mutable level per logging component, plus a default for
// components without an explicit override. The debug service adjusts these at
// runtime; handlers consult them on every record.
type Levels struct {
	mu   sync.RWMutex
	def  *slog.LevelVar
	vars map[string]*slog.LevelVar
}

// NewLevels returns a Levels registry defaulting to Info.
func NewLevels() *Levels {
	def := new(slog.LevelVar)
	def.Set(slog.LevelInfo)
	return &Levels{def: def, vars: make(map[string]*slog.LevelVar)}
}

// LevelFor returns the effective level for a component.
func (l *Levels) LevelFor(component string) slog.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v, ok := l.vars[component]; ok {
		return v.Level()
	}
	return l.def.Level()
}

// SetLevel overrides the level for one component. An empty component name or
// "all" adjusts the default instead.
func (l *Levels) SetLevel(component string, level slog.Level) {
	if component == "" || component == "all" {
		l.def.Set(level)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.vars[component]
	if !ok {
		v = new(slog.LevelVar)
		l.vars[component] = v
	}
	v.Set(level)
}

// Components returns the names with explicit overrides, sorted.
func (l *Levels) Components() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.vars))
	for name := range l.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseLevel maps a level name to a slog.Level. Unknown names fall back to
// Info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "warning", "WARN", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
