// Package logging centralizes structured log setup for the znp module: one
// zerolog.Logger per component, with each component's level independently
// toggleable.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	base    = zerolog.New(defaultWriter()).With().Timestamp().Logger()
	loggers = map[string]zerolog.Logger{}
)

func defaultWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
}

// Configure replaces the base writer/level used by every logger returned
// from For. It is called once during startup from config.Load's result.
func Configure(level zerolog.Level, json bool) {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = defaultWriter()
	if json {
		w = os.Stderr
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	loggers = map[string]zerolog.Logger{}
}

// For returns the component logger named component (e.g. "uart", "znp",
// "nvram", "security", "zigbee", "zdo"), creating it on first use.
func For(component string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[component]; ok {
		return l
	}
	l := base.With().Str("component", component).Logger()
	loggers[component] = l
	return l
}
