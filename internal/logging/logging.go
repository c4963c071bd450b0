// Package logging builds the logr.Logger used by the commands.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
)

// Format selects the slog handler.
type Format string

const (
	DefaultFormat Format = "default"
	TextFormat    Format = "text"
	JSONFormat    Format = "json"
)

// Config is populated from command line flags.
type Config struct {
	Verbosity int
	Format    string
}

// LoadConfigFromFlags adds the logging flags to flags. Once flags are
// parsed they populate cfg.
func LoadConfigFromFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.IntVarP(&cfg.Verbosity, "v", "v", 0, "Logging verbosity; 1 traces every workflow step")
	flags.StringVar(&cfg.Format, "log-format", string(DefaultFormat), "Logging format: default, text or json")
}

// New returns a logger writing to w. logr's V(n) maps to slog level -n, so
// Verbosity n enables everything up to V(n).
func New(cfg Config, w io.Writer) (logr.Logger, error) {
	return newLogger(cfg, w, nil)
}

func newLogger(cfg Config, w io.Writer, replace func([]string, slog.Attr) slog.Attr) (logr.Logger, error) {
	level := slog.Level(-cfg.Verbosity)
	if cfg.Verbosity < 0 {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replace}

	var h slog.Handler
	switch Format(cfg.Format) {
	case DefaultFormat, "":
		h = &levelHandler{level: level, next: slog.Default().Handler()}
	case TextFormat:
		h = slog.NewTextHandler(w, opts)
	case JSONFormat:
		h = slog.NewJSONHandler(w, opts)
	default:
		return logr.Logger{}, fmt.Errorf("unrecognised logging format: %s", cfg.Format)
	}
	return logr.FromSlogHandler(h), nil
}

// Discard returns a logger that drops everything.
func Discard() logr.Logger { return logr.Discard() }

// levelHandler raises the minimum level of a handler it does not own.
type levelHandler struct {
	level slog.Leveler
	next  slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, next: h.next.WithGroup(name)}
}
