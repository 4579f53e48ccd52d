package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Builder assembles a LoggerWithLevel.
//
// Zero configuration yields a text logger on stderr at Info level:
//
//	logger, cleanup, err := xlog.New().Build()
//	defer cleanup()
type Builder struct {
	output   io.Writer
	levelVar *slog.LevelVar
	format   string
	rotator  *lumberjack.Logger
	err      error
}

// New creates a Builder with defaults (stderr, info, text).
func New() *Builder {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: lv,
		format:   "text",
	}
}

// SetOutput sets the output writer.
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel sets the initial level.
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString sets the level from its string name.
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat selects the output format: "text" or "json".
// An empty format keeps the default rather than erroring.
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if normalized == "" {
		return b
	}
	if normalized != "text" && normalized != "json" {
		b.err = fmt.Errorf("xlog: unknown format %q", format)
		return b
	}
	b.format = normalized
	return b
}

// SetRotation routes output to a size-rotated file.
//
// maxSizeMB is the size that triggers rotation, maxBackups the number of old
// files kept. Compression of rotated files is always on.
func (b *Builder) SetRotation(filename string, maxSizeMB, maxBackups int) *Builder {
	if filename == "" {
		b.err = fmt.Errorf("xlog: rotation filename cannot be empty")
		return b
	}
	b.rotator = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	b.output = b.rotator
	return b
}

// Build constructs the logger. The returned cleanup flushes and closes any
// rotated output; it is safe to call even on error paths.
func (b *Builder) Build() (LoggerWithLevel, func(), error) {
	if b.err != nil {
		return nil, func() {}, b.err
	}

	handlerOpts := &slog.HandlerOptions{Level: b.levelVar}
	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(b.output, handlerOpts)
	}

	cleanup := func() {}
	if b.rotator != nil {
		rotator := b.rotator
		cleanup = func() { _ = rotator.Close() }
	}

	return &xlogger{handler: handler, levelVar: b.levelVar}, cleanup, nil
}
