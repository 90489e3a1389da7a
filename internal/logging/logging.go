/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging builds the slog logger the coxswain binaries install as
// the process default.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// DebugEnabledFunc reports whether debug logging is enabled. A function is
// used because the setting is checked at log time, not when the logger is
// created, so --debug toggled over the HTTP surface takes effect on live
// loggers.
type DebugEnabledFunc func() bool

// DebugCheckHandler consults the debug setting at log time.
type DebugCheckHandler struct {
	handler      slog.Handler
	debugEnabled DebugEnabledFunc
}

// Enabled implements slog.Handler.Enabled
func (h *DebugCheckHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level == slog.LevelDebug {
		if h.debugEnabled == nil {
			return false
		}
		return h.debugEnabled()
	}
	return true // Always log other levels
}

// Handle implements slog.Handler.Handle
func (h *DebugCheckHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs
func (h *DebugCheckHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DebugCheckHandler{
		handler:      h.handler.WithAttrs(attrs),
		debugEnabled: h.debugEnabled,
	}
}

// WithGroup implements slog.Handler.WithGroup
func (h *DebugCheckHandler) WithGroup(name string) slog.Handler {
	return &DebugCheckHandler{
		handler:      h.handler.WithGroup(name),
		debugEnabled: h.debugEnabled,
	}
}

// NewLogger creates a stderr logger with dynamic debug checking.
func NewLogger(debugEnabled DebugEnabledFunc) *slog.Logger {
	return NewLoggerTo(os.Stderr, debugEnabled)
}

// NewLoggerTo creates a logger on w with dynamic debug checking.
func NewLoggerTo(w io.Writer, debugEnabled DebugEnabledFunc) *slog.Logger {
	// The base handler admits all levels; the wrapping handler does the
	// filtering. Timestamps are stripped so daemon output lines up with
	// the journal's own stamps.
	baseHandler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})

	return slog.New(&DebugCheckHandler{
		handler:      baseHandler,
		debugEnabled: debugEnabled,
	})
}
