/*
 * amxos - Boot and runtime diagnostics.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package logging provides the slog handler for the kernel's boot and
// runtime diagnostics. Each record carries a component tag so the
// interleaved bring-up stages read as one log:
//
//	2024/06/01 12:00:00 INFO [kernel] paging enabled bytes=16777216
//	2024/06/01 12:00:01 INFO [console] ready
//
// Records at warn and above are always duplicated to stderr so a
// fatal diagnostic is never buried in a log file, and the most recent
// error line is retained for the halt path to replay as the process's
// last words.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler formats records as "time level [component] msg key=value...".
// The mutex and the last-error slot are shared across every derived
// handler so component loggers serialize onto one sink.
type Handler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	component string
	attrs     []slog.Attr
	echoAll   bool
	lastError *string
}

// NewHandler builds a Handler writing to out at minLevel (info when
// nil). Records default to the "kernel" component; subsystems derive
// their own tag with WithGroup. echoAll duplicates every record to
// stderr, not just warnings and above.
func NewHandler(out io.Writer, minLevel slog.Leveler, echoAll bool) *Handler {
	if minLevel == nil {
		minLevel = slog.LevelInfo
	}
	return &Handler{
		mu:        &sync.Mutex{},
		out:       out,
		level:     minLevel,
		component: "kernel",
		echoAll:   echoAll,
		lastError: new(string),
	}
}

// New returns a ready-to-use logger for the given sink and level.
func New(out io.Writer, level slog.Level, echoAll bool) *slog.Logger {
	return slog.New(NewHandler(out, level, echoAll))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return nh
}

// WithGroup retags records rather than qualifying attr keys: a logger
// built with WithGroup("console") emits "[console]" lines. The kernel
// has a fixed, flat set of components, so nested groups just take the
// innermost name.
func (h *Handler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	if name != "" {
		nh.component = name
	}
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		mu:        h.mu,
		out:       h.out,
		level:     h.level,
		component: h.component,
		attrs:     h.attrs,
		echoAll:   h.echoAll,
		lastError: h.lastError,
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("2006/01/02 15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(r.Level.String())
	sb.WriteString(" [")
	sb.WriteString(h.component)
	sb.WriteString("] ")
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	sb.WriteByte('\n')
	line := sb.String()

	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Level >= slog.LevelError {
		*h.lastError = strings.TrimSuffix(line, "\n")
	}
	var err error
	if h.out != nil {
		_, err = io.WriteString(h.out, line)
	}
	if h.echoAll || r.Level >= slog.LevelWarn {
		_, _ = io.WriteString(os.Stderr, line)
	}
	return err
}

// LastError returns the most recently logged error line, or "" if
// none has been logged. After a fatal halt the main process replays
// it so the diagnostic is the last thing on screen.
func (h *Handler) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.lastError
}
