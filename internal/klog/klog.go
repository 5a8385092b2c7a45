/*
 * msimkernel - Wrapper for slog
 *
 * Copyright 2026, msimkernel contributors
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

// Package klog wraps log/slog the way S370's util/logger does, and adds
// the printk/dprintk/panic trio spec.md §1 leaves as an external
// collaborator.
package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a slog.Handler that timestamp-prefixes each line, writes it
// to an optional log file, and always echoes Warn/Error (or everything,
// in debug mode) to stderr.
type Handler struct {
	out   io.Writer
	h     slog.Handler
	mu    *sync.Mutex
	debug bool
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, debug: h.debug}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, debug: h.debug}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}
	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			strs = append(strs, a.Value.String())
			return true
		})
	}
	b := []byte(strings.Join(strs, " ") + "\n")

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}
	if h.debug || r.Level >= slog.LevelWarn {
		_, err = os.Stderr.Write(b)
	}
	return err
}

// NewHandler builds a Handler writing to file (which may be nil) and,
// when debug is true, echoing every line (not just warnings) to stderr.
func NewHandler(file io.Writer, opts *slog.HandlerOptions, debug bool) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		out: file,
		h: slog.NewTextHandler(file, &slog.HandlerOptions{
			Level:     opts.Level,
			AddSource: opts.AddSource,
		}),
		mu:    &sync.Mutex{},
		debug: debug,
	}
}

var defaultLogger = slog.New(NewHandler(nil, nil, false))

// SetDefault installs l as the logger printk/dprintk/panic write through.
func SetDefault(l *slog.Logger) {
	defaultLogger = l
}

// Printk logs an unconditional kernel message (kernel/include/lib/print.h's
// printk: always emitted, regardless of debug level).
func Printk(format string, args ...any) {
	defaultLogger.Info(fmt.Sprintf(format, args...))
}

// Dprintk logs a kernel trace message, only emitted when the default
// logger's level permits Debug records.
func Dprintk(format string, args ...any) {
	defaultLogger.Debug(fmt.Sprintf(format, args...))
}

// PanicKernel prints a diagnostic and halts the (simulated) machine by
// panicking the host process. Every fatal condition in §7 (ENOTE:
// "Fatal conditions panic the kernel") routes through here so the
// message always carries the same "kernel panic:" prefix.
func PanicKernel(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	defaultLogger.Error("kernel panic: " + msg)
	panic("kernel panic: " + msg)
}

// PanicIf panics with the formatted message if cond is true, matching
// the original kernel's panic_if(cond, msg) helper used throughout
// mm/as.c, proc/mutex.c, proc/scheduler.c.
func PanicIf(cond bool, format string, args ...any) {
	if cond {
		PanicKernel(format, args...)
	}
}
