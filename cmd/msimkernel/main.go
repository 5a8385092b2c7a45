/*
 * msimkernel - Boot entry point
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

package main

import (
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/msimkernel/internal/bootconfig"
	"github.com/rcornwell/msimkernel/internal/kernel"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/monitor"
	"github.com/rcornwell/msimkernel/internal/testimage"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Echo every log line to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			klog.PanicKernel("cannot create log file: %v", err)
		}
		file = f
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	klog.SetDefault(slog.New(klog.NewHandler(file, &slog.HandlerOptions{Level: level}, *optDebug)))

	cfg := bootconfig.Default()
	if *optConfig != "" {
		f, err := os.Open(*optConfig)
		if err != nil {
			klog.PanicKernel("cannot open boot config %s: %v", *optConfig, err)
		}
		defer f.Close()
		parsed, err := bootconfig.Parse(f)
		if err != nil {
			klog.PanicKernel("bad boot config: %v", err)
		}
		cfg = parsed
	}
	cfg.Debug = cfg.Debug || *optDebug

	k := kernel.Boot(cfg)

	for _, name := range cfg.Images {
		code, status := k.RunImage(name, k.Images.Exit(0), testimage.DefaultMemSize)
		klog.Printk("image %s exited %d (%s)", name, code, status)
	}

	monitor.Run(k)
}
