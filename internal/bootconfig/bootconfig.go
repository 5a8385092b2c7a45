/*
 * msimkernel - Boot configuration parser
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

// Package bootconfig parses the kernel's boot configuration file, a
// small line-oriented format in the same spirit as the teacher's
// config/configparser: '#' comments, one directive per line, no
// nesting. There is no third-party config library in the example
// pack's dependency surface (the teacher hand-rolls its own, and
// nothing else in the pack pulls in one either), so this follows suit
// rather than reaching outside the pack for one.
package bootconfig

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Config is the parsed boot configuration: how much simulated RAM to
// report to the frame allocator, how many timer ticks per COMPARE
// period, and the names of the processes to run at boot. The boot
// driver runs every listed name as the exit-0 test image; a name does
// not select a different image.
type Config struct {
	RAMBytes   uint64
	Cycles     uint32
	Debug      bool
	Images     []string
}

// Default returns the configuration used when no boot file is given.
func Default() Config {
	return Config{RAMBytes: 16 * 1024 * 1024, Cycles: 100000}
}

// Parse reads directives from r. Recognized keys: "ram <bytes>",
// "cycles <n>", "debug", "image <name>" (repeatable).
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "ram":
			if len(fields) != 2 {
				return cfg, fmt.Errorf("bootconfig:%d: ram requires one argument", lineNo)
			}
			n, err := parseSize(fields[1])
			if err != nil {
				return cfg, fmt.Errorf("bootconfig:%d: %w", lineNo, err)
			}
			cfg.RAMBytes = n

		case "cycles":
			if len(fields) != 2 {
				return cfg, fmt.Errorf("bootconfig:%d: cycles requires one argument", lineNo)
			}
			n, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return cfg, fmt.Errorf("bootconfig:%d: %w", lineNo, err)
			}
			cfg.Cycles = uint32(n)

		case "debug":
			cfg.Debug = true

		case "image":
			if len(fields) != 2 {
				return cfg, fmt.Errorf("bootconfig:%d: image requires one argument", lineNo)
			}
			cfg.Images = append(cfg.Images, fields[1])

		default:
			return cfg, fmt.Errorf("bootconfig:%d: unknown directive %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseSize accepts a plain byte count or a K/M suffixed shorthand
// (e.g. "16M"), matching the teacher's address-suffix convention in
// config/configparser.
func parseSize(s string) (uint64, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}
