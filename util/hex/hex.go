/*
 * msimkernel - Hex dump formatting
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

// Package hex formats raw bytes for the monitor's "dump" command, the
// way the teacher's util/hex formats operand fields for instruction
// disassembly -- trimmed here to the handful of byte-oriented helpers
// a memory dump actually needs.
package hex

import "strings"

var hexDigits = "0123456789ABCDEF"

// FormatByte appends the two hex digits of b to str.
func FormatByte(str *strings.Builder, b byte) {
	str.WriteByte(hexDigits[(b>>4)&0xf])
	str.WriteByte(hexDigits[b&0xf])
}

// FormatBytes appends the hex digits of every byte in data to str,
// separating bytes with a space when space is true.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for _, b := range data {
		FormatByte(str, b)
		if space {
			str.WriteByte(' ')
		}
	}
}

// Dump renders data as classic offset-prefixed hex dump lines, 16
// bytes per line, with a printable-ASCII gutter.
func Dump(data []byte) string {
	var out strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		FormatByte(&out, byte(off>>8))
		FormatByte(&out, byte(off))
		out.WriteString(": ")
		FormatBytes(&out, true, line)
		for pad := len(line); pad < 16; pad++ {
			out.WriteString("   ")
		}
		out.WriteString(" |")
		for _, b := range line {
			if b >= 0x20 && b < 0x7f {
				out.WriteByte(b)
			} else {
				out.WriteByte('.')
			}
		}
		out.WriteString("|\n")
	}
	return out.String()
}
