/*
 * msimkernel - Kernel error codes
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

// Package errs carries the kernel's recoverable error codes.
//
// These mirror the original kernel's errno_t values rather than Go's
// usual sentinel-error-per-package convention, since callers across the
// module (mm, sched, thread, ksync, process) branch on the specific
// code, not just success/failure.
package errs

// KernelError is a recoverable kernel error code.
type KernelError int

const (
	EOK     KernelError = iota // Operation succeeded.
	ENOIMPL                    // Not implemented.
	ENOMEM                     // Out of memory.
	EBUSY                      // Resource busy, would block.
	EEXITED                    // Thread/process already finished.
	EINVAL                     // Invalid argument.
	ENOENT                     // No such mapping/entry.
	EKILLED                    // Thread/process was killed.
)

func (e KernelError) Error() string {
	switch e {
	case EOK:
		return "success"
	case ENOIMPL:
		return "not implemented"
	case ENOMEM:
		return "out of memory"
	case EBUSY:
		return "resource busy"
	case EEXITED:
		return "already finished"
	case EINVAL:
		return "invalid argument"
	case ENOENT:
		return "no such entry"
	case EKILLED:
		return "killed"
	default:
		return "unknown error"
	}
}

// Ok reports whether e represents success. Useful at call sites that
// otherwise would write `err == errs.EOK`.
func (e KernelError) Ok() bool {
	return e == EOK
}
