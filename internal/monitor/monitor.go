/*
 * msimkernel - Interactive kernel monitor
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

// Package monitor is a liner-backed command console for a booted
// kernel, in the style of the teacher's command/parser plus
// command/reader: a small table of abbreviation-matched commands
// driving a single shared object (there, *core.Core; here,
// *kernel.Kernel).
package monitor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/rcornwell/msimkernel/internal/kernel"
	"github.com/rcornwell/msimkernel/internal/testimage"
	"github.com/rcornwell/msimkernel/util/hex"
)

const memSize = testimage.DefaultMemSize

type cmd struct {
	name    string
	min     int
	process func(args []string, k *kernel.Kernel) (bool, error)
}

var cmdList = []cmd{
	{name: "run", min: 1, process: runImage},
	{name: "threads", min: 1, process: showThreads},
	{name: "dump", min: 1, process: dumpPrinter},
	{name: "quit", min: 1, process: quit},
	{name: "exit", min: 1, process: quit},
}

// ProcessCommand parses and executes one command line against k.
func ProcessCommand(line string, k *kernel.Kernel) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := fields[0], fields[1:]

	var match *cmd
	for i := range cmdList {
		c := &cmdList[i]
		if len(name) < c.min {
			continue
		}
		if strings.HasPrefix(c.name, name) {
			if match != nil {
				return false, fmt.Errorf("ambiguous command: %s", name)
			}
			match = c
		}
	}
	if match == nil {
		return false, fmt.Errorf("unknown command: %s", name)
	}
	return match.process(args, k)
}

func runImage(args []string, k *kernel.Kernel) (bool, error) {
	if len(args) < 1 {
		return false, errors.New("run: requires an image name")
	}
	builder := testimage.NewBuilder(k.Machine)

	switch args[0] {
	case "hello":
		code, status := k.RunImage("hello", builder.HelloWorld("hello, kernel\n"), memSize)
		fmt.Printf("hello exited %d (%s)\n", code, status)
	case "exit":
		n := 0
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return false, err
			}
			n = v
		}
		code, status := k.RunImage("exit", builder.Exit(n), memSize)
		fmt.Printf("exit exited %d (%s)\n", code, status)
	default:
		return false, fmt.Errorf("run: unknown image %q", args[0])
	}
	return false, nil
}

func showThreads(_ []string, k *kernel.Kernel) (bool, error) {
	fmt.Printf("scheduled ready len=%d\n", k.Sched.ReadyLen())
	return false, nil
}

func dumpPrinter(args []string, k *kernel.Kernel) (bool, error) {
	out := k.Machine.PrinterOutput()
	if len(args) > 0 && args[0] == "hex" {
		fmt.Print(hex.Dump(out))
		return false, nil
	}
	fmt.Print(string(out))
	return false, nil
}

func quit(_ []string, _ *kernel.Kernel) (bool, error) {
	return true, nil
}

// Run drives an interactive liner REPL against k until "quit"/"exit"
// or EOF.
func Run(k *kernel.Kernel) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("msimkernel> ")
		if err != nil {
			return
		}
		line.AppendHistory(input)
		quit, err := ProcessCommand(input, k)
		if err != nil {
			fmt.Println("error: " + err.Error())
			continue
		}
		if quit {
			return
		}
	}
}
