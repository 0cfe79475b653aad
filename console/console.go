/*
 * amxos - Diagnostic console shell.
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

// Package console runs the diagnostic shell's command surface over a
// liner-backed line editor on the host terminal, in place of the
// VGA-rendered shell. Commands are matched by minimum unique prefix
// against a fixed dispatch table; the nine commands (help, clear,
// echo, about, ls, memtest, pmmtest, pagingtest, faulttest) run
// against the live kernel state.
package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/peterh/liner"

	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/framebuffer"
	"github.com/lirikmaxhuni/amxos/heap"
	"github.com/lirikmaxhuni/amxos/paging"
	"github.com/lirikmaxhuni/amxos/pmm"
	"github.com/lirikmaxhuni/amxos/task"
)

// Console wires the shell's command surface to the live kernel state:
// the physical frame allocator, the kernel heap, the paging directory,
// the task pool, and the simulated bus and framebuffer that faulttest
// drives the page-fault diagnostic through.
type Console struct {
	bus     *cpuio.Bus
	fb      *framebuffer.Buffer
	frames  *pmm.Manager
	arena   *heap.Arena
	paging  *paging.Directory
	pool    *task.Pool
	out     io.Writer
}

// New returns a Console ready to run against the given kernel
// collaborators. Any of frames, arena, dir, or pool may be nil; the
// commands that need them report that the subsystem isn't available
// rather than panicking.
func New(bus *cpuio.Bus, fb *framebuffer.Buffer, frames *pmm.Manager, arena *heap.Arena, dir *paging.Directory, pool *task.Pool, out io.Writer) *Console {
	return &Console{bus: bus, fb: fb, frames: frames, arena: arena, paging: dir, pool: pool, out: out}
}

type cmd struct {
	name    string
	min     int
	process func(*Console, string) (bool, error)
}

var cmdList = []cmd{
	{name: "help", min: 1, process: (*Console).help},
	{name: "clear", min: 1, process: (*Console).clearScreen},
	{name: "echo", min: 1, process: (*Console).echo},
	{name: "about", min: 1, process: (*Console).about},
	{name: "ls", min: 1, process: (*Console).ls},
	{name: "memtest", min: 2, process: (*Console).memtest},
	{name: "pmmtest", min: 2, process: (*Console).pmmtest},
	{name: "pagingtest", min: 2, process: (*Console).pagingtest},
	{name: "faulttest", min: 2, process: (*Console).faulttest},
}

// matchCommand reports whether name matches c.name to at least c.min
// leading characters.
func matchCommand(c cmd, name string) bool {
	if len(name) > len(c.name) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] != c.name[i] {
			return false
		}
	}
	return len(name) >= c.min
}

func matchList(name string) []cmd {
	var matches []cmd
	for _, c := range cmdList {
		if matchCommand(c, name) {
			matches = append(matches, c)
		}
	}
	return matches
}

// ProcessCommand runs one shell line against the kernel. It returns
// quit=true only for faulttest, whose diagnostic halt ends the session
// the same way a real page fault would.
func (c *Console) ProcessCommand(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name := strings.ToLower(fields[0])
	args := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	matches := matchList(name)
	if len(matches) == 0 {
		return false, fmt.Errorf("unknown command: %s", fields[0])
	}
	if len(matches) > 1 {
		return false, fmt.Errorf("ambiguous command: %s", fields[0])
	}
	return matches[0].process(c, args)
}

// CompleteCmd drives liner's tab completion over the command table.
func (c *Console) CompleteCmd(line string) []string {
	fields := strings.Fields(line)
	if len(fields) > 1 || strings.HasSuffix(line, " ") {
		return nil
	}
	name := ""
	if len(fields) == 1 {
		name = strings.ToLower(fields[0])
	}
	matches := matchList(name)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names
}

func (c *Console) help(string) (bool, error) {
	fmt.Fprintln(c.out, "Available commands: help, clear, echo, about, ls, memtest, pmmtest, pagingtest, faulttest")
	return false, nil
}

func (c *Console) clearScreen(string) (bool, error) {
	fmt.Fprint(c.out, "\033[2J\033[H")
	return false, nil
}

func (c *Console) echo(args string) (bool, error) {
	fmt.Fprintln(c.out, args)
	return false, nil
}

func (c *Console) about(string) (bool, error) {
	fmt.Fprintln(c.out, "amxos: a simple x86 hobby OS shell")
	return false, nil
}

func (c *Console) ls(string) (bool, error) {
	fmt.Fprintln(c.out, "help clear echo about ls memtest pmmtest pagingtest faulttest")
	return false, nil
}

// memtest performs four heap allocations with a free in the middle and
// reports the four payload addresses; with a fresh arena the fourth
// allocation reuses the freed hole.
func (c *Console) memtest(string) (bool, error) {
	if c.arena == nil {
		return false, errors.New("heap not available")
	}
	a := c.arena.Alloc(32)
	b := c.arena.Alloc(64)
	d := c.arena.Alloc(16)
	c.arena.Free(b)
	e := c.arena.Alloc(48)
	fmt.Fprintf(c.out, "kmalloc: %08X %08X %08X %08X\n", a, b, d, e)
	return false, nil
}

// pmmtest performs four page allocations with a free in the middle and
// reports the four frame addresses.
func (c *Console) pmmtest(string) (bool, error) {
	if c.frames == nil {
		return false, errors.New("physical memory manager not available")
	}
	p1 := c.frames.Alloc()
	p2 := c.frames.Alloc()
	p3 := c.frames.Alloc()
	c.frames.Free(p2)
	p4 := c.frames.Alloc()
	fmt.Fprintf(c.out, "pages: %08X %08X %08X %08X\n", p1, p2, p3, p4)
	return false, nil
}

func (c *Console) pagingtest(string) (bool, error) {
	if c.paging == nil || !c.paging.Initialized() {
		fmt.Fprintln(c.out, "Paging is not enabled")
		return false, nil
	}
	fmt.Fprintln(c.out, "Paging is enabled!")
	return false, nil
}

// faulttest dereferences an unmapped virtual address; the #PF handler
// must catch it, print its diagnostic, and halt the machine. The
// console session ends there, matching the kernel's own fatal-halt
// error taxonomy.
func (c *Console) faulttest(string) (bool, error) {
	if c.bus == nil || c.fb == nil {
		return false, errors.New("fault diagnostic not available")
	}
	const badAddr = 0xDEADBEEF
	const writeFault = 0x00000002
	c.bus.SetCR2(badAddr)
	paging.PageFault(c.bus, c.fb, writeFault)
	fmt.Fprintf(c.out, "Page fault at %08X err: %08X - machine halted\n", badAddr, writeFault)
	return true, nil
}

// Run drives the command table over a liner-backed REPL on stdin and
// c.out until the user aborts (Ctrl-C/Ctrl-D) or a command signals
// quit.
func (c *Console) Run() error {
	log := slog.Default().WithGroup("console")
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(c.CompleteCmd)

	for {
		input, err := line.Prompt("amxos> ")
		if err == nil {
			line.AppendHistory(input)
			quit, procErr := c.ProcessCommand(input)
			if procErr != nil {
				fmt.Fprintln(c.out, "Error: "+procErr.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		log.Error("error reading line", "err", err)
		return err
	}
}
