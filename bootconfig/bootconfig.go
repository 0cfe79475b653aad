/*
 * amxos - Boot configuration file parser.
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

// Package bootconfig parses the kernel's boot configuration file.
//
// Format:
//
//	# comment
//	<directive> <value>
//
// '#' starts a comment, the rest of the line is ignored. Blank lines
// are ignored. Directives are matched case-insensitively. Unknown
// directives and malformed values are reported with the offending
// line number, in the manner of configparser's line-oriented errors,
// rather than failing silently.
package bootconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config holds the values the kernel needs before it can bring up the
// physical memory manager, the heap, and the task pool. Zero-value
// fields are not valid; use Default to get a ready-to-use Config and
// override it with Load.
type Config struct {
	MemorySize    int    // bytes of simulated physical memory (PMM span)
	HeapSize      int    // bytes carved out of memory for the kernel heap
	TaskCapacity  int    // fixed task pool capacity
	StackSize     int    // bytes per task stack
	PITFrequency  int    // target PIT tick rate in Hz, 0 means use pit.DefaultFrequencyHz
	LogLevel      string // initial slog level name: debug, info, warn, error
}

// Default returns the boot constants used when no config file is
// present: a 32 MiB memory span, a 128 KiB heap, and an 8-task pool
// with 4 KiB stacks, ticking at the default PIT frequency with info
// logging.
func Default() Config {
	return Config{
		MemorySize:   32 * 1024 * 1024,
		HeapSize:     128 * 1024,
		TaskCapacity: 8,
		StackSize:    4096,
		PITFrequency: 0,
		LogLevel:     "info",
	}
}

var directives = map[string]func(cfg *Config, value string) error{
	"memory": func(cfg *Config, value string) error {
		n, err := parseSize(value)
		if err != nil {
			return err
		}
		cfg.MemorySize = n
		return nil
	},
	"heap": func(cfg *Config, value string) error {
		n, err := parseSize(value)
		if err != nil {
			return err
		}
		cfg.HeapSize = n
		return nil
	},
	"tasks": func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.TaskCapacity = n
		return nil
	},
	"stacksize": func(cfg *Config, value string) error {
		n, err := parseSize(value)
		if err != nil {
			return err
		}
		cfg.StackSize = n
		return nil
	},
	"pitfreq": func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.PITFrequency = n
		return nil
	},
	"loglevel": func(cfg *Config, value string) error {
		cfg.LogLevel = strings.ToLower(value)
		return nil
	},
}

// parseSize accepts a plain decimal byte count, or one suffixed with
// K or M for kibibytes/mebibytes (e.g. "128K", "32M"), matching the
// configparser grammar's <number><K|M> address form.
func parseSize(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty size value")
	}
	mult := 1
	switch last := value[len(value)-1]; last {
	case 'k', 'K':
		mult = 1024
		value = value[:len(value)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		value = value[:len(value)-1]
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// Load reads a config file on top of Default, overriding only the
// directives present in the file. A missing file is not an error (the
// caller gets the defaults back), but a malformed existing file is,
// reported with its line number.
func Load(path string) (Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer file.Close()

	if err := parse(file, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parse(r io.Reader, cfg *Config) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("bootconfig: line %d: expected \"<directive> <value>\", got %q", lineNumber, line)
		}

		name := strings.ToLower(fields[0])
		apply, ok := directives[name]
		if !ok {
			return fmt.Errorf("bootconfig: line %d: unknown directive %q", lineNumber, fields[0])
		}
		if err := apply(cfg, fields[1]); err != nil {
			return fmt.Errorf("bootconfig: line %d: %s: %w", lineNumber, fields[0], err)
		}
	}
	return scanner.Err()
}
