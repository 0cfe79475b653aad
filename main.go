/*
 * amxos - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/lirikmaxhuni/amxos/bootconfig"
	"github.com/lirikmaxhuni/amxos/console"
	"github.com/lirikmaxhuni/amxos/kernel"
	"github.com/lirikmaxhuni/amxos/logging"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "amxos.cfg", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optConsole := getopt.BoolLong("console", 'i', "Run the interactive diagnostic console")
	optDebug := getopt.BoolLong("debug", 'd', "Duplicate every log record to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			Logger = slog.New(logging.NewHandler(nil, nil, true))
			Logger.Error("could not create log file", "path", *optLogFile, "err", err)
			os.Exit(1)
		}
	}
	handler := logging.NewHandler(file, slog.LevelInfo, *optDebug)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	Logger.Info("amxos started")

	cfg, err := bootconfig.Load(*optConfig)
	if err != nil {
		Logger.Error("boot configuration error", "err", err)
		os.Exit(1)
	}
	if level, levelErr := parseLevel(cfg.LogLevel); levelErr == nil {
		handler = logging.NewHandler(file, level, *optDebug)
		Logger = slog.New(handler)
		slog.SetDefault(Logger)
	}

	k := kernel.New(cfg, Logger)
	k.Boot()
	k.Timer.Start()
	defer k.Shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if *optConsole {
			c := console.New(k.Bus, k.FB, k.Frames, k.Heap, k.Paging, k.Tasks, os.Stdout)
			if runErr := c.Run(); runErr != nil {
				Logger.Error("console exited", "err", runErr)
			}
			return
		}
		if startErr := k.StartTasks(); startErr != nil {
			Logger.Error("task pool failed to start", "err", startErr)
		}
	}()

	select {
	case <-sigChan:
		Logger.Info("shutting down on signal")
	case <-done:
	}

	if k.Bus.Halted() {
		if line := handler.LastError(); line != "" {
			fmt.Fprintln(os.Stderr, line)
		}
	}
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	return level, err
}
