/*
 * npu-cci - Main process.
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
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/npu-cci/bip"
	"github.com/rcornwell/npu-cci/command/parser"
	"github.com/rcornwell/npu-cci/command/reader"
	config "github.com/rcornwell/npu-cci/config/configparser"
	"github.com/rcornwell/npu-cci/core"
	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/internal/heartbeat"
	"github.com/rcornwell/npu-cci/internal/master"
	"github.com/rcornwell/npu-cci/internal/npubuf"
	"github.com/rcornwell/npu-cci/netterm"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
	logger "github.com/rcornwell/npu-cci/util/logger"

	_ "github.com/rcornwell/npu-cci/config/debugconfig"
)

var Logger *slog.Logger

// dn/sn are the coupler's own node addresses, stamped on every block the
// core originates. CCI only ever talks to one host coupler, so these are
// fixed rather than config-file options.
const (
	dn = byte(2)
	sn = byte(0)

	maxTCBs = 256
)

var listenAddrs = map[int]string{}

func init() {
	config.RegisterModel("LISTEN", config.TypeOptions, registerListen)
}

// registerListen handles ``LISTEN <port> addr="<host:port>"`` config lines,
// binding a CLA port number to the TCP address its terminal sessions arrive
// on. addr must be quoted: the config grammar only treats letters and
// digits as bare token characters, so an unquoted dotted address would
// truncate at the first '.'.
func registerListen(_ uint16, port string, options []config.Option) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return errInvalidPort
	}
	for _, opt := range options {
		if strings.EqualFold(opt.Name, "addr") && opt.EqualOpt != "" {
			listenAddrs[n] = opt.EqualOpt
			return nil
		}
	}
	return nil
}

func main() {
	optConfig := getopt.StringLong("config", 'c', "npu-cci.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	debug := false
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("npu-cci started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		Logger.Error("configuration file not found", "file", *optConfig)
		os.Exit(1)
	}
	if err := config.LoadConfigFile(*optConfig); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	in := make(chan master.Packet, 64)

	pool := &npubuf.Pool{}
	netTable := netterm.NewTable()
	tips := tip.NewTable(maxTCBs, pool, netTable, dn, sn)
	svmTable := svm.NewTable(pool, netTable, tips, netTable, dn, sn)
	async := tip.NewAsync(tips)

	h := hip.New(pool, nil)
	demux := bip.New(pool, h, svmTable, tips, async)
	h.SetDispatcher(demux)

	if err := netterm.Start(netTable, listenAddrs, in); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	emulator := core.New(in, h, svmTable, tips, async, netTable)
	go emulator.Start()

	beat := heartbeat.New(in)
	beat.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		reader.ConsoleReader(&parser.Deps{In: in, SVM: svmTable, TIPs: tips})
		close(done)
	}()

	select {
	case <-sigChan:
		Logger.Info("got quit signal")
	case <-done:
	}

	Logger.Info("shutting down")
	beat.Shutdown()
	emulator.Stop()
	netterm.Stop()
	Logger.Info("stopped")
}

var errInvalidPort = errors.New("LISTEN requires a numeric port first")
