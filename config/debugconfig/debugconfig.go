/*
 * npu-cci - Debug options configuration.
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

// Package debugconfig wires the "DEBUG" config-file directive to the
// per-package trace masks hip, svm, tip and netterm each expose.
package debugconfig

import (
	"errors"
	"strings"

	config "github.com/rcornwell/npu-cci/config/configparser"
	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/netterm"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

func init() {
	config.RegisterModel("DEBUG", config.TypeOptions, setDebug)
}

// setDebug dispatches "DEBUG <subsystem> <option>,<option>..." lines to the
// named package's Debug function.
func setDebug(_ uint16, subsystem string, options []config.Option) error {
	var debug func(string) error
	switch strings.ToUpper(subsystem) {
	case "HIP":
		debug = hip.Debug
	case "SVM":
		debug = svm.Debug
	case "TIP":
		debug = tip.Debug
	case "NETTERM":
		debug = netterm.Debug
	default:
		return errors.New("debug subsystem invalid: " + subsystem)
	}

	for _, opt := range options {
		if err := debug(strings.ToUpper(opt.Name)); err != nil {
			return err
		}
		for _, value := range opt.Value {
			if err := debug(strings.ToUpper(*value)); err != nil {
				return err
			}
		}
	}
	return nil
}
