/*
 * npu-cci - Operator command implementations.
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

package parser

import (
	"errors"
	"fmt"

	"github.com/rcornwell/npu-cci/internal/master"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

// Deps is the set of collaborators operator commands act on. main.go builds
// one of these after wiring the core together.
type Deps struct {
	In   chan master.Packet
	SVM  *svm.Table
	TIPs *tip.Table
}

func quit(_ *cmdLine, _ *Deps) (bool, error) {
	return true, nil
}

func start(_ *cmdLine, d *Deps) (bool, error) {
	d.In <- master.Packet{Msg: master.Start}
	return false, nil
}

func stop(_ *cmdLine, d *Deps) (bool, error) {
	d.In <- master.Packet{Msg: master.Stop}
	return false, nil
}

func help(_ *cmdLine, _ *Deps) (bool, error) {
	fmt.Println("commands: start, stop, show line, show tcb, quit")
	return false, nil
}

// show dispatches "show line" and "show tcb", the two tables an operator
// cares about at runtime.
func show(line *cmdLine, d *Deps) (bool, error) {
	switch line.getWord() {
	case "line":
		for _, lcb := range d.SVM.Lines() {
			fmt.Printf("port %3d  config=%v  line=%v  terminals=%d\n",
				lcb.Port, lcb.ConfigState, lcb.LineState, lcb.NumTerminals)
		}
	case "tcb":
		for _, tcb := range d.TIPs.Active() {
			fmt.Printf("cn %3d  port=%d  state=%v  name=%s\n", tcb.CN, tcb.Port, tcb.State, tcb.Name)
		}
	default:
		return false, errors.New("show requires line or tcb")
	}
	return false, nil
}
