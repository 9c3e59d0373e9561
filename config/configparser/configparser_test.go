/*
 * npu-cci - Configuration file parser test set.
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

package configparser

import (
	"fmt"
	"testing"
)

var testPort uint16
var testValue string
var testOptions []Option
var testCalled bool

func resetTest() {
	testPort = 0xffff
	testValue = "error"
	testOptions = nil
	testCalled = false
}

func cleanUpConfig() {
	models = map[string]modelDef{}
	resetTest()
	fmt.Println("Cleanup")
}

// modListen stands in for the LISTEN directive's handler.
func modListen(port uint16, value string, options []Option) error {
	testPort = port
	testValue = value
	testOptions = options
	testCalled = true
	return nil
}

func TestRegisterModel(t *testing.T) {
	cleanUpConfig()

	RegisterModel("LISTEN", TypeOptions, modListen)
	fTest := FirstOption{devNum: 4, isAddr: true, value: "4"}
	err := createOptions("NOSUCHDIRECTIVE", &fTest, nil)
	if err == nil {
		t.Errorf("createOptions succeeded for an unregistered directive")
	}
	err = createOptions("LISTEN", &fTest, nil)
	if err != nil {
		t.Errorf("createOptions failed for a registered directive: %v", err)
	}
	if !testCalled {
		t.Errorf("LISTEN handler was not invoked")
	}
	if testPort != 4 {
		t.Errorf("port not passed through: %d", testPort)
	}
	if testValue != "4" {
		t.Errorf("value not passed through: %s", testValue)
	}
}

// TestParseLineListen exercises "LISTEN <port> addr=<host:port>", the
// directive main.go registers to bind a CLA port to a TCP listen address.
func TestParseLineListen(t *testing.T) {
	cleanUpConfig()
	RegisterModel("LISTEN", TypeOptions, modListen)

	// Dotted addresses must be quoted: '.' and ':' aren't token characters
	// outside a quoted string, so an unquoted addr=0.0.0.0:2323 would
	// truncate at the first '.'.
	line := optionLine{line: `LISTEN 4 addr="0.0.0.0:2323"`, pos: 0}
	err := line.parseLine()
	if err != nil {
		t.Errorf("ParseLine failed: %v", err)
	}
	if !testCalled {
		t.Fatalf("LISTEN handler was not invoked")
	}
	if testPort != 4 {
		t.Errorf("port token not parsed as hex address, got %04x", testPort)
	}
	if testValue != "4" {
		t.Errorf("first token not captured: %s", testValue)
	}
	switch len(testOptions) {
	case 1:
		if testOptions[0].Name != "addr" {
			t.Errorf("option name not captured: %s", testOptions[0].Name)
		}
		if testOptions[0].EqualOpt != "0.0.0.0:2323" {
			t.Errorf("= value not captured: %q", testOptions[0].EqualOpt)
		}
	default:
		t.Fatalf("expected 1 option, got %d", len(testOptions))
	}
}

// TestParseLineDebug exercises "DEBUG <subsystem> <option>,<option>", the
// shape debugconfig.go registers for hip/svm/tip/netterm trace categories.
func TestParseLineDebug(t *testing.T) {
	cleanUpConfig()
	RegisterModel("DEBUG", TypeOptions, modListen)

	line := optionLine{line: "DEBUG tip block,data  # enable block+data traces", pos: 0}
	err := line.parseLine()
	if err != nil {
		t.Errorf("ParseLine failed: %v", err)
	}
	if testValue != "tip" {
		t.Errorf("subsystem not captured: %s", testValue)
	}
	switch len(testOptions) {
	case 1:
		if testOptions[0].Name != "block" {
			t.Errorf("option name not captured: %s", testOptions[0].Name)
		}
		if len(testOptions[0].Value) != 1 || *testOptions[0].Value[0] != "data" {
			t.Errorf("comma value not captured: %+v", testOptions[0].Value)
		}
	default:
		t.Fatalf("expected 1 option, got %d", len(testOptions))
	}
}

// TestParseLineUnregistered confirms an unknown directive keyword is
// rejected rather than silently ignored.
func TestParseLineUnregistered(t *testing.T) {
	cleanUpConfig()

	line := optionLine{line: "BOGUS 4 addr=nowhere", pos: 0}
	err := line.parseLine()
	if err == nil {
		t.Errorf("ParseLine accepted an unregistered directive")
	}
}

// TestParseLineNoFirstToken confirms a directive missing its required first
// token is rejected.
func TestParseLineNoFirstToken(t *testing.T) {
	cleanUpConfig()
	RegisterModel("LISTEN", TypeOptions, modListen)

	line := optionLine{line: "LISTEN", pos: 0}
	err := line.parseLine()
	if err == nil {
		t.Errorf("ParseLine accepted a directive with no first token")
	}
}

// TestParseLineComment confirms a comment-only line and a blank line both
// parse to no-ops.
func TestParseLineComment(t *testing.T) {
	cleanUpConfig()
	RegisterModel("LISTEN", TypeOptions, modListen)

	line := optionLine{line: "# just a comment", pos: 0}
	if err := line.parseLine(); err != nil {
		t.Errorf("ParseLine failed on comment-only line: %v", err)
	}
	if testCalled {
		t.Errorf("comment-only line invoked a handler")
	}

	line = optionLine{line: "   ", pos: 0}
	if err := line.parseLine(); err != nil {
		t.Errorf("ParseLine failed on blank line: %v", err)
	}
}

// TestParseLineQuotedValue confirms a quoted = value can contain spaces and
// commas without being split into multiple tokens.
func TestParseLineQuotedValue(t *testing.T) {
	cleanUpConfig()
	RegisterModel("LISTEN", TypeOptions, modListen)

	line := optionLine{line: `LISTEN 4 addr="host one,two"`, pos: 0}
	err := line.parseLine()
	if err != nil {
		t.Errorf("ParseLine failed: %v", err)
	}
	switch len(testOptions) {
	case 1:
		if testOptions[0].EqualOpt != "host one,two" {
			t.Errorf("quoted = value not captured whole: %q", testOptions[0].EqualOpt)
		}
	default:
		t.Fatalf("expected 1 option, got %d", len(testOptions))
	}
}

// TestParseLineMultipleOptions confirms several space-separated options are
// all captured in order.
func TestParseLineMultipleOptions(t *testing.T) {
	cleanUpConfig()
	RegisterModel("DEBUG", TypeOptions, modListen)

	line := optionLine{line: "DEBUG svm line term", pos: 0}
	err := line.parseLine()
	if err != nil {
		t.Errorf("ParseLine failed: %v", err)
	}
	switch len(testOptions) {
	case 2:
		if testOptions[0].Name != "line" || testOptions[1].Name != "term" {
			t.Errorf("options not captured in order: %+v", testOptions)
		}
	default:
		t.Fatalf("expected 2 options, got %d", len(testOptions))
	}
}

// TestLoadConfigFileUnknownFile confirms a missing config file surfaces as
// an error rather than being silently skipped.
func TestLoadConfigFileUnknownFile(t *testing.T) {
	cleanUpConfig()
	if err := LoadConfigFile("/nonexistent/npu-cci.cfg"); err == nil {
		t.Errorf("LoadConfigFile succeeded on a nonexistent file")
	}
}
