/*
 * npu-cci - Operator command parser.
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

// Package parser implements the operator console command language: a small
// abbreviation-matched command table over a cmdLine tokenizer.
package parser

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

type cmd struct {
	name    string
	min     int
	process func(*cmdLine, *Deps) (bool, error)
}

type cmdLine struct {
	line string
	pos  int
}

var cmdList = []cmd{
	{name: "quit", min: 1, process: quit},
	{name: "exit", min: 1, process: quit},
	{name: "start", min: 3, process: start},
	{name: "stop", min: 3, process: stop},
	{name: "show", min: 2, process: show},
	{name: "help", min: 1, process: help},
}

// ProcessCommand runs one operator command line, returning true if the
// console should exit.
func ProcessCommand(commandLine string, deps *Deps) (bool, error) {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	match := matchList(name)
	switch {
	case len(match) == 0:
		return false, errors.New("command not found: " + name)
	case len(match) > 1:
		return false, errors.New("ambiguous command: " + name)
	}
	return match[0].process(&line, deps)
}

// CompleteCmd completes a command name being typed, for the console's
// line-editor tab completion.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()
	if !line.isEOL() {
		return nil
	}
	match := matchList(name)
	names := make([]string, len(match))
	for i, m := range match {
		names[i] = m.name
	}
	return names
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var match []cmd
	for _, c := range cmdList {
		if matchCommand(c, name) {
			match = append(match, c)
		}
	}
	return match
}

// matchCommand implements abbreviation matching: name must be a prefix of
// c.name at least c.min characters long.
func matchCommand(c cmd, name string) bool {
	if len(name) < c.min || len(name) > len(c.name) {
		return false
	}
	return strings.EqualFold(c.name[:len(name)], name)
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

// getWord reads the next whitespace-delimited token.
func (line *cmdLine) getWord() string {
	line.skipSpace()
	start := line.pos
	for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// getNumber reads the next token and parses it as a decimal integer.
func (line *cmdLine) getNumber() (int, error) {
	word := line.getWord()
	if word == "" {
		return 0, errors.New("expected a number")
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return 0, errors.New("not a number: " + word)
	}
	return n, nil
}
