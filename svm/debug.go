package svm

import (
	"errors"
	"log/slog"
)

// Debug options for line/terminal configuration traffic.
const (
	debugLine = 1 << iota
	debugTerm
)

var debugOption = map[string]int{
	"LINE": debugLine,
	"TERM": debugTerm,
}

var debugMsk int

// Debug enables a named trace category.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("svm debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}

func traceLine(port int, from, to ConfigState) {
	if debugMsk&debugLine != 0 {
		slog.Debug("svm: line state", "port", port, "from", from, "to", to)
	}
}

func traceTerm(cn int, ok bool) {
	if debugMsk&debugTerm != 0 {
		slog.Debug("svm: terminal configured", "cn", cn, "ok", ok)
	}
}
