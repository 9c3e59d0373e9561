package tip

import (
	"errors"
	"log/slog"
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// Debug options for per-TCB block traffic.
const (
	debugBlock = 1 << iota
	debugData
)

var debugOption = map[string]int{
	"BLOCK": debugBlock,
	"DATA":  debugData,
}

var debugMsk int

// Debug enables a named trace category.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("tip debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}

func traceBlock(cn int, bt byte) {
	if debugMsk&debugBlock != 0 {
		slog.Debug("tip: downline block", "cn", cn, "bt", bt)
	}
}

func traceData(cn int, data []byte) {
	if debugMsk&debugData != 0 {
		var b strings.Builder
		for _, by := range data {
			b.WriteByte(hexDigits[(by>>4)&0xf])
			b.WriteByte(hexDigits[by&0xf])
			b.WriteByte(' ')
		}
		slog.Debug("tip: downline data", "cn", cn, "bytes", len(data), "data", b.String())
	}
}
