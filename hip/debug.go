package hip

import (
	"errors"
	"log/slog"
)

// Debug options, same bitmask-per-keyword idiom as the rest of the package
// set uses (see tip.Debug, svm.Debug, netterm.Debug).
const (
	debugOrder = 1 << iota
	debugImage
)

var debugOption = map[string]int{
	"ORDER": debugOrder,
	"IMAGE": debugImage,
}

var debugMsk int

// Debug enables a named trace category. Returns an error for an unknown
// keyword so a bad config-file line is reported rather than silently
// ignored.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("hip debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}

func traceOrder(code OrderCode) {
	if debugMsk&debugOrder != 0 {
		slog.Debug("hip: order", "code", code)
	}
}

func traceImage(img Image) {
	if debugMsk&debugImage != 0 {
		slog.Debug("hip: boot image recognized", "image", img)
	}
}
