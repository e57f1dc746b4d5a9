//go:build !linux

package gpio

import (
	"errors"

	"go.uber.org/zap"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevBank is not available on non-Linux platforms.
type CdevBank struct{ Bank }

// OpenCdev returns an error on non-Linux platforms.
func OpenCdev(chipName string, lines []int, logger *zap.SugaredLogger) (*CdevBank, error) {
	return nil, errUnsupported
}

// RpioBank is not available on non-Linux platforms.
type RpioBank struct{ Bank }

// OpenRpio returns an error on non-Linux platforms.
func OpenRpio(lines []int, logger *zap.SugaredLogger) (*RpioBank, error) {
	return nil, errUnsupported
}
