// Package gpio provides button inputs, LED outputs and edge notification
// with hardware abstraction.
// Real implementations use the Linux GPIO character device, periph.io or
// /dev/gpiomem via go-rpio. The fake implementation allows testing without
// hardware.
package gpio

import (
	"fmt"

	"go.uber.org/zap"
)

// Input reads the raw level of one button line. Level never fails: on a read
// error the last good level is returned and the error is logged.
type Input interface {
	Level() bool
	Line() int
}

// Output drives one line, e.g. an LED.
type Output interface {
	Set(on bool) error
	Line() int
}

// Watcher reports the line number of every edge the hardware sees on the
// watched inputs. Edges are dropped if the consumer falls behind; polling
// recovers the state.
type Watcher interface {
	Start() error
	Stop()
	Edges() <-chan int
}

// Bank is a set of pulled-up button inputs with edge detection on both
// edges, plus any outputs requested from the same controller.
type Bank interface {
	Watcher
	// Input returns the input for line, or nil if it was not opened.
	Input(line int) Input
	Output(line int) (Output, error)
	Close() error
}

// Driver names.
const (
	DriverCdev   = "gpiocdev"
	DriverPeriph = "periph"
	DriverRpio   = "rpio"
)

// DefaultChip is the character device used by the gpiocdev driver.
const DefaultChip = "gpiochip0"

// edgeBuffer is the capacity of the edge channel.
const edgeBuffer = 64

// Open opens the given input lines with the named driver.
func Open(driver, chip string, lines []int, logger *zap.SugaredLogger) (Bank, error) {
	logger = logger.Named("gpio")
	switch driver {
	case DriverCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		b, err := OpenCdev(chip, lines, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverPeriph:
		b, err := OpenPeriph(lines, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverRpio:
		b, err := OpenRpio(lines, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("gpio: unknown driver %q", driver)
}

// levelCache keeps the last good level of an input so read errors degrade
// to "no change".
type levelCache struct {
	line   int
	last   bool
	failed bool
	logger *zap.SugaredLogger
}

func newLevelCache(line int, logger *zap.SugaredLogger) levelCache {
	// Released pull-up input.
	return levelCache{line: line, last: true, logger: logger}
}

func (c *levelCache) update(high bool, err error) bool {
	if err != nil {
		if !c.failed {
			c.logger.Warnw("read failed, keeping last level", "line", c.line, "level", c.last, "error", err)
			c.failed = true
		}
		return c.last
	}
	if c.failed {
		c.logger.Infow("read recovered", "line", c.line)
		c.failed = false
	}
	c.last = high
	return high
}

// offer sends line on edges without blocking.
func offer(edges chan<- int, line int, logger *zap.SugaredLogger) {
	select {
	case edges <- line:
	default:
		logger.Debugw("edge dropped, consumer busy", "line", line)
	}
}
