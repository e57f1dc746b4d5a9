//go:build linux

package gpio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"
)

// rpioScan is how often the edge detect status register is checked.
const rpioScan = time.Millisecond

// RpioBank reads buttons through /dev/gpiomem. The BCM283x latches edges in
// its event detect register; a goroutine scans it since there is no
// interrupt delivery to user space.
type RpioBank struct {
	pins   map[int]rpio.Pin
	lines  []int
	edges  chan int
	logger *zap.SugaredLogger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// OpenRpio maps the GPIO registers and configures each line as a pulled-up
// input detecting both edges.
func OpenRpio(lines []int, logger *zap.SugaredLogger) (*RpioBank, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpiomem: %w", err)
	}
	b := &RpioBank{
		pins:   make(map[int]rpio.Pin),
		edges:  make(chan int, edgeBuffer),
		logger: logger,
	}
	for _, n := range lines {
		p := rpio.Pin(n)
		p.Input()
		p.PullUp()
		p.Detect(rpio.AnyEdge)
		b.pins[n] = p
		b.lines = append(b.lines, n)
	}
	sort.Ints(b.lines)
	return b, nil
}

// Start launches the edge scanner.
func (b *RpioBank) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return nil
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.scan(b.stop, b.done)
	return nil
}

func (b *RpioBank) scan(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(rpioScan)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, n := range b.lines {
				if b.pins[n].EdgeDetected() {
					offer(b.edges, n, b.logger)
				}
			}
		}
	}
}

// Stop halts the scanner and waits for it to exit.
func (b *RpioBank) Stop() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (b *RpioBank) Edges() <-chan int {
	return b.edges
}

func (b *RpioBank) Input(line int) Input {
	p, ok := b.pins[line]
	if !ok {
		return nil
	}
	return rpioInput{pin: p, line: line}
}

func (b *RpioBank) Output(line int) (Output, error) {
	p := rpio.Pin(line)
	p.Output()
	p.Low()
	return rpioOutput{pin: p, line: line}, nil
}

// Close disables edge detection and unmaps the registers.
func (b *RpioBank) Close() error {
	b.Stop()
	for _, p := range b.pins {
		p.Detect(rpio.NoEdge)
	}
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close gpiomem: %w", err)
	}
	return nil
}

// Register reads cannot fail once mapped.
type rpioInput struct {
	pin  rpio.Pin
	line int
}

func (in rpioInput) Level() bool { return in.pin.Read() == rpio.High }
func (in rpioInput) Line() int { return in.line }

type rpioOutput struct {
	pin  rpio.Pin
	line int
}

func (out rpioOutput) Set(on bool) error {
	if on {
		out.pin.High()
	} else {
		out.pin.Low()
	}
	return nil
}

func (out rpioOutput) Line() int { return out.line }
