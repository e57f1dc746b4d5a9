package gpio

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphWait bounds WaitForEdge so the watch goroutines notice Stop.
const periphWait = 100 * time.Millisecond

// PeriphBank reads buttons through periph.io, one goroutine per pin blocked
// in WaitForEdge.
type PeriphBank struct {
	pins   map[int]gpio.PinIO
	edges  chan int
	logger *zap.SugaredLogger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	outputs []gpio.PinIO
}

// OpenPeriph initializes the host drivers and configures each line, named
// GPIO<n>, as a pulled-up input detecting both edges.
func OpenPeriph(lines []int, logger *zap.SugaredLogger) (*PeriphBank, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	b := &PeriphBank{
		pins:   make(map[int]gpio.PinIO),
		edges:  make(chan int, edgeBuffer),
		logger: logger,
	}
	if err := b.setup(lines, periphPin); err != nil {
		return nil, err
	}
	return b, nil
}

// setup configures each line as a pulled-up input detecting both edges. On
// failure the pins configured so far are halted.
func (b *PeriphBank) setup(lines []int, lookup func(int) (gpio.PinIO, error)) error {
	for _, n := range lines {
		p, err := lookup(n)
		if err != nil {
			b.haltInputs()
			return err
		}
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			b.haltInputs()
			return fmt.Errorf("setup button line %d: %w", n, err)
		}
		b.pins[n] = p
	}
	return nil
}

func periphPin(n int) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", n)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no pin named %s", name)
	}
	return p, nil
}

// Start launches one edge watcher per pin.
func (b *PeriphBank) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return nil
	}
	b.stop = make(chan struct{})
	for n, p := range b.pins {
		b.wg.Add(1)
		go b.watch(n, p, b.stop)
	}
	return nil
}

func (b *PeriphBank) watch(n int, p gpio.PinIO, stop <-chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if p.WaitForEdge(periphWait) {
			offer(b.edges, n, b.logger)
		}
	}
}

// Stop halts the watchers and waits for them to exit.
func (b *PeriphBank) Stop() {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	b.wg.Wait()
}

func (b *PeriphBank) Edges() <-chan int {
	return b.edges
}

func (b *PeriphBank) Input(line int) Input {
	p, ok := b.pins[line]
	if !ok {
		return nil
	}
	return periphInput{pin: p, line: line}
}

func (b *PeriphBank) Output(line int) (Output, error) {
	p, err := periphPin(line)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("setup output line %d: %w", line, err)
	}
	b.mu.Lock()
	b.outputs = append(b.outputs, p)
	b.mu.Unlock()
	return periphOutput{pin: p, line: line}, nil
}

// Close stops the watchers, drives outputs low and halts all pins.
func (b *PeriphBank) Close() error {
	b.Stop()
	var errs []error
	b.mu.Lock()
	for _, p := range b.outputs {
		if err := p.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", p, err))
		}
	}
	b.mu.Unlock()
	errs = append(errs, b.haltInputs()...)
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *PeriphBank) haltInputs() []error {
	var errs []error
	for n, p := range b.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p, err))
		}
		delete(b.pins, n)
	}
	return errs
}

type periphInput struct {
	pin  gpio.PinIO
	line int
}

func (in periphInput) Level() bool { return in.pin.Read() == gpio.High }
func (in periphInput) Line() int { return in.line }

type periphOutput struct {
	pin  gpio.PinIO
	line int
}

func (out periphOutput) Set(on bool) error {
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := out.pin.Out(l); err != nil {
		return fmt.Errorf("set line %d: %w", out.line, err)
	}
	return nil
}

func (out periphOutput) Line() int { return out.line }
