//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

// CdevBank reads buttons from the Linux GPIO character device. Edge events
// are delivered by gpiocdev's event handler goroutine.
type CdevBank struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*cdevInput
	outputs []*cdevOutput
	edges   chan int
	running atomic.Bool
	logger  *zap.SugaredLogger
	mu      sync.Mutex
}

type cdevInput struct {
	line  *gpiocdev.Line
	mu    sync.Mutex
	cache levelCache
}

type cdevOutput struct {
	line   *gpiocdev.Line
	offset int
}

// OpenCdev requests each line as a pulled-up input with events on both edges.
func OpenCdev(chipName string, lines []int, logger *zap.SugaredLogger) (*CdevBank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &CdevBank{
		chip:   chip,
		inputs: make(map[int]*cdevInput),
		edges:  make(chan int, edgeBuffer),
		logger: logger,
	}
	for _, n := range lines {
		l, err := chip.RequestLine(n, gpiocdev.AsInput, gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(b.handleEvent))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request button line %d: %w", n, err)
		}
		b.inputs[n] = &cdevInput{line: l, cache: newLevelCache(n, logger)}
	}
	return b, nil
}

func (b *CdevBank) handleEvent(evt gpiocdev.LineEvent) {
	if !b.running.Load() {
		return
	}
	offer(b.edges, evt.Offset, b.logger)
}

// Start begins forwarding edge events.
func (b *CdevBank) Start() error {
	b.running.Store(true)
	return nil
}

// Stop stops forwarding edge events. Lines stay requested until Close.
func (b *CdevBank) Stop() {
	b.running.Store(false)
}

func (b *CdevBank) Edges() <-chan int {
	return b.edges
}

func (b *CdevBank) Input(line int) Input {
	in, ok := b.inputs[line]
	if !ok {
		return nil
	}
	return in
}

// Output requests line as an output driven low.
func (b *CdevBank) Output(line int) (Output, error) {
	l, err := b.chip.RequestLine(line, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", line, err)
	}
	out := &cdevOutput{line: l, offset: line}
	b.mu.Lock()
	b.outputs = append(b.outputs, out)
	b.mu.Unlock()
	return out, nil
}

// Close drives outputs low and releases all lines and the chip.
func (b *CdevBank) Close() error {
	b.Stop()
	var errs []error

	b.mu.Lock()
	for _, out := range b.outputs {
		if err := out.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear output %d: %w", out.offset, err))
		}
		if err := out.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output %d: %w", out.offset, err))
		}
	}
	b.outputs = nil
	b.mu.Unlock()

	for n, in := range b.inputs {
		if err := in.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button line %d: %w", n, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (in *cdevInput) Level() bool {
	v, err := in.line.Value()
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cache.update(v != 0, err)
}

func (in *cdevInput) Line() int {
	return in.cache.line
}

func (out *cdevOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := out.line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", out.offset, err)
	}
	return nil
}

func (out *cdevOutput) Line() int {
	return out.offset
}
