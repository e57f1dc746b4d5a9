package gpio

import "fmt"

// FakeInput is a test double that returns scripted raw levels.
type FakeInput struct {
	N int

	// Samples contains scripted levels to return.
	// Each call to Level() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int
}

// NewFakeInput creates a FakeInput on line n with the given samples.
// With no samples it reads high, a released pull-up button.
func NewFakeInput(n int, samples ...bool) *FakeInput {
	if len(samples) == 0 {
		samples = []bool{true}
	}
	return &FakeInput{N: n, Samples: samples}
}

// Level returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Level() bool {
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s
}

// Line returns the line number.
func (f *FakeInput) Line() int {
	return f.N
}

// Set replaces the script with a constant level.
func (f *FakeInput) Set(high bool) {
	f.Samples = []bool{high}
	f.index = 0
}

// FakeOutput records every value written.
type FakeOutput struct {
	N      int
	Values []bool
	// SetError, if set, will be returned by Set.
	SetError error
}

// Set records the value.
func (f *FakeOutput) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	return nil
}

// Line returns the line number.
func (f *FakeOutput) Line() int {
	return f.N
}

// Last returns the last value written, false if none.
func (f *FakeOutput) Last() bool {
	if len(f.Values) == 0 {
		return false
	}
	return f.Values[len(f.Values)-1]
}

// FakeBank is a Bank backed by FakeInputs. Edges are injected with Emit.
type FakeBank struct {
	Inputs  map[int]*FakeInput
	Outputs map[int]*FakeOutput

	// OutputError, if set, will be returned by Output.
	OutputError error

	Started bool
	Closed  bool

	edges chan int
}

// NewFakeBank creates a FakeBank with a released input on each line.
func NewFakeBank(lines ...int) *FakeBank {
	b := &FakeBank{
		Inputs:  make(map[int]*FakeInput),
		Outputs: make(map[int]*FakeOutput),
		edges:   make(chan int, edgeBuffer),
	}
	for _, n := range lines {
		b.Inputs[n] = NewFakeInput(n)
	}
	return b
}

// Emit queues an edge notification for line.
func (b *FakeBank) Emit(line int) {
	b.edges <- line
}

func (b *FakeBank) Start() error {
	b.Started = true
	return nil
}

func (b *FakeBank) Stop() {
	b.Started = false
}

func (b *FakeBank) Edges() <-chan int {
	return b.edges
}

func (b *FakeBank) Input(line int) Input {
	in, ok := b.Inputs[line]
	if !ok {
		return nil
	}
	return in
}

func (b *FakeBank) Output(line int) (Output, error) {
	if b.OutputError != nil {
		return nil, b.OutputError
	}
	if _, ok := b.Inputs[line]; ok {
		return nil, fmt.Errorf("line %d is a button input", line)
	}
	out := &FakeOutput{N: line}
	b.Outputs[line] = out
	return out, nil
}

// Close marks the bank as closed.
func (b *FakeBank) Close() error {
	b.Stop()
	b.Closed = true
	return nil
}
