package gpio

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestFakeInputLevel(t *testing.T) {
	f := NewFakeInput(26, true, false, false)

	want := []bool{true, false, false, false}
	for i, w := range want {
		if got := f.Level(); got != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, got)
		}
	}
	if f.Line() != 26 {
		t.Errorf("expected line 26, got %d", f.Line())
	}
}

func TestFakeInputDefaultsHigh(t *testing.T) {
	f := NewFakeInput(3)
	if !f.Level() {
		t.Error("released pull-up input should read high")
	}

	f.Set(false)
	if f.Level() {
		t.Error("expected low after Set(false)")
	}
}

func TestFakeOutput(t *testing.T) {
	f := &FakeOutput{N: 4}
	if f.Last() {
		t.Error("expected false before any write")
	}
	f.Set(true)
	f.Set(false)
	f.Set(true)
	if len(f.Values) != 3 || !f.Last() {
		t.Errorf("unexpected values: %v", f.Values)
	}

	f.SetError = errors.New("simulated error")
	if err := f.Set(false); err == nil {
		t.Error("expected error to be returned")
	}
}

func TestFakeBank(t *testing.T) {
	b := NewFakeBank(26, 16)

	if b.Input(26) == nil || b.Input(16) == nil {
		t.Fatal("expected inputs for opened lines")
	}
	if b.Input(5) != nil {
		t.Error("expected nil for unopened line")
	}

	if _, err := b.Output(26); err == nil {
		t.Error("expected error requesting an input line as output")
	}
	out, err := b.Output(13)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out.Set(true)
	if !b.Outputs[13].Last() {
		t.Error("output write not recorded")
	}

	b.Start()
	b.Emit(16)
	select {
	case n := <-b.Edges():
		if n != 16 {
			t.Errorf("expected edge on 16, got %d", n)
		}
	default:
		t.Fatal("expected queued edge")
	}

	b.Close()
	if !b.Closed || b.Started {
		t.Error("expected closed and stopped")
	}
}

func TestOfferDropsWhenFull(t *testing.T) {
	edges := make(chan int, 1)
	logger := zap.NewNop().Sugar()

	offer(edges, 1, logger)
	offer(edges, 2, logger)

	if len(edges) != 1 {
		t.Fatalf("expected 1 queued edge, got %d", len(edges))
	}
	if n := <-edges; n != 1 {
		t.Errorf("expected first edge kept, got %d", n)
	}
}

func TestLevelCacheKeepsLastOnError(t *testing.T) {
	c := newLevelCache(7, zap.NewNop().Sugar())

	if got := c.update(false, nil); got {
		t.Error("expected low")
	}
	if got := c.update(true, errors.New("read failed")); got {
		t.Error("expected last good level (low) on error")
	}
	if !c.failed {
		t.Error("expected failure recorded")
	}
	if got := c.update(true, nil); !got {
		t.Error("expected high after recovery")
	}
	if c.failed {
		t.Error("expected failure cleared")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("bogus", "", nil, zap.NewNop().Sugar()); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestFakeBankSatisfiesBank(t *testing.T) {
	var _ Bank = NewFakeBank()
}
