package button

import (
	"errors"
	"fmt"
	"sort"
)

// ErrLineBound is returned when a second channel is bound to a line.
var ErrLineBound = errors.New("line already bound")

// Registry routes edge notifications to the one channel bound to each
// hardware line. Bindings live as long as the registry.
type Registry struct {
	channels map[int]*Channel
	lines    []int // sorted
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[int]*Channel)}
}

// Bind registers ch under its line.
func (r *Registry) Bind(ch *Channel) error {
	if prev, ok := r.channels[ch.Line()]; ok {
		return fmt.Errorf("bind %q to line %d: %w (by %q)", ch.Name(), ch.Line(), ErrLineBound, prev.Name())
	}
	r.channels[ch.Line()] = ch
	r.lines = append(r.lines, ch.Line())
	sort.Ints(r.lines)
	return nil
}

// Lookup returns the channel bound to line, or nil.
func (r *Registry) Lookup(line int) *Channel {
	return r.channels[line]
}

// Notify delivers an edge notification for line. It returns false if no
// channel is bound to the line.
func (r *Registry) Notify(line int) bool {
	ch, ok := r.channels[line]
	if !ok {
		return false
	}
	ch.OnRawChange()
	return true
}

// Poll runs PollForMissedEdge on every channel in line order and returns the
// names of channels whose state changed.
func (r *Registry) Poll() []string {
	var changed []string
	for _, line := range r.lines {
		ch := r.channels[line]
		if ch.PollForMissedEdge() {
			changed = append(changed, ch.Name())
		}
	}
	return changed
}

// Channels returns all bound channels in line order.
func (r *Registry) Channels() []*Channel {
	out := make([]*Channel, 0, len(r.lines))
	for _, line := range r.lines {
		out = append(out, r.channels[line])
	}
	return out
}
