package button

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBind(t *testing.T) {
	clock := &FakeClock{}
	r := NewRegistry()

	a := New("a", 26, NewFakePin(), clock, Options{})
	b := New("b", 16, NewFakePin(), clock, Options{})
	require.NoError(t, r.Bind(a))
	require.NoError(t, r.Bind(b))

	dup := New("dup", 26, NewFakePin(), clock, Options{})
	err := r.Bind(dup)
	require.ErrorIs(t, err, ErrLineBound)
	assert.Contains(t, err.Error(), `"a"`)

	assert.Same(t, a, r.Lookup(26))
	assert.Nil(t, r.Lookup(99))

	chs := r.Channels()
	require.Len(t, chs, 2)
	assert.Equal(t, "b", chs[0].Name(), "channels are ordered by line")
	assert.Equal(t, "a", chs[1].Name())
}

func TestRegistryNotify(t *testing.T) {
	clock := &FakeClock{Now: 100}
	pin := NewFakePin()
	r := NewRegistry()
	ch := New("a", 26, pin, clock, Options{})
	require.NoError(t, r.Bind(ch))

	assert.False(t, r.Notify(3), "unknown line")

	pin.Press()
	assert.True(t, r.Notify(26))
	assert.True(t, ch.Active())

	// Delivered but rejected as a spike still counts as delivered.
	clock.Now = 300
	assert.True(t, r.Notify(26))
	assert.Equal(t, 1, ch.Stats().Spikes)
}

func TestRegistryPoll(t *testing.T) {
	clock := &FakeClock{Now: 100}
	pinA, pinB := NewFakePin(), NewFakePin()
	r := NewRegistry()
	require.NoError(t, r.Bind(New("a", 26, pinA, clock, Options{})))
	require.NoError(t, r.Bind(New("b", 16, pinB, clock, Options{})))

	assert.Empty(t, r.Poll())

	pinA.Press()
	pinB.Press()
	assert.Equal(t, []string{"b", "a"}, r.Poll())
	assert.Empty(t, r.Poll())
}
