package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/errors"
)

func TestPropertyDefaults(t *testing.T) {
	b := newTestBlock(t, "b")

	factor, err := b.Property("factor")
	require.NoError(t, err)
	assert.Equal(t, 2.0, factor)

	assert.Equal(t, []string{"factor", "label"}, b.PropertyNames())
	assert.Equal(t, map[string]any{"factor": 2.0, "label": "probe"}, b.Properties())

	_, err = b.Property("missing")
	assert.ErrorIs(t, err, errors.ErrUnknownProperty)
}

func TestSetPropertyNotifies(t *testing.T) {
	b := newTestBlock(t, "b")

	var changes []Change
	_, err := b.Notifier().Subscribe("factor", func(c Change) {
		changes = append(changes, c)
	})
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 3.0))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Block: "b", Property: "factor", Old: 2.0, New: 3.0}, changes[0])

	value, err := b.Property("factor")
	require.NoError(t, err)
	assert.Equal(t, 3.0, value)
}

func TestSetPropertyNoOpSuppression(t *testing.T) {
	b := newTestBlock(t, "b")

	calls := 0
	_, err := b.Notifier().Subscribe("factor", func(Change) { calls++ })
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 2.0)) // same as default
	assert.Equal(t, 0, calls)

	require.NoError(t, b.SetProperty("factor", 4.0))
	require.NoError(t, b.SetProperty("factor", 4.0))
	assert.Equal(t, 1, calls)
}

func TestSetPropertyUnknown(t *testing.T) {
	b := newTestBlock(t, "b")
	assert.ErrorIs(t, b.SetProperty("missing", 1.0), errors.ErrUnknownProperty)
}

func TestWildcardSubscription(t *testing.T) {
	b := newTestBlock(t, "b")

	var seen []string
	_, err := b.Notifier().Subscribe(Wildcard, func(c Change) {
		seen = append(seen, c.Property)
	})
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 3.0))
	require.NoError(t, b.SetProperty("label", "scope"))
	assert.Equal(t, []string{"factor", "label"}, seen)
}

func TestListenerOrderAndIsolation(t *testing.T) {
	b := newTestBlock(t, "b")

	var order []string
	_, err := b.Notifier().Subscribe("factor", func(Change) {
		order = append(order, "first")
		panic("listener gone wrong")
	})
	require.NoError(t, err)
	_, err = b.Notifier().Subscribe("factor", func(Change) {
		order = append(order, "second")
	})
	require.NoError(t, err)
	_, err = b.Notifier().Subscribe(Wildcard, func(Change) {
		order = append(order, "wildcard")
	})
	require.NoError(t, err)

	// The panicking listener must not fail the set or starve later listeners
	require.NoError(t, b.SetProperty("factor", 9.0))
	assert.Equal(t, []string{"first", "second", "wildcard"}, order)

	value, err := b.Property("factor")
	require.NoError(t, err)
	assert.Equal(t, 9.0, value)
}

func TestWildcardFiresAfterSpecificListeners(t *testing.T) {
	b := newTestBlock(t, "b")

	// wildcard subscribed first still fires after the specific listener
	var order []string
	_, err := b.Notifier().Subscribe(Wildcard, func(Change) {
		order = append(order, "wildcard")
	})
	require.NoError(t, err)
	_, err = b.Notifier().Subscribe("factor", func(Change) {
		order = append(order, "specific")
	})
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 3.0))
	assert.Equal(t, []string{"specific", "wildcard"}, order)
}

func TestUnsubscribeListener(t *testing.T) {
	b := newTestBlock(t, "b")

	calls := 0
	sub, err := b.Notifier().Subscribe("factor", func(Change) { calls++ })
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 3.0))
	b.Notifier().Unsubscribe(sub)
	require.NoError(t, b.SetProperty("factor", 4.0))

	assert.Equal(t, 1, calls)
}

// watchingStrategy recomputes derived state on property changes.
type watchingStrategy struct {
	recordingStrategy
	changed []string
}

func (s *watchingStrategy) OnPropertyChanged(_ Emitter, name string, _ any) error {
	s.changed = append(s.changed, name)
	return nil
}

func TestPropertyWatcherRecompute(t *testing.T) {
	strategy := &watchingStrategy{}
	b, err := New("b", "t", testSchema(), strategy, nil)
	require.NoError(t, err)

	require.NoError(t, b.SetProperty("factor", 5.0))
	require.NoError(t, b.SetProperty("factor", 5.0)) // suppressed, no recompute
	assert.Equal(t, []string{"factor"}, strategy.changed)
}
