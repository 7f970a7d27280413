package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionToggle(t *testing.T) {
	tr := newSelectionTracker()
	tr.begin(7, 0, 4)

	got, n, ok := tr.toggle(7, 0, 2)
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.ElementsMatch(t, []int{2}, got)

	got, _, ok = tr.toggle(7, 0, 1)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int{1, 2}, got)

	// second tap deselects
	got, _, ok = tr.toggle(7, 0, 2)
	assert.True(t, ok)
	assert.ElementsMatch(t, []int{1}, got)
}

func TestSelectionStaleCursorIgnored(t *testing.T) {
	tr := newSelectionTracker()
	tr.begin(7, 1, 4)

	_, _, ok := tr.toggle(7, 0, 0)
	assert.False(t, ok)

	_, ok = tr.current(7, 0)
	assert.False(t, ok)
}

func TestSelectionRejectsOutOfRangeOption(t *testing.T) {
	tr := newSelectionTracker()
	tr.begin(7, 0, 2)

	_, _, ok := tr.toggle(7, 0, 5)
	assert.False(t, ok)
	_, _, ok = tr.toggle(7, 0, -1)
	assert.False(t, ok)
}

func TestSelectionBeginResets(t *testing.T) {
	tr := newSelectionTracker()
	tr.begin(7, 0, 4)
	tr.toggle(7, 0, 1)

	tr.begin(7, 1, 4)
	got, ok := tr.current(7, 1)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSelectionUsersIndependent(t *testing.T) {
	tr := newSelectionTracker()
	tr.begin(1, 0, 4)
	tr.begin(2, 0, 4)
	tr.toggle(1, 0, 3)

	got, ok := tr.current(2, 0)
	assert.True(t, ok)
	assert.Empty(t, got)
}
