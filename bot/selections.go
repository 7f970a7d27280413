package bot

import "sync"

// selection is the set of options a user has toggled for one question before
// confirming. It lives in the transport only; the engine sees the final set.
type selection struct {
	cursor  int
	options int
	picked  map[int]bool
}

type selectionTracker struct {
	mu sync.Mutex
	m  map[int64]*selection
}

func newSelectionTracker() *selectionTracker {
	return &selectionTracker{m: make(map[int64]*selection)}
}

// begin resets the user's pending selection for a freshly shown question.
func (t *selectionTracker) begin(userID int64, cursor, options int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[userID] = &selection{cursor: cursor, options: options, picked: make(map[int]bool)}
}

// toggle flips one option and reports the updated set plus the question's
// option count. A cursor mismatch means the tap targets an outdated keyboard
// and is ignored.
func (t *selectionTracker) toggle(userID int64, cursor, option int) ([]int, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sel, ok := t.m[userID]
	if !ok || sel.cursor != cursor || option < 0 || option >= sel.options {
		return nil, 0, false
	}
	if sel.picked[option] {
		delete(sel.picked, option)
	} else {
		sel.picked[option] = true
	}
	return pickedList(sel), sel.options, true
}

// current returns the pending set for the given cursor.
func (t *selectionTracker) current(userID int64, cursor int) ([]int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sel, ok := t.m[userID]
	if !ok || sel.cursor != cursor {
		return nil, false
	}
	return pickedList(sel), true
}

func (t *selectionTracker) clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, userID)
}

func pickedList(sel *selection) []int {
	out := make([]int, 0, len(sel.picked))
	for idx := range sel.picked {
		out = append(out, idx)
	}
	return out
}
