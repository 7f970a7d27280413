package quiz

import (
	"sort"
	"time"
)

// Question is a single multiple-choice item. Immutable after load.
// Correct holds the indices of the correct options, sorted ascending; a
// question may have more than one correct option.
type Question struct {
	Text       string
	Options    []string
	Correct    []int
	Difficulty string
}

// MatchesSelection reports whether the selected option indices are exactly
// the correct set. Order and duplicates in the selection are ignored; partial
// overlap is not credited.
func (q Question) MatchesSelection(selected []int) bool {
	norm := normalizeIndices(selected)
	if len(norm) != len(q.Correct) {
		return false
	}
	for i, v := range norm {
		if v != q.Correct[i] {
			return false
		}
	}
	return true
}

func normalizeIndices(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// QuestionSet is the ordered question sequence of one specialization.
// Loaded once at startup and shared read-only across sessions.
type QuestionSet []Question

// Specialization is one named test track. Immutable after load; Available is
// false when its question file failed validation.
type Specialization struct {
	ID         string
	Name       string
	Difficulty string
	// QuestionTime is the per-question answer deadline.
	QuestionTime time.Duration
	// SessionTime caps the whole test.
	SessionTime time.Duration
	Available   bool
	Questions   QuestionSet
}

// Answer is the recorded outcome for one presented question.
type Answer struct {
	// Selected holds the chosen option indices; empty when timed out.
	Selected []int
	// TimedOut marks the per-question deadline expiring without a submission.
	TimedOut bool
	// Elapsed is the time from presentation to answer or timeout.
	Elapsed time.Duration
}

// GradeResult is the derived outcome of a scored session. Never mutated
// after creation.
type GradeResult struct {
	Correct int
	Total   int
	Percent int
	Grade   string
}
