package quiz

import "math"

// Bucket is one step of the grading scale.
type Bucket struct {
	MinPercent int
	Label      string
}

// Scale maps a percentage to a qualitative grade. Buckets are ordered by
// MinPercent ascending and cover [0,100]; validated at config load.
type Scale struct {
	buckets []Bucket
}

// NewScale wraps validated buckets. Callers are expected to have run config
// validation; an empty scale yields empty labels.
func NewScale(buckets []Bucket) Scale {
	return Scale{buckets: buckets}
}

// Label returns the label of the highest bucket whose minimum is at or below
// percent.
func (s Scale) Label(percent int) string {
	label := ""
	for _, b := range s.buckets {
		if b.MinPercent > percent {
			break
		}
		label = b.Label
	}
	return label
}

// Percent computes the rounded success percentage; 0.5 rounds up.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(float64(correct)/float64(total)*100 + 0.5))
}

// Score grades a finished or force-finished session. Every question of the
// set counts toward the total; unanswered and timed-out questions are wrong.
// An answer is correct only when its selected set exactly equals the
// question's correct set.
func (s Scale) Score(questions QuestionSet, answers []Answer) GradeResult {
	correct := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		a := answers[i]
		if a.TimedOut || len(a.Selected) == 0 {
			continue
		}
		if q.MatchesSelection(a.Selected) {
			correct++
		}
	}
	percent := Percent(correct, len(questions))
	return GradeResult{
		Correct: correct,
		Total:   len(questions),
		Percent: percent,
		Grade:   s.Label(percent),
	}
}
