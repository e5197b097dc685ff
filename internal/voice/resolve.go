package voice

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MatchThreshold is the largest edit distance accepted as a match.
	MatchThreshold = 3
	// MinPhraseLength is the shortest spoken name, in runes, worth matching.
	MinPhraseLength = 3
	// NoDistance marks a result where no distance was computed.
	NoDistance = math.MaxInt
)

// Task is a read-only snapshot of a to-do item as the voice layer sees it.
type Task struct {
	ID        string
	Content   string
	Completed bool
}

// MatchResult is the outcome of Resolve. Task is nil when nothing matched.
type MatchResult struct {
	Task     *Task
	Distance int
}

// Matched reports whether a task was selected.
func (m MatchResult) Matched() bool { return m.Task != nil }

// Resolve finds the task whose content is closest to phrase. Ties keep the
// first task in input order. Matches further than MatchThreshold are rejected,
// as are phrases shorter than MinPhraseLength regardless of distance.
func Resolve(phrase string, tasks []Task) MatchResult {
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if utf8.RuneCountInString(needle) < MinPhraseLength {
		return MatchResult{Distance: NoDistance}
	}

	best := -1
	bestDist := NoDistance
	for i := range tasks {
		d := Distance(needle, strings.ToLower(strings.TrimSpace(tasks[i].Content)))
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 || bestDist > MatchThreshold {
		return MatchResult{Distance: bestDist}
	}
	match := tasks[best]
	return MatchResult{Task: &match, Distance: bestDist}
}
