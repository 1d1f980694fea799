package planner

import "regexp"

// Compiled once at package init, mirroring pkg/router's pattern-matcher
// style: a sequential-chaining indicator plus one verb from each of the
// research/action vocabularies, checked with word boundaries so "and"
// doesn't trip on substrings like "sandbox".
var (
	sequentialIndicator = regexp.MustCompile(`(?i)\b(and then|followed by|after that|then|and)\b`)
	researchVerbWord    = regexp.MustCompile(`(?i)\b(research|find|look ?up|investigate|search|check|gather)\b`)
	actionVerbWord      = regexp.MustCompile(`(?i)\b(create|make|generate|add|set ?up|post|build|draft)\b`)
)

// looksMultiStep is the zero-LLM-call detection gate (spec §4.7): absent
// a sequential indicator and both verb classes, Handle returns
// {multi_step:false} without ever calling the LLM.
func looksMultiStep(utterance string) bool {
	return sequentialIndicator.MatchString(utterance) &&
		researchVerbWord.MatchString(utterance) &&
		actionVerbWord.MatchString(utterance)
}
