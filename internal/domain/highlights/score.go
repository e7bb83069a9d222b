package highlights

import (
	"regexp"
	"strings"
)

var (
	reNum      = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reHook     = regexp.MustCompile(`(?i)\b(important|secret|mistake|never|always|here\s+is\s+why|remember|nobody|truth|insane|crazy|shocking|actually)\b`)
	reHow      = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
	reOpinion  = regexp.MustCompile(`(?i)\b(i\s+think|honestly|unpopular|overrated|underrated|wrong)\b`)
	reStepNum  = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
	reGreeting = regexp.MustCompile(`(?i)\b(subscribe|welcome\s+back|hey\s+guys|like\s+and|thanks\s+for\s+watching)\b`)
)

// Signal is a cheap text-only estimate of how informative and how hooky a
// line is, both in [0..10].
type Signal struct {
	Info float64
	Hook float64
}

func (s Signal) Total() float64 { return s.Info + s.Hook }

func Score(text string) Signal {
	t := strings.TrimSpace(text)
	if t == "" {
		return Signal{}
	}
	lower := strings.ToLower(t)

	info := float64(len(reNum.FindAllStringIndex(t, -1))) * 0.4
	if reHow.MatchString(lower) {
		info += 1.2
	}
	info -= 0.0006 * float64(len([]rune(t)))

	hook := float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	hook += float64(len(reOpinion.FindAllStringIndex(lower, -1))) * 0.6
	hook += float64(len(reStepNum.FindAllStringIndex(lower, -1))) * 0.4
	hook += float64(strings.Count(t, "?")) * 0.7
	hook += float64(strings.Count(t, "!")) * 0.3
	// channel housekeeping never makes a good opener
	if reGreeting.MatchString(lower) {
		hook -= 2
	}

	return Signal{Info: clamp(info, 0, 10), Hook: clamp(hook, 0, 10)}
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
