/**
 * Language Detector for DocIntake Worker
 *
 * Deterministic two-phase lexical scorer. Phase 1 checks the primary pair
 * (English/Spanish) and returns early on a dominant match; phase 2 extends
 * scoring to the full language set. Closely related Iberian languages get a
 * marker-word refinement pass.
 */

package langdetect

import (
	"regexp"
	"strings"
)

const (
	// MinTextLength is the floor below which detection is not attempted.
	MinTextLength = 20

	// DefaultLanguage is returned (with zero confidence) for short or
	// unscorable text. Low confidence is never an error.
	DefaultLanguage = "en"

	// dominanceThreshold is the share of phase-1 score mass the top
	// primary language must hold to short-circuit phase 2.
	dominanceThreshold = 0.70

	// phase2Floor encodes "phase 2 always returns a guess": confidence
	// never drops below plurality.
	phase2Floor = 0.51

	// markerBoost is added per matched Iberian marker family, then the
	// total is clamped to 1.0.
	markerBoost = 0.15

	wordMatchWeight = 2.0
)

// Result is a detected language tag with a confidence in [0, 1].
type Result struct {
	Language   string
	Confidence float64
}

// Detect scores text against the known language set. It is a pure function:
// the same text always yields the same result.
func Detect(text string) Result {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinTextLength {
		return Result{Language: DefaultLanguage, Confidence: 0}
	}

	tokens := tokenize(trimmed)

	// Phase 1: primary pair only.
	primaryScores := make(map[string]float64, len(primaryLanguages))
	var primaryTotal float64
	for _, lang := range primaryLanguages {
		s := scoreLanguage(trimmed, tokens, profiles[lang])
		primaryScores[lang] = s
		primaryTotal += s
	}

	if primaryTotal > 0 {
		top, topScore := maxScore(primaryScores)
		ratio := topScore / primaryTotal
		if ratio > dominanceThreshold {
			return refineIberian(trimmed, Result{Language: top, Confidence: ratio})
		}
	}

	// Phase 2: extend to the full set and take the global maximum.
	scores := make(map[string]float64, len(primaryLanguages)+len(extendedLanguages))
	var total float64
	for lang, s := range primaryScores {
		scores[lang] = s
		total += s
	}
	for _, lang := range extendedLanguages {
		s := scoreLanguage(trimmed, tokens, profiles[lang])
		scores[lang] = s
		total += s
	}

	if total == 0 {
		return Result{Language: DefaultLanguage, Confidence: 0}
	}

	top, topScore := maxScore(scores)
	confidence := clamp(topScore/total, phase2Floor, 1.0)

	return refineIberian(trimmed, Result{Language: top, Confidence: confidence})
}

// scoreLanguage computes the weighted lexical score of text for one profile:
// frequency-list token matches count double, pattern matches count once each,
// and the sum is scaled by the per-language tuning weight.
func scoreLanguage(text string, tokens map[string]int, profile *languageProfile) float64 {
	if profile == nil {
		return 0
	}

	var score float64
	for _, word := range profile.words {
		if count, ok := tokens[word]; ok {
			score += wordMatchWeight * float64(count)
		}
	}

	for _, pattern := range profile.patterns {
		score += float64(len(pattern.FindAllStringIndex(text, -1)))
	}

	return score * profile.weight
}

// refineIberian applies the marker-word pass when the candidate sits in the
// Iberian family. The language with the most matching marker families wins;
// each matched family adds a confidence boost, clamped to 1.0 at the end.
func refineIberian(text string, candidate Result) Result {
	if !iberianFamily[candidate.Language] {
		return candidate
	}

	bestLang := candidate.Language
	bestMatches := countMarkers(text, iberianMarkers[candidate.Language])

	for lang, markers := range iberianMarkers {
		if lang == candidate.Language {
			continue
		}
		if matches := countMarkers(text, markers); matches > bestMatches {
			bestLang = lang
			bestMatches = matches
		}
	}

	confidence := candidate.Confidence + markerBoost*float64(bestMatches)

	return Result{
		Language:   bestLang,
		Confidence: clamp(confidence, 0, 1.0),
	}
}

// countMarkers counts how many marker families matched at least once.
func countMarkers(text string, markers []*regexp.Regexp) int {
	count := 0
	for _, m := range markers {
		if m.MatchString(text) {
			count++
		}
	}
	return count
}

// tokenize lowercases the text and builds a token frequency map, stripping
// common punctuation off token edges.
func tokenize(text string) map[string]int {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make(map[string]int, len(fields))
	for _, f := range fields {
		token := strings.Trim(f, ".,;:!?\"'()[]{}«»")
		if token != "" {
			tokens[token]++
		}
	}
	return tokens
}

func maxScore(scores map[string]float64) (string, float64) {
	var bestLang string
	best := -1.0
	// Deterministic tie-break: iterate a stable language order.
	for _, lang := range append(append([]string{}, primaryLanguages...), extendedLanguages...) {
		if s, ok := scores[lang]; ok && s > best {
			bestLang = lang
			best = s
		}
	}
	return bestLang, best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
