/**
 * Extraction Strategy Selector
 *
 * Decides which pages of the extracted text are sent to classification.
 * Splitting uses the first page-break marker that actually occurs in the
 * text; the result is truncated to a hard character budget.
 */

package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultPageBreakMarker is the delimiter inserted between per-page text
// during multi-page extraction.
const DefaultPageBreakMarker = "=== PAGE BREAK ==="

const (
	ellipsisMarker      = "\n\n[...]\n\n"
	truncationIndicator = "\n[truncated]"
)

// Strategy selects which pages contribute to classification text.
type Strategy string

const (
	StrategyAll             Strategy = "ALL"
	StrategyFirstPage       Strategy = "FIRST_PAGE"
	StrategyFirstLast       Strategy = "FIRST_LAST"
	StrategyFirstMiddleLast Strategy = "FIRST_MIDDLE_LAST"
)

// Config holds the strategy and the character budget for the selected text.
type Config struct {
	Strategy  Strategy
	MaxLength int
}

// Selection is the outcome: the untouched full text plus the page subset
// prepared for the classifier.
type Selection struct {
	FullText           string
	ClassificationText string
	PageCount          int
}

// Select splits fullText into pages and applies the strategy. markers lists
// candidate page-break markers in priority order; the first one present in
// the text wins, falling back to DefaultPageBreakMarker.
func Select(fullText string, markers []string, cfg Config) Selection {
	marker := DefaultPageBreakMarker
	for _, m := range markers {
		if m != "" && strings.Contains(fullText, m) {
			marker = m
			break
		}
	}

	pages := splitPages(fullText, marker)

	var selected string
	switch cfg.Strategy {
	case StrategyFirstPage:
		selected = firstPage(pages, fullText)
	case StrategyFirstLast:
		selected = firstLast(pages, fullText)
	case StrategyFirstMiddleLast:
		selected = firstMiddleLast(pages, fullText)
	default: // StrategyAll
		selected = fullText
	}

	return Selection{
		FullText:           fullText,
		ClassificationText: truncate(selected, cfg.MaxLength),
		PageCount:          len(pages),
	}
}

// splitPages splits on the marker and drops pages that are empty after
// trimming.
func splitPages(text, marker string) []string {
	parts := strings.Split(text, marker)
	pages := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}
	return pages
}

func firstPage(pages []string, fullText string) string {
	if len(pages) == 0 {
		return fullText
	}
	return pages[0]
}

func firstLast(pages []string, fullText string) string {
	switch len(pages) {
	case 0:
		return fullText
	case 1:
		return pages[0]
	default:
		return pages[0] + ellipsisMarker + pages[len(pages)-1]
	}
}

func firstMiddleLast(pages []string, fullText string) string {
	switch len(pages) {
	case 0:
		return fullText
	case 1:
		return pages[0]
	case 2:
		return pages[0] + ellipsisMarker + pages[1]
	default:
		middle := pages[len(pages)/2]
		return pages[0] + ellipsisMarker + middle + ellipsisMarker + pages[len(pages)-1]
	}
}

// truncate applies a hard cut at the nearest rune boundary, not word-boundary
// aware, appending an indicator when anything was dropped. maxLength <= 0
// disables the cut.
func truncate(text string, maxLength int) string {
	if maxLength <= 0 || len(text) <= maxLength {
		return text
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationIndicator
}
