/**
 * OCR post-processing
 *
 * Tesseract returns recognized regions in engine order, which does not
 * reliably match visual reading order. Reading order is re-derived spatially:
 * blocks are sorted by vertical center, grouped into lines by a pixel
 * threshold, and sorted horizontally within each line.
 */

package ocr

import (
	"regexp"
	"sort"
	"strings"
)

// lineBreakThreshold is the maximum vertical-center distance (pixels)
// between two blocks that still belong to the same visual line.
const lineBreakThreshold = 20.0

var (
	runWhitespace  = regexp.MustCompile(`[ \t]+`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// verticalCenter returns the y midpoint of a block's polygon, 0 for blocks
// without geometry.
func verticalCenter(b Block) float64 {
	if len(b.Box) < 8 {
		return 0
	}
	// Polygon corners: (x1,y1) top-left ... (x4,y4) bottom-left.
	return (b.Box[1] + b.Box[5]) / 2
}

// horizontalCenter returns the x midpoint of a block's polygon.
func horizontalCenter(b Block) float64 {
	if len(b.Box) < 8 {
		return 0
	}
	return (b.Box[0] + b.Box[4]) / 2
}

// assembleReadingOrder rebuilds text from blocks: sort by vertical center,
// group consecutive blocks within lineBreakThreshold into one line, order
// each line left to right, then join lines with newlines.
func assembleReadingOrder(blocks []Block) string {
	if len(blocks) == 0 {
		return ""
	}

	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return verticalCenter(sorted[i]) < verticalCenter(sorted[j])
	})

	var lines [][]Block
	current := []Block{sorted[0]}
	for _, b := range sorted[1:] {
		prev := current[len(current)-1]
		if verticalCenter(b)-verticalCenter(prev) <= lineBreakThreshold {
			current = append(current, b)
		} else {
			lines = append(lines, current)
			current = []Block{b}
		}
	}
	lines = append(lines, current)

	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool {
			return horizontalCenter(line[i]) < horizontalCenter(line[j])
		})
		parts := make([]string, 0, len(line))
		for _, b := range line {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		rendered = append(rendered, strings.Join(parts, " "))
	}

	return strings.Join(rendered, "\n")
}

// cleanText normalizes recognized text: collapse whitespace runs, trim line
// edges, and collapse three or more blank lines to two.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(runWhitespace.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	joined = excessNewlines.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

// meanConfidence averages block confidences; zero when there are no blocks.
func meanConfidence(blocks []Block) float64 {
	if len(blocks) == 0 {
		return 0
	}
	var sum float64
	for _, b := range blocks {
		sum += b.Confidence
	}
	return sum / float64(len(blocks))
}

// normalizeConfidence maps engine confidences (0-100) into [0, 1].
func normalizeConfidence(c float64) float64 {
	if c > 1.0 {
		c = c / 100.0
	}
	if c < 0 {
		return 0
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
