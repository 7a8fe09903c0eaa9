package chunk

import "strings"

// splitTextByBudget breaks text into word-aligned pieces that each fit
// within maxTokens, for the rare block whose own content already exceeds
// absolute_max and must be force-split mid-structure.
func splitTextByBudget(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		return []string{text}
	}
	maxChars := maxTokens * TokensPerChar

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var parts []string
	var cur []string
	curLen := 0
	for _, w := range words {
		add := len(w) + 1
		if curLen+add > maxChars && len(cur) > 0 {
			parts = append(parts, strings.Join(cur, " "))
			cur = nil
			curLen = 0
		}
		cur = append(cur, w)
		curLen += add
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, " "))
	}
	return parts
}

// expandOversizedBlocks force-splits any block whose content alone exceeds
// absoluteMax tokens, so no single block can prevent the grouping passes
// from honoring the hard cap.
func expandOversizedBlocks(blocks []block, absoluteMax int) []block {
	if absoluteMax <= 0 {
		return blocks
	}

	out := make([]block, 0, len(blocks))
	for _, b := range blocks {
		if estimateTokens(b.text) <= absoluteMax {
			out = append(out, b)
			continue
		}
		for _, part := range splitTextByBudget(b.text, absoluteMax) {
			piece := b
			piece.text = part
			out = append(out, piece)
		}
	}
	return out
}

func joinBlocks(blocks []block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.text)
	}
	return strings.Join(parts, "\n\n")
}

func headingPathJoined(path []string) string {
	return strings.Join(path, " > ")
}

func containsKind(blocks []block, kind blockKind) bool {
	for _, b := range blocks {
		if b.kind == kind {
			return true
		}
	}
	return false
}

func blockGroupTokens(blocks []block) int {
	total := 0
	for _, b := range blocks {
		total += estimateTokens(b.text)
	}
	return total
}
