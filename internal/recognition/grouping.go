package recognition

import "strings"

// Raw OCR output tends to over-segment: a paragraph arrives as several
// small blocks. FilterAndGroup drops noise blocks and merges vertically
// adjacent ones into coherent translation units, cutting both the number
// of translation calls and the fragmentation of the translated output.
//
// Guarantees: reading order is preserved, non-empty text is never
// dropped, and the result never has more elements than the input.
func FilterAndGroup(blocks []TextBlock) []TextBlock {
	filtered := make([]TextBlock, 0, len(blocks))
	for _, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		filtered = append(filtered, block)
	}
	if len(filtered) == 0 {
		return filtered
	}

	grouped := make([]TextBlock, 0, len(filtered))
	current := filtered[0]
	for _, next := range filtered[1:] {
		if shouldMerge(current, next) {
			current = merge(current, next)
			continue
		}
		grouped = append(grouped, current)
		current = next
	}
	grouped = append(grouped, current)

	return grouped
}

// shouldMerge decides whether next continues the same text unit as prev.
// Blocks without geometry never merge.
func shouldMerge(prev, next TextBlock) bool {
	if prev.BoundingBox.IsZero() || next.BoundingBox.IsZero() {
		return false
	}

	// Vertical gap no larger than roughly one line of the previous block.
	lineHeight := prev.BoundingBox.Height()
	if len(prev.Lines) > 0 {
		lineHeight = prev.BoundingBox.Height() / len(prev.Lines)
	}
	if lineHeight <= 0 {
		return false
	}
	gap := next.BoundingBox.Top - prev.BoundingBox.Bottom
	if gap < 0 || gap > lineHeight {
		return false
	}

	return horizontalOverlap(prev.BoundingBox, next.BoundingBox)
}

func horizontalOverlap(a, b Rect) bool {
	return a.Left < b.Right && b.Left < a.Right
}

func merge(a, b TextBlock) TextBlock {
	lines := make([]TextLine, 0, len(a.Lines)+len(b.Lines))
	lines = append(lines, a.Lines...)
	lines = append(lines, b.Lines...)
	return TextBlock{
		Text:        a.Text + "\n" + b.Text,
		BoundingBox: a.BoundingBox.Union(b.BoundingBox),
		Lines:       lines,
	}
}
