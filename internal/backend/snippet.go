package backend

import "unicode/utf8"

// defaultSnippetMaxChars is the snippet window used when a backend
// configuration does not override it.
const defaultSnippetMaxChars = 240

// centeredSnippet cuts a window of at most maxChars bytes from text,
// centered on the given offset with half the budget on each side and
// clamped to the text bounds. Both edges are nudged to rune boundaries
// so the snippet is always valid UTF-8. Returns the snippet and its
// [start, end) byte span.
func centeredSnippet(text string, center, maxChars int) (string, int, int) {
	if len(text) <= maxChars {
		return text, 0, len(text)
	}
	if center < 0 {
		center = 0
	}
	if center > len(text) {
		center = len(text)
	}

	start := center - maxChars/2
	if start < 0 {
		start = 0
	}
	end := start + maxChars
	if end > len(text) {
		end = len(text)
		start = end - maxChars
	}
	// Start moves forward and end moves backward, so the window never
	// grows past maxChars.
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[start:end], start, end
}
