// Package chunker splits long text into overlapping, sentence-aware segments.
package chunker

import "strings"

// Default window and overlap, in characters.
const (
	DefaultSize    = 500
	DefaultOverlap = 50
)

// boundaries are tried in order; the first one found in the back half of the
// window decides the cut.
var boundaries = [][]rune{
	[]rune(". "),
	[]rune(".\n"),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n\n"),
}

// Splitter cuts text into windows of Size characters that overlap by Overlap.
type Splitter struct {
	Size    int
	Overlap int
}

// New returns a Splitter. A non-positive size selects DefaultSize; an overlap
// outside [0, size) is clamped into it.
func New(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split is shorthand for New(size, overlap).Split(text).
func Split(text string, size, overlap int) []string {
	return New(size, overlap).Split(text)
}

// Split returns the chunks of text in order. Text no longer than Size comes
// back as a single chunk, unchanged. Longer text is cut at the last sentence
// boundary in the back half of each window, or at the window edge if there is
// none. Chunks are trimmed and empty ones dropped.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= s.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.Size
		if end >= len(runes) {
			end = len(runes)
		} else {
			window := runes[start:end]
			for _, b := range boundaries {
				if i := lastIndex(window, b); i >= s.Size/2 {
					end = start + i + len(b)
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func lastIndex(haystack, needle []rune) int {
outer:
	for i := len(haystack) - len(needle); i >= 0; i-- {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
