package main

import "strings"

type textChunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// splitText cuts text into size-bounded chunks, preferring to break on a
// paragraph, then a sentence end, then a plain space found within
// chunkSearchWindow characters of the raw cut point. Consecutive chunks
// overlap so downstream consumers keep context across the boundary; start
// still advances at least one character per chunk, so the loop terminates
// even with overlap >= size.
func splitText(text string, size, overlap int) []textChunk {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if len(text) <= size {
		return []textChunk{{Index: 0, Start: 0, End: len(text), Text: text}}
	}

	chunks := []textChunk{}
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = bestBoundary(text, start, end)
		}

		chunks = append(chunks, textChunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  text[start:end],
		})
		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// bestBoundary searches the window around the raw cut for the highest-priority
// break point, returning the raw cut when the window has none.
func bestBoundary(text string, start, cut int) int {
	low := cut - chunkSearchWindow
	if low <= start {
		low = start + 1
	}
	high := cut + chunkSearchWindow
	if high > len(text) {
		high = len(text)
	}
	window := text[low:high]

	for _, boundary := range []struct {
		marker string
		keep   int // characters of the marker kept in the left chunk
	}{
		{"\n\n", 2},
		{". ", 2},
		{"! ", 2},
		{"? ", 2},
		{"\n", 1},
		{" ", 1},
	} {
		if idx := strings.LastIndex(window, boundary.marker); idx >= 0 {
			pos := low + idx + boundary.keep
			if pos > start && pos <= high {
				return pos
			}
		}
	}
	return cut
}
