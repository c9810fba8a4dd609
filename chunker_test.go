package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextSingleChunk(t *testing.T) {
	chunks := splitText("short text", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 10, chunks[0].End)
}

func TestSplitTextLargeDocument(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog and keeps going. "
	text := strings.Repeat(sentence, 500000/len(sentence)+1)

	chunks := splitText(text, defaultChunkSize, defaultChunkOverlap)
	assert.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, text[chunk.Start:chunk.End], chunk.Text)
		assert.LessOrEqual(t, len(chunk.Text), defaultChunkSize+chunkSearchWindow)
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)

	// Consecutive chunks overlap so no byte between them is lost.
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].Start, chunks[i-1].End)
	}
}

func TestSplitTextPrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 90) + "\n\n" + strings.Repeat("b", 200)
	chunks := splitText(text, 100, 0)

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"))
	assert.True(t, strings.HasPrefix(chunks[1].Text, "b"))
}

func TestSplitTextPrefersSentenceOverSpace(t *testing.T) {
	text := "One sentence here. Another follows right after and " + strings.Repeat("x", 200)
	chunks := splitText(text, 60, 0)

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, ". "), "got %q", chunks[0].Text)
}

func TestSplitTextNoBoundaryInWindow(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := splitText(text, 300, 0)

	require.Len(t, chunks, 4)
	for _, chunk := range chunks[:3] {
		assert.Len(t, chunk.Text, 300)
	}
	assert.Len(t, chunks[3].Text, 100)
}

func TestSplitTextForwardProgressWithHugeOverlap(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks := splitText(text, 50, 500)

	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}
