package main

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTestTime = time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)

func pngDataURL() string {
	// 1x1 transparent PNG.
	raw := []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
		0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89,
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func zipEntryNames(t *testing.T, data []byte) []string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}
	return names
}

func zipEntryContent(t *testing.T, data []byte, name string) string {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		require.NoError(t, err)
		defer rc.Close()
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		return buf.String()
	}
	t.Fatalf("entry %s not found in archive", name)
	return ""
}

func TestRenderAnkiTSV(t *testing.T) {
	cards := make([]Flashcard, 10)
	for i := range cards {
		cards[i] = Flashcard{
			Front: fmt.Sprintf("Question\t%d\nwith breaks", i),
			Back:  fmt.Sprintf("Answer %d", i),
			Tags:  []string{"history", "chapter 2"},
		}
	}

	out := renderAnkiTSV(cards)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)
	for _, line := range lines {
		assert.Equal(t, 2, strings.Count(line, "\t"), "line %q", line)
		assert.NotContains(t, line, "\r")
	}
	assert.Contains(t, lines[0], "Question 0 with breaks")
}

func TestRenderCSVFlashcardsWithBOM(t *testing.T) {
	payload := exportPayload{
		Category: "flashcards",
		Cards:    []Flashcard{{Front: "Q, with comma", Back: "A\nmultiline", Tags: []string{"t1", "t2"}}},
	}

	data, err := renderCSV(payload)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, utf8BOM))

	body := string(bytes.TrimPrefix(data, utf8BOM))
	assert.True(t, strings.HasPrefix(body, "front,back,tags"))
	assert.Contains(t, body, `"Q, with comma"`)
	assert.Contains(t, body, "t1;t2")
}

func TestRenderCSVTable(t *testing.T) {
	payload := exportPayload{
		Category: "table",
		Table:    &DataTable{Headers: []string{"Name", "Role"}, Rows: [][]string{{"Ada", "Engineer"}}},
	}

	data, err := renderCSV(payload)
	require.NoError(t, err)
	body := string(bytes.TrimPrefix(data, utf8BOM))
	assert.True(t, strings.HasPrefix(body, "Name,Role"))
	assert.Contains(t, body, "Ada,Engineer")
}

func TestRenderExportMarkdown(t *testing.T) {
	payload := exportPayload{
		Category: "sources",
		Title:    "Research Notebook",
		Documents: []exportDocument{
			{Title: "First Source", Body: "body one"},
			{Title: "Second Source", Body: "body two"},
		},
	}

	file, err := renderExport(payload, exportFormatMarkdown, "", exportTestTime)
	require.NoError(t, err)
	assert.Equal(t, "Research_Notebook_sources_20260825-143005.md", file.Name)
	assert.Equal(t, "text/markdown; charset=utf-8", file.MIME)

	text := string(file.Data)
	assert.Contains(t, text, "# Research Notebook")
	assert.Contains(t, text, "## First Source")
	assert.Contains(t, text, "body two")
}

func TestRenderExportChatMarkdown(t *testing.T) {
	payload := exportPayload{
		Category: "chat",
		Title:    "NB",
		Chat: []ChatMessage{
			{Role: "date", Content: "Aug 25"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	}

	file, err := renderExport(payload, exportFormatMarkdown, "", exportTestTime)
	require.NoError(t, err)
	text := string(file.Data)
	assert.Contains(t, text, "**Aug 25**")
	assert.Contains(t, text, "**You:** hello")
	assert.Contains(t, text, "**Assistant:** hi there")
}

func TestRenderExportJSON(t *testing.T) {
	payload := exportPayload{
		Category: "notes",
		Title:    "NB",
		Documents: []exportDocument{
			{Title: "Note", Body: "content"},
		},
	}

	file, err := renderExport(payload, exportFormatJSON, "", exportTestTime)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(file.Data, &decoded))
	assert.Equal(t, "notes", decoded["category"])
	items, ok := decoded["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestRenderExportEmptyPayload(t *testing.T) {
	_, err := renderExport(exportPayload{Category: "notes", Title: "NB"}, exportFormatMarkdown, "", exportTestTime)
	assert.ErrorIs(t, err, errNothingToExport)
}

func TestRenderExportUnknownFormat(t *testing.T) {
	payload := exportPayload{Category: "notes", Documents: []exportDocument{{Title: "n", Body: "b"}}}
	_, err := renderExport(payload, "xlsx", "", exportTestTime)
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestRenderIndividualBatchZip(t *testing.T) {
	payload := exportPayload{
		Category: "sources",
		Title:    "NB",
		Documents: []exportDocument{
			{Title: "Alpha", Body: "a"},
			{Title: "Beta", Body: "b"},
			{Title: "Alpha", Body: "duplicate title"},
		},
	}

	file, err := renderExport(payload, exportFormatMarkdown, batchModeIndividual, exportTestTime)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", file.MIME)
	assert.True(t, strings.HasSuffix(file.Name, ".zip"))

	names := zipEntryNames(t, file.Data)
	require.Len(t, names, 3)
	assert.Contains(t, names[0], "Alpha")
	assert.Contains(t, names[1], "Beta")
	// Same title twice gets a numeric suffix instead of clobbering.
	assert.NotEqual(t, names[0], names[2])
}

func TestRenderImagesZip(t *testing.T) {
	payload := exportPayload{
		Category: "slides",
		Title:    "Deck",
		Slides: []Slide{
			{SlideNumber: 1, ImageData: pngDataURL()},
			{SlideNumber: 2, ImageData: "not a data url"},
			{SlideNumber: 3, ImageData: pngDataURL()},
		},
	}

	file, err := renderExport(payload, exportFormatZip, "", exportTestTime)
	require.NoError(t, err)

	names := zipEntryNames(t, file.Data)
	assert.Equal(t, []string{"slide_001.png", "slide_003.png"}, names)
}

func TestRenderPDF(t *testing.T) {
	payload := exportPayload{
		Category:  "report",
		Title:     "Quarterly Report",
		Documents: []exportDocument{{Title: "Summary", Body: "Everything is on track."}},
		Table:     &DataTable{Headers: []string{"KPI", "Value"}, Rows: [][]string{{"Latency", "12ms"}}},
	}

	data, err := renderPDF(payload)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Greater(t, len(data), 500)
}

func TestRenderDOCX(t *testing.T) {
	payload := exportPayload{
		Category:  "notes",
		Title:     "Notes & Drafts",
		Documents: []exportDocument{{Title: "A <note>", Body: "line one\nline two"}},
	}

	data, err := renderDOCX(payload)
	require.NoError(t, err)

	names := zipEntryNames(t, data)
	assert.Contains(t, names, "[Content_Types].xml")
	assert.Contains(t, names, "word/document.xml")

	document := zipEntryContent(t, data, "word/document.xml")
	assert.Contains(t, document, "Notes &amp; Drafts")
	assert.Contains(t, document, "A &lt;note&gt;")
	assert.Contains(t, document, "line two")
}

func TestRenderPPTXTextDeck(t *testing.T) {
	payload := exportPayload{
		Category: "flashcards",
		Title:    "Deck",
		Cards: []Flashcard{
			{Front: "Q1", Back: "A1"},
			{Front: "Q2", Back: "A2"},
		},
	}

	data, err := renderPPTX(payload)
	require.NoError(t, err)

	names := zipEntryNames(t, data)
	assert.Contains(t, names, "ppt/presentation.xml")
	assert.Contains(t, names, "ppt/slides/slide1.xml")
	assert.Contains(t, names, "ppt/slides/slide2.xml")
	assert.Contains(t, names, "ppt/slideMasters/slideMaster1.xml")

	slide := zipEntryContent(t, data, "ppt/slides/slide1.xml")
	assert.Contains(t, slide, "Q1")
	assert.Contains(t, slide, "A1")
}

func TestRenderPPTXImageDeck(t *testing.T) {
	payload := exportPayload{
		Category: "slides",
		Title:    "Deck",
		Slides:   []Slide{{SlideNumber: 1, ImageData: pngDataURL()}},
	}

	data, err := renderPPTX(payload)
	require.NoError(t, err)

	names := zipEntryNames(t, data)
	assert.Contains(t, names, "ppt/media/image1.png")

	slide := zipEntryContent(t, data, "ppt/slides/slide1.xml")
	assert.Contains(t, slide, "r:embed")
}

func TestDecodeDataURL(t *testing.T) {
	data, ext, err := decodeDataURL(pngDataURL())
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
	assert.Equal(t, byte(0x89), data[0])

	_, _, err = decodeDataURL("https://example.com/img.png")
	assert.Error(t, err)

	_, _, err = decodeDataURL("data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestMarkdownTableEscapesCells(t *testing.T) {
	table := &DataTable{
		Headers: []string{"Col|A", "B"},
		Rows:    [][]string{{"multi\nline", "x"}},
	}
	out := markdownTable(table)
	assert.Contains(t, out, `Col\|A`)
	assert.Contains(t, out, "multi line")
}
