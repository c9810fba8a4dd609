package main

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// exportFile is a fully rendered download: name, MIME type and bytes.
type exportFile struct {
	Name string
	MIME string
	Data []byte
}

// exportDocument is one textual item inside an export: a source text, a note,
// a report. Chat, cards, tables and images ride in their typed fields on
// exportPayload instead.
type exportDocument struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// exportPayload carries everything a renderer may need for one export. Only
// the fields matching the category are populated.
type exportPayload struct {
	Category  string
	Title     string
	Documents []exportDocument
	Chat      []ChatMessage
	Cards     []Flashcard
	Table     *DataTable
	Mindmaps  []Mindmap
	Slides    []Slide
	ImageData string
}

const (
	exportFormatMarkdown = "md"
	exportFormatText     = "txt"
	exportFormatCSV      = "csv"
	exportFormatJSON     = "json"
	exportFormatPDF      = "pdf"
	exportFormatDOCX     = "docx"
	exportFormatPPTX     = "pptx"
	exportFormatAnki     = "anki"
	exportFormatZip      = "zip"
)

const batchModeIndividual = "individual"

// utf8BOM leads every CSV so spreadsheet apps detect the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errNothingToExport = errors.New("nothing to export")

func renderExport(payload exportPayload, format, batchMode string, now time.Time) (*exportFile, error) {
	if payload.empty() {
		return nil, errNothingToExport
	}

	if batchMode == batchModeIndividual && len(payload.Documents) > 1 {
		return renderIndividualZip(payload, format, now)
	}

	name := func(ext string) string {
		return exportFileName(payload.Title, payload.Category, ext, now)
	}

	switch format {
	case exportFormatMarkdown:
		return &exportFile{Name: name("md"), MIME: "text/markdown; charset=utf-8", Data: []byte(renderMarkdown(payload))}, nil
	case exportFormatText:
		return &exportFile{Name: name("txt"), MIME: "text/plain; charset=utf-8", Data: []byte(renderPlainText(payload))}, nil
	case exportFormatCSV:
		data, err := renderCSV(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("csv"), MIME: "text/csv; charset=utf-8", Data: data}, nil
	case exportFormatJSON:
		data, err := renderJSON(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("json"), MIME: "application/json", Data: data}, nil
	case exportFormatAnki:
		if len(payload.Cards) == 0 {
			return nil, errNothingToExport
		}
		return &exportFile{Name: name("txt"), MIME: "text/tab-separated-values; charset=utf-8", Data: []byte(renderAnkiTSV(payload.Cards))}, nil
	case exportFormatPDF:
		data, err := renderPDF(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("pdf"), MIME: "application/pdf", Data: data}, nil
	case exportFormatDOCX:
		data, err := renderDOCX(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("docx"), MIME: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Data: data}, nil
	case exportFormatPPTX:
		data, err := renderPPTX(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("pptx"), MIME: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Data: data}, nil
	case exportFormatZip:
		data, err := renderImagesZip(payload)
		if err != nil {
			return nil, err
		}
		return &exportFile{Name: name("zip"), MIME: "application/zip", Data: data}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (p exportPayload) empty() bool {
	return len(p.Documents) == 0 &&
		len(p.Chat) == 0 &&
		len(p.Cards) == 0 &&
		p.Table == nil &&
		len(p.Mindmaps) == 0 &&
		len(p.Slides) == 0 &&
		p.ImageData == ""
}

// renderIndividualZip renders each document on its own and bundles the results
// into one archive. Duplicate names inside the archive get a numeric suffix.
func renderIndividualZip(payload exportPayload, format string, now time.Time) (*exportFile, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	seen := map[string]int{}

	for _, doc := range payload.Documents {
		single := payload
		single.Documents = []exportDocument{doc}
		single.Title = doc.Title

		file, err := renderExport(single, format, "", now)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", doc.Title, err)
		}

		entryName := file.Name
		seen[entryName]++
		if n := seen[entryName]; n > 1 {
			ext := ""
			if dot := strings.LastIndex(entryName, "."); dot >= 0 {
				ext = entryName[dot:]
				entryName = entryName[:dot]
			}
			entryName = fmt.Sprintf("%s_%d%s", entryName, n, ext)
		}

		writer, err := archive.Create(entryName)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(file.Data); err != nil {
			return nil, err
		}
	}

	if err := archive.Close(); err != nil {
		return nil, err
	}
	return &exportFile{
		Name: exportFileName(payload.Title, payload.Category, "zip", now),
		MIME: "application/zip",
		Data: buf.Bytes(),
	}, nil
}

func renderMarkdown(payload exportPayload) string {
	var b strings.Builder
	if payload.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", payload.Title)
	}

	for _, doc := range payload.Documents {
		if doc.Title != "" && doc.Title != payload.Title {
			fmt.Fprintf(&b, "## %s\n\n", doc.Title)
		}
		b.WriteString(strings.TrimRight(doc.Body, "\n"))
		b.WriteString("\n\n")
	}

	for _, message := range payload.Chat {
		switch message.Role {
		case "date":
			fmt.Fprintf(&b, "---\n**%s**\n\n", message.Content)
		case "user":
			fmt.Fprintf(&b, "**You:** %s\n\n", message.Content)
		default:
			fmt.Fprintf(&b, "**Assistant:** %s\n\n", message.Content)
		}
	}

	for i, card := range payload.Cards {
		fmt.Fprintf(&b, "### Card %d\n\n**Q:** %s\n\n**A:** %s\n\n", i+1, card.Front, card.Back)
		if len(card.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(card.Tags, ", "))
		}
	}

	if payload.Table != nil {
		b.WriteString(markdownTable(payload.Table))
		b.WriteString("\n")
	}

	for _, mindmap := range payload.Mindmaps {
		if mindmap.Title != "" {
			fmt.Fprintf(&b, "## %s\n\n", mindmap.Title)
		}
		writeMindmapMarkdown(&b, mindmap.Root, 0)
		b.WriteString("\n")
	}

	return b.String()
}

func markdownTable(table *DataTable) string {
	var b strings.Builder
	escape := func(cell string) string {
		return strings.ReplaceAll(strings.ReplaceAll(cell, "\n", " "), "|", "\\|")
	}

	b.WriteString("|")
	for _, header := range table.Headers {
		b.WriteString(" " + escape(header) + " |")
	}
	b.WriteString("\n|")
	for range table.Headers {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range table.Rows {
		b.WriteString("|")
		for _, cell := range row {
			b.WriteString(" " + escape(cell) + " |")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeMindmapMarkdown(b *strings.Builder, node *MindmapNode, depth int) {
	if node == nil {
		return
	}
	fmt.Fprintf(b, "%s- %s\n", strings.Repeat("  ", depth), node.Label)
	for _, child := range node.Children {
		writeMindmapMarkdown(b, child, depth+1)
	}
}

func renderPlainText(payload exportPayload) string {
	var b strings.Builder
	if payload.Title != "" {
		b.WriteString(payload.Title + "\n")
		b.WriteString(strings.Repeat("=", len(payload.Title)) + "\n\n")
	}

	for _, doc := range payload.Documents {
		if doc.Title != "" && doc.Title != payload.Title {
			b.WriteString(doc.Title + "\n")
			b.WriteString(strings.Repeat("-", len(doc.Title)) + "\n")
		}
		b.WriteString(strings.TrimRight(doc.Body, "\n"))
		b.WriteString("\n\n")
	}

	for _, message := range payload.Chat {
		switch message.Role {
		case "date":
			fmt.Fprintf(&b, "--- %s ---\n\n", message.Content)
		case "user":
			fmt.Fprintf(&b, "You: %s\n\n", message.Content)
		default:
			fmt.Fprintf(&b, "Assistant: %s\n\n", message.Content)
		}
	}

	for i, card := range payload.Cards {
		fmt.Fprintf(&b, "Card %d\nQ: %s\nA: %s\n\n", i+1, card.Front, card.Back)
	}

	if payload.Table != nil {
		b.WriteString(strings.Join(payload.Table.Headers, "\t") + "\n")
		for _, row := range payload.Table.Rows {
			b.WriteString(strings.Join(row, "\t") + "\n")
		}
	}

	for _, mindmap := range payload.Mindmaps {
		if mindmap.Title != "" {
			b.WriteString(mindmap.Title + "\n")
		}
		var md strings.Builder
		writeMindmapMarkdown(&md, mindmap.Root, 0)
		b.WriteString(md.String() + "\n")
	}

	return b.String()
}

func renderCSV(payload exportPayload) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	writer := csv.NewWriter(&buf)

	switch {
	case payload.Table != nil:
		if err := writer.Write(payload.Table.Headers); err != nil {
			return nil, err
		}
		for _, row := range payload.Table.Rows {
			if err := writer.Write(row); err != nil {
				return nil, err
			}
		}
	case len(payload.Cards) > 0:
		if err := writer.Write([]string{"front", "back", "tags"}); err != nil {
			return nil, err
		}
		for _, card := range payload.Cards {
			if err := writer.Write([]string{card.Front, card.Back, strings.Join(card.Tags, ";")}); err != nil {
				return nil, err
			}
		}
	case len(payload.Chat) > 0:
		if err := writer.Write([]string{"role", "content"}); err != nil {
			return nil, err
		}
		for _, message := range payload.Chat {
			if err := writer.Write([]string{message.Role, message.Content}); err != nil {
				return nil, err
			}
		}
	default:
		if err := writer.Write([]string{"title", "content"}); err != nil {
			return nil, err
		}
		for _, doc := range payload.Documents {
			if err := writer.Write([]string{doc.Title, doc.Body}); err != nil {
				return nil, err
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(payload exportPayload) ([]byte, error) {
	out := map[string]any{
		"title":    payload.Title,
		"category": payload.Category,
	}
	if len(payload.Documents) > 0 {
		out["items"] = payload.Documents
	}
	if len(payload.Chat) > 0 {
		out["chat"] = payload.Chat
	}
	if len(payload.Cards) > 0 {
		out["flashcards"] = payload.Cards
	}
	if payload.Table != nil {
		out["table"] = payload.Table
	}
	if len(payload.Mindmaps) > 0 {
		out["mindmaps"] = payload.Mindmaps
	}
	if len(payload.Slides) > 0 {
		out["slides"] = payload.Slides
	}
	return json.MarshalIndent(out, "", "  ")
}

// renderAnkiTSV emits one card per line as front<TAB>back<TAB>tags. Tabs and
// newlines inside fields would shift columns on import, so they become spaces.
func renderAnkiTSV(cards []Flashcard) string {
	flatten := func(s string) string {
		s = strings.ReplaceAll(s, "\t", " ")
		s = strings.ReplaceAll(s, "\r\n", " ")
		s = strings.ReplaceAll(s, "\n", " ")
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	for _, card := range cards {
		tags := make([]string, 0, len(card.Tags))
		for _, tag := range card.Tags {
			tags = append(tags, flatten(tag))
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\n", flatten(card.Front), flatten(card.Back), strings.Join(tags, " "))
	}
	return b.String()
}

// renderImagesZip bundles slide or infographic images into one archive.
func renderImagesZip(payload exportPayload) ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	wrote := 0

	for _, slide := range payload.Slides {
		data, ext, err := decodeDataURL(slide.ImageData)
		if err != nil {
			logWarn("export.slide.skipped", "slide", slide.SlideNumber, "error", err)
			continue
		}
		writer, err := archive.Create(fmt.Sprintf("slide_%03d.%s", slide.SlideNumber, ext))
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(data); err != nil {
			return nil, err
		}
		wrote++
	}

	if payload.ImageData != "" {
		data, ext, err := decodeDataURL(payload.ImageData)
		if err != nil {
			return nil, err
		}
		writer, err := archive.Create("infographic." + ext)
		if err != nil {
			return nil, err
		}
		if _, err := writer.Write(data); err != nil {
			return nil, err
		}
		wrote++
	}

	if wrote == 0 {
		return nil, errNothingToExport
	}
	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeDataURL splits a data: URL into raw bytes and a file extension.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	comma := strings.Index(dataURL, ",")
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data url")
	}

	meta := dataURL[len("data:"):comma]
	ext := "png"
	switch {
	case strings.HasPrefix(meta, "image/jpeg"):
		ext = "jpg"
	case strings.HasPrefix(meta, "image/webp"):
		ext = "webp"
	case strings.HasPrefix(meta, "image/svg"):
		ext = "svg"
	}

	if !strings.Contains(meta, "base64") {
		return nil, "", fmt.Errorf("unsupported data url encoding")
	}
	data, err := base64.StdEncoding.DecodeString(dataURL[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return data, ext, nil
}
